package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// FileModulePrefix 文件模块
	FileModulePrefix = "file"
	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityMD5ToUUID MD5到UUID的映射实体
	EntityMD5ToUUID = "md5_to_uuid"
	// EntityText 文本实体
	EntityText = "text"

	// KeyFileMD5Set 原始文件MD5集合，用于快速去重 (SET)
	// 格式: app:file:dedup_set
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyTextMD5Set 解析文本MD5集合，用于内容级去重 (SET)
	// 格式: app:resume:dedup_set
	KeyTextMD5Set = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityDedupSet

	// KeyFileMD5ToSubmissionUUID MD5到SubmissionUUID的映射 (STRING)
	// 格式: app:file:md5_to_uuid:{md5}
	KeyFileMD5ToSubmissionUUID = AppPrefix + ":" + FileModulePrefix + ":" + EntityMD5ToUUID + ":%s"

	// KeyResumeMarkdown 简历Markdown快照缓存 (STRING)
	// 格式: app:resume:text:{submissionUUID}
	KeyResumeMarkdown = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityText + ":%s"

	// KeyResumeExportLock 导出互斥锁，同一提交串行导出 (STRING)
	// 格式: app:resume:export_lock:{submissionUUID}
	KeyResumeExportLock = AppPrefix + ":" + ResumeModulePrefix + ":export_lock:%s"
)
