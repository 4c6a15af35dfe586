package constants

import "time"

const (
	// DefaultParserVer 配置缺省时写入记录的解析器版本号
	DefaultParserVer = "1.0"

	// MarkdownCacheDuration 渲染文本在Redis中的缓存时长
	MarkdownCacheDuration = 24 * time.Hour
)

// 简历处理状态机
// 上传后的流转: UPLOADED -> PENDING_PARSING -> PENDING_LLM -> COMPLETED
// 任何一步失败进入对应的失败状态，内容重复直接进入DUPLICATE_SKIPPED
const (
	// StatusUploaded 原始文件已入库
	StatusUploaded = "UPLOADED"
	// StatusPendingParsing 等待文档转换
	StatusPendingParsing = "PENDING_PARSING"
	// StatusParsingFailed 文档转换失败
	StatusParsingFailed = "PARSING_FAILED"
	// StatusPendingLLM 文本已就绪，等待LLM结构化提取
	StatusPendingLLM = "PENDING_LLM"
	// StatusLLMFailed LLM提取失败
	StatusLLMFailed = "LLM_FAILED"
	// StatusValidationFailed 结构校验失败
	StatusValidationFailed = "VALIDATION_FAILED"
	// StatusCompleted 结构化数据已落库
	StatusCompleted = "COMPLETED"
	// StatusDuplicateSkipped 内容重复，跳过处理
	StatusDuplicateSkipped = "DUPLICATE_SKIPPED"
)

// AllowedStatusesForLLM 允许进入LLM结构化提取的状态
// LLM_FAILED允许重试
var AllowedStatusesForLLM = []string{
	StatusPendingLLM,
	StatusLLMFailed,
}

// IsStatusAllowed 判断当前状态是否在允许列表中
func IsStatusAllowed(status string, allowed []string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
