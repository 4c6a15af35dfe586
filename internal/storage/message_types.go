package storage

import "time"

// ResumeUploadMessage 简历上传消息，触发解析阶段
type ResumeUploadMessage struct {
	SubmissionUUID      string    `json:"submission_uuid"`          // 提交UUID，主键
	SubmissionTimestamp time.Time `json:"submission_timestamp"`     // 提交时间戳
	SourceChannel       string    `json:"source_channel,omitempty"` // 来源渠道
	OriginalFilename    string    `json:"original_filename"`        // 原始文件名
	OriginalFilePathOSS string    `json:"original_file_path_oss"`   // MinIO中的对象键
	RawFileMD5          string    `json:"raw_file_md5,omitempty"`   // 原始文件的MD5，用于失败时回滚
}

// ResumeMarkdownMessage 文本就绪消息，触发LLM结构化阶段
type ResumeMarkdownMessage struct {
	SubmissionUUID  string `json:"submission_uuid"`            // 提交UUID
	MarkdownPathOSS string `json:"markdown_path_oss"`          // Markdown文本在MinIO中的对象键
	Markdown        string `json:"markdown,omitempty"`         // 文本内容，小于阈值时直接随消息携带
	RenderedTextMD5 string `json:"rendered_text_md5,omitempty"`
	FromEmbedded    bool   `json:"from_embedded,omitempty"`    // 是否来自PDF内嵌数据的短路路径
}

// ResumeCompletedMessage 处理完成事件，供下游订阅
type ResumeCompletedMessage struct {
	SubmissionUUID   string `json:"submission_uuid"`
	ProcessingStatus string `json:"processing_status"`
	ProcessingTime   int64  `json:"processing_time,omitempty"` // Unix时间戳
	Error            string `json:"error,omitempty"`
}
