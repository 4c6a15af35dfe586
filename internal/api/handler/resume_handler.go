package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"resume-matcher-go/internal/config"
	"resume-matcher-go/internal/constants"
	"resume-matcher-go/internal/logger"
	"resume-matcher-go/internal/processor"
	"resume-matcher-go/internal/storage"
	"resume-matcher-go/internal/storage/models"
	"resume-matcher-go/pkg/utils"

	"github.com/gofrs/uuid/v5"
)

// 导出下载链接的默认有效期
const defaultExportURLExpiry = 24 * time.Hour

// ResumeHandler 简历接口处理器，负责协调上传、查询和导出流程
type ResumeHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	service processor.ResumeService
}

// NewResumeHandler 创建一个新的简历处理器
func NewResumeHandler(cfg *config.Config, storage *storage.Storage, service processor.ResumeService) *ResumeHandler {
	return &ResumeHandler{
		cfg:     cfg,
		storage: storage,
		service: service,
	}
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	SubmissionUUID string `json:"submission_uuid"`
	Status         string `json:"status"`
}

// ResumeDetailResponse 简历查询响应
type ResumeDetailResponse struct {
	SubmissionUUID   string          `json:"submission_uuid"`
	ProcessingStatus string          `json:"processing_status"`
	ProcessingError  string          `json:"processing_error,omitempty"`
	OriginalFilename string          `json:"original_filename"`
	ParsedResume     json.RawMessage `json:"parsed_resume,omitempty"`
	Markdown         string          `json:"markdown,omitempty"`
	ParserVersion    string          `json:"parser_version,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	Exports          []ExportRecord  `json:"exports,omitempty"`
}

// ExportRecord 单条导出记录摘要
type ExportRecord struct {
	ExportID       uint64    `json:"export_id"`
	PayloadVersion string    `json:"payload_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResumeExportResponse 简历导出响应
type ResumeExportResponse struct {
	SubmissionUUID string `json:"submission_uuid"`
	ExportID       uint64 `json:"export_id"`
	DownloadURL    string `json:"download_url"`
	PayloadVersion string `json:"payload_version"`
}

// ParseResponse 同步解析响应
type ParseResponse struct {
	FromEmbedded bool           `json:"from_embedded"`
	Resume       map[string]any `json:"resume"`
	Markdown     string         `json:"markdown"`
}

// HandleResumeUpload 处理简历上传请求
// 文件MD5去重在入口完成，重复文件直接返回首次提交的UUID
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, reader io.Reader, fileSize int64,
	filename string, sourceChannel string) (*ResumeUploadResponse, error) {

	// 读取文件内容并计算文件MD5（reader只能读一次，上传MinIO前必须缓存）
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	fileMD5Hex := utils.CalculateMD5(fileBytes)

	// 生成UUIDv7，时间有序便于按提交时间排序
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}
	submissionUUID := uuidV7.String()

	// 原子地检查并登记文件MD5，重复时拿到首次提交的UUID
	exists, existingUUID, err := h.storage.Redis.CheckAndSetFileMD5(ctx, fileMD5Hex, submissionUUID)
	if err != nil {
		logger.Error().
			Err(err).
			Str("md5", fileMD5Hex).
			Msg("查询Redis文件MD5失败")
		return nil, fmt.Errorf("检查文件MD5重复性时Redis查询失败: %w", err)
	}
	if exists {
		logger.Info().
			Str("md5", fileMD5Hex).
			Str("filename", filename).
			Str("existing_uuid", existingUUID).
			Msg("检测到重复的文件MD5，跳过处理")
		return &ResumeUploadResponse{
			SubmissionUUID: existingUUID,
			Status:         "DUPLICATE_FILE_SKIPPED",
		}, nil
	}

	// 获取文件扩展名
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf" // 默认为PDF
	}

	// 上传原始文件到MinIO
	originalObjectKey, err := h.storage.MinIO.UploadResumeFile(ctx, submissionUUID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		// 上传失败时释放MD5登记，同一文件还能重新提交
		h.rollbackFileMD5(ctx, fileMD5Hex)
		return nil, fmt.Errorf("上传简历到MinIO失败: %w", err)
	}

	// 构建消息并发送到上传交换机
	message := storage.ResumeUploadMessage{
		SubmissionUUID:      submissionUUID,
		OriginalFilePathOSS: originalObjectKey,
		OriginalFilename:    filename,
		SourceChannel:       sourceChannel,
		SubmissionTimestamp: time.Now(),
		RawFileMD5:          fileMD5Hex,
	}

	err = h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
		message,
		true, // 持久化
	)
	if err != nil {
		// 消息没发出去，这次提交不会被处理，清掉已上传的对象和MD5登记
		if delErr := h.storage.MinIO.DeleteFile(ctx, h.cfg.MinIO.OriginalsBucket, originalObjectKey); delErr != nil {
			logger.Warn().Err(delErr).Str("object_key", originalObjectKey).Msg("回滚已上传对象失败")
		}
		h.rollbackFileMD5(ctx, fileMD5Hex)
		return nil, fmt.Errorf("发布消息到RabbitMQ失败: %w", err)
	}

	return &ResumeUploadResponse{
		SubmissionUUID: submissionUUID,
		Status:         "SUBMITTED_FOR_PROCESSING",
	}, nil
}

// rollbackFileMD5 撤销上传入口的文件MD5登记
func (h *ResumeHandler) rollbackFileMD5(ctx context.Context, fileMD5Hex string) {
	if remErr := h.storage.Redis.RemoveRawFileMD5(ctx, fileMD5Hex); remErr != nil {
		logger.Warn().Err(remErr).Str("md5", fileMD5Hex).Msg("回滚文件MD5登记失败")
	}
}

// HandleParseDocument 同步解析一份上传的文档，不落库
// 带内嵌数据的PDF在这里毫秒级返回，其余文档走完整的转换+LLM路径
func (h *ResumeHandler) HandleParseDocument(ctx context.Context, reader io.Reader, filename string) (*ParseResponse, error) {
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}

	outcome, err := h.service.ParseDocument(ctx, filename, fileBytes)
	if err != nil {
		return nil, err
	}

	resumeMap, err := outcome.Resume.ToMap()
	if err != nil {
		return nil, fmt.Errorf("序列化解析结果失败: %w", err)
	}

	return &ParseResponse{
		FromEmbedded: outcome.FromEmbedded,
		Resume:       resumeMap,
		Markdown:     outcome.Markdown,
	}, nil
}

// HandleGetResume 查询一份简历的处理状态和结构化结果
func (h *ResumeHandler) HandleGetResume(ctx context.Context, submissionUUID string, includeMarkdown bool) (*ResumeDetailResponse, error) {
	submission, err := h.storage.MySQL.GetResumeSubmission(ctx, submissionUUID)
	if err != nil {
		return nil, err
	}

	resp := &ResumeDetailResponse{
		SubmissionUUID:   submission.SubmissionUUID,
		ProcessingStatus: submission.ProcessingStatus,
		ProcessingError:  submission.ProcessingError,
		OriginalFilename: submission.OriginalFilename,
		ParserVersion:    submission.ParserVersion,
		SubmittedAt:      submission.SubmissionTimestamp,
	}
	if len(submission.ParsedResumeJSON) > 0 {
		resp.ParsedResume = json.RawMessage(submission.ParsedResumeJSON)
	}

	// 历史导出记录
	if exports, listErr := h.storage.MySQL.ListResumeExports(ctx, submissionUUID); listErr != nil {
		logger.Warn().Err(listErr).Str("submission_uuid", submissionUUID).Msg("查询导出记录失败")
	} else {
		for _, e := range exports {
			resp.Exports = append(resp.Exports, ExportRecord{
				ExportID:       e.ExportID,
				PayloadVersion: e.PayloadVersion,
				CreatedAt:      e.CreatedAt,
			})
		}
	}

	if includeMarkdown && submission.MarkdownPathOSS != "" {
		// 优先走Redis缓存
		markdown, cacheErr := h.storage.Redis.GetResumeMarkdown(ctx, submissionUUID)
		if cacheErr != nil || markdown == "" {
			markdown, err = h.storage.MinIO.GetMarkdown(ctx, submission.MarkdownPathOSS)
			if err != nil {
				logger.Warn().Err(err).Str("submission_uuid", submissionUUID).Msg("获取Markdown失败")
				markdown = ""
			}
		}
		resp.Markdown = markdown
	}

	return resp, nil
}

// HandleExportResume 导出带内嵌结构化数据的PDF
// 返回导出记录元信息和PDF字节流，导出件同时归档到MinIO
func (h *ResumeHandler) HandleExportResume(ctx context.Context, submissionUUID string) (*ResumeExportResponse, []byte, error) {
	export, err := h.service.ExportResume(ctx, submissionUUID)
	if err != nil {
		return nil, nil, err
	}

	pdfData, err := h.storage.MinIO.GetExportedPDF(ctx, export.ExportPathOSS)
	if err != nil {
		return nil, nil, fmt.Errorf("读取导出件失败: %w", err)
	}

	downloadURL, err := h.storage.MinIO.GetExportURL(ctx, export.ExportPathOSS, defaultExportURLExpiry)
	if err != nil {
		logger.Warn().Err(err).Str("object_key", export.ExportPathOSS).Msg("生成预签名下载链接失败")
	}

	return &ResumeExportResponse{
		SubmissionUUID: submissionUUID,
		ExportID:       export.ExportID,
		DownloadURL:    downloadURL,
		PayloadVersion: export.PayloadVersion,
	}, pdfData, nil
}

// HandleHealth 健康检查，报告各存储依赖的连通性
func (h *ResumeHandler) HandleHealth(ctx context.Context) (map[string]string, bool) {
	status := map[string]string{"service": "ok"}
	healthy := true

	if err := h.storage.Redis.Ping(ctx); err != nil {
		status["redis"] = err.Error()
		healthy = false
	} else {
		status["redis"] = "ok"
	}

	if err := h.storage.MySQL.DB().WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		status["mysql"] = err.Error()
		healthy = false
	} else {
		status["mysql"] = "ok"
	}

	return status, healthy
}

// StartResumeUploadConsumer 启动简历上传消费者
func (h *ResumeHandler) StartResumeUploadConsumer(ctx context.Context, prefetchCount int) error {
	logger.Info().
		Str("exchange", h.cfg.RabbitMQ.ResumeEventsExchange).
		Str("routing_key", h.cfg.RabbitMQ.UploadedRoutingKey).
		Msg("初始化上传消费者的RabbitMQ配置")

	if err := h.storage.RabbitMQ.EnsureExchange(h.cfg.RabbitMQ.ResumeEventsExchange, "direct", true); err != nil {
		return fmt.Errorf("确保交换机存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.EnsureQueue(h.cfg.RabbitMQ.RawResumeQueue, true); err != nil {
		return fmt.Errorf("确保队列存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.BindQueue(
		h.cfg.RabbitMQ.RawResumeQueue,
		h.cfg.RabbitMQ.ResumeEventsExchange,
		h.cfg.RabbitMQ.UploadedRoutingKey,
	); err != nil {
		return fmt.Errorf("绑定队列失败: %w", err)
	}

	logger.Info().
		Str("queue", h.cfg.RabbitMQ.RawResumeQueue).
		Int("prefetch_count", prefetchCount).
		Msg("简历上传消费者就绪")

	_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.RawResumeQueue, prefetchCount, func(data []byte) bool {
		var message storage.ResumeUploadMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Error().Err(err).Msg("解析上传消息失败")
			return false
		}

		// 先落提交记录，OnConflict保证重投递幂等
		submissions := []models.ResumeSubmission{
			{
				SubmissionUUID:      message.SubmissionUUID,
				OriginalFilePathOSS: message.OriginalFilePathOSS,
				OriginalFilename:    message.OriginalFilename,
				SourceChannel:       message.SourceChannel,
				SubmissionTimestamp: message.SubmissionTimestamp,
				RawFileMD5:          message.RawFileMD5,
				ProcessingStatus:    constants.StatusUploaded,
			},
		}
		if err := h.storage.MySQL.BatchInsertResumeSubmissions(ctx, submissions); err != nil {
			logger.Error().Err(err).Msg("插入简历提交记录失败")
			return false
		}

		if err := h.service.ProcessUploadedResume(ctx, message); err != nil {
			logger.Error().
				Err(err).
				Str("submission_uuid", message.SubmissionUUID).
				Msg("处理上传简历失败")
			// 失败状态已由服务层落库，确认消息避免重复消费放大错误
			return true
		}

		return true
	})
	if err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}

	return nil
}

// StartStructuringConsumer 启动LLM结构化消费者
func (h *ResumeHandler) StartStructuringConsumer(ctx context.Context, prefetchCount int) error {
	if err := h.storage.RabbitMQ.EnsureExchange(h.cfg.RabbitMQ.ProcessingEventsExchange, "direct", true); err != nil {
		return fmt.Errorf("确保交换机存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.EnsureQueue(h.cfg.RabbitMQ.StructuringQueue, true); err != nil {
		return fmt.Errorf("确保队列存在失败: %w", err)
	}
	if err := h.storage.RabbitMQ.BindQueue(
		h.cfg.RabbitMQ.StructuringQueue,
		h.cfg.RabbitMQ.ProcessingEventsExchange,
		h.cfg.RabbitMQ.MarkdownReadyRoutingKey,
	); err != nil {
		return fmt.Errorf("绑定队列失败: %w", err)
	}

	logger.Info().
		Str("queue", h.cfg.RabbitMQ.StructuringQueue).
		Int("prefetch_count", prefetchCount).
		Msg("LLM结构化消费者就绪")

	_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.StructuringQueue, prefetchCount, func(data []byte) bool {
		var message storage.ResumeMarkdownMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Error().Err(err).Msg("解析结构化消息失败")
			return false
		}

		if err := h.service.ProcessStructuringTasks(ctx, message); err != nil {
			logger.Error().
				Err(err).
				Str("submission_uuid", message.SubmissionUUID).
				Msg("处理结构化任务失败")
			// LLM偶发失败可重试，拒绝消息触发重新投递
			return false
		}

		return true
	})
	if err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}

	return nil
}

// StartMD5CleanupTask 启动MD5记录清理任务
// 定期检查去重集合的过期时间，防止无TTL的集合无限增长
func (h *ResumeHandler) StartMD5CleanupTask(ctx context.Context) {
	cleanupInterval := 7 * 24 * time.Hour

	logger.Info().
		Dur("interval", cleanupInterval).
		Msg("启动MD5记录清理任务")

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	h.cleanupMD5Records(ctx)

	for {
		select {
		case <-ticker.C:
			h.cleanupMD5Records(ctx)
		case <-ctx.Done():
			logger.Info().Msg("MD5记录清理任务退出")
			return
		}
	}
}

// cleanupMD5Records 为没有TTL的去重集合补设过期时间
func (h *ResumeHandler) cleanupMD5Records(ctx context.Context) {
	logger.Info().Msg("执行MD5记录清理任务...")

	for _, setKey := range []string{constants.KeyFileMD5Set, constants.KeyTextMD5Set} {
		ttl, err := h.storage.Redis.Client.TTL(ctx, setKey).Result()
		if err != nil {
			logger.Error().Err(err).Str("setKey", setKey).Msg("获取MD5集合过期时间失败")
			continue
		}
		if ttl < 0 {
			expiry := h.storage.Redis.GetMD5ExpireDuration()
			if err := h.storage.Redis.Client.Expire(ctx, setKey, expiry).Err(); err != nil {
				logger.Error().Err(err).Str("setKey", setKey).Msg("设置MD5集合过期时间失败")
			} else {
				logger.Info().Str("setKey", setKey).Dur("expiry", expiry).Msg("成功设置MD5集合过期时间")
			}
		}
	}

	logger.Info().Msg("MD5记录清理任务完成")
}
