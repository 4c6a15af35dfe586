package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-matcher-go/internal/agent"
	"resume-matcher-go/internal/config"
	"resume-matcher-go/internal/constants"
	"resume-matcher-go/internal/logger"
	"resume-matcher-go/internal/metadata"
	"resume-matcher-go/internal/parser"
	"resume-matcher-go/internal/storage"
	"resume-matcher-go/internal/storage/models"
	"resume-matcher-go/internal/tracing"
	"resume-matcher-go/internal/types"
	"resume-matcher-go/pkg/utils"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 定义公共错误类型，用于整个服务
var (
	ErrStorageNotInit   = errors.New("storage is not initialized")   // 存储未初始化错误
	ErrConverterNotInit = errors.New("converter is not initialized") // 文档转换器未初始化错误
	ErrExtractorNotInit = errors.New("extractor is not initialized") // LLM提取器未初始化错误
	ErrDuplicateContent = errors.New("duplicate content detected")   // 内容重复错误
	ErrExportNotReady   = errors.New("submission not ready for export")
)

// 定义tracer
var tracer = otel.Tracer("processor")

// 超过该大小的Markdown不随消息内联，消费端回MinIO取
const maxInlineMarkdownBytes = 64 * 1024

// ResumeService 定义简历处理服务的接口
// 提供统一的服务层接口，隐藏内部实现细节
type ResumeService interface {
	// ProcessUploadedResume 处理上传的简历：内嵌数据短路探测、文档转换和内容去重
	ProcessUploadedResume(ctx context.Context, message storage.ResumeUploadMessage) error

	// ProcessStructuringTasks 处理LLM结构化任务：提取、修复、校验和落库
	ProcessStructuringTasks(ctx context.Context, message storage.ResumeMarkdownMessage) error

	// ParseDocument 同步解析一份文档，不落库，供API直接调用
	ParseDocument(ctx context.Context, filename string, data []byte) (*ParseOutcome, error)

	// ExportResume 将已完成解析的简历导出为带内嵌数据的PDF
	ExportResume(ctx context.Context, submissionUUID string) (*models.ResumeExport, error)
}

// resumeServiceImpl 是ResumeService的实现
// 采用Facade模式，内部持有所有需要的组件，但不暴露给外部
type resumeServiceImpl struct {
	components Components      // 组件依赖
	pipeline   *ParsePipeline  // 纯计算解析管线
	config     *config.Config  // 配置信息
	logger     *zerolog.Logger // 使用zerolog替代log.Logger
}

// NewResumeService 创建新的简历服务实例
func NewResumeService(cfg *config.Config, storageManager *storage.Storage, zlog *zerolog.Logger) (ResumeService, error) {
	if zlog == nil {
		defaultLogger := zerolog.Nop()
		zlog = &defaultLogger
	}

	components, err := createComponents(cfg, storageManager, zlog)
	if err != nil {
		return nil, fmt.Errorf("failed to create components: %w", err)
	}

	settings := Settings{}
	pipeline := NewParsePipeline(&components, &settings,
		WithsetDebug(cfg.Logger.Level == "debug"),
		WithsetLogger(log.New(os.Stdout, "[Pipeline] ", log.LstdFlags)),
	)

	svc := &resumeServiceImpl{
		components: components,
		pipeline:   pipeline,
		config:     cfg,
		logger:     zlog,
	}

	// 组件缺失不阻塞启动，对应的处理路径在调用时会报错
	if err := svc.CheckComponentsInitialized(); err != nil {
		zlog.Warn().Err(err).Msg("部分组件未初始化")
	}

	return svc, nil
}

// createComponents 创建所有必要的组件
func createComponents(cfg *config.Config, storageManager *storage.Storage, zlog *zerolog.Logger) (Components, error) {
	opts := []ComponentOpt{
		WithcompStorage(storageManager),
		WithcompRepairer(parser.NewSectionRepairHeuristic()),
		WithcompRenderer(parser.NewMarkdownRenderer()),
		WithcompEmbedder(metadata.NewEmbedder()),
	}

	// 文档转换器：优先Tika，未配置时回落到本地Eino转换
	if cfg.Tika.Type == "tika" && cfg.Tika.ServerURL != "" {
		tikaOptions := []parser.TikaOption{}

		switch cfg.Tika.MetadataMode {
		case "full":
			tikaOptions = append(tikaOptions, parser.WithFullMetadata(true))
		case "none":
			// 不提取元数据
		default:
			tikaOptions = append(tikaOptions, parser.WithMinimalMetadata(true))
		}

		if zlog != nil {
			stdLogger := log.New(
				zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
					w.NoColor = false
					w.TimeFormat = "15:04:05"
				}),
				"[TikaConverter] ",
				log.LstdFlags,
			)
			tikaOptions = append(tikaOptions, parser.WithTikaLogger(stdLogger))
		}

		tikaTimeout := time.Duration(cfg.Tika.Timeout) * time.Second
		if tikaTimeout > 0 {
			tikaOptions = append(tikaOptions, parser.WithTimeout(tikaTimeout))
		}

		opts = append(opts, WithcompConverter(parser.NewTikaConverter(cfg.Tika.ServerURL, tikaOptions...)))
	} else {
		einoConverter, err := parser.NewEinoPDFConverter(context.Background(),
			parser.WithEinoLogger(log.New(os.Stdout, "[EinoPDF] ", log.LstdFlags)))
		if err == nil {
			opts = append(opts, WithcompConverter(einoConverter))
		}
	}

	// PDF兜底提取器
	opts = append(opts, WithcompFallback(parser.NewFallbackPDFExtractor(
		log.New(os.Stdout, "[PDFFallback] ", log.LstdFlags))))

	// LLM结构化提取器（如果有必要的配置）
	if cfg.Aliyun.APIKey != "" {
		qwenModel, err := agent.NewAliyunQwenChatModel(
			cfg.Aliyun.APIKey,
			cfg.GetModelForTask("resume_extraction"),
			cfg.Aliyun.APIURL,
		)
		if err == nil {
			stdLogger := log.New(os.Stdout, "[LLMExtractor] ", log.LstdFlags)
			extractorOpts := []parser.LLMExtractorOption{}
			if cfg.LLMExtractor.PromptTemplate != "" {
				extractorOpts = append(extractorOpts, parser.WithExtractorPrompt(cfg.LLMExtractor.PromptTemplate))
			}
			opts = append(opts, WithcompExtractor(parser.NewLLMResumeExtractor(qwenModel, stdLogger, extractorOpts...)))
		}
	}

	return NewComponents(opts...), nil
}

// CheckComponentsInitialized 检查所有必要的组件是否已初始化
func (rs *resumeServiceImpl) CheckComponentsInitialized() error {
	if rs.components.Storage == nil {
		return ErrStorageNotInit
	}
	if rs.components.Converter == nil {
		return ErrConverterNotInit
	}
	if rs.components.Extractor == nil {
		return ErrExtractorNotInit
	}
	return nil
}

// ProcessUploadedResume 处理上传的简历
// 实现ResumeService接口
func (rs *resumeServiceImpl) ProcessUploadedResume(ctx context.Context, message storage.ResumeUploadMessage) error {
	ctx, span := tracer.Start(ctx, "ProcessUploadedResume",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("submission_uuid", message.SubmissionUUID),
		attribute.String("source_channel", message.SourceChannel),
	)

	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始处理上传的简历")

	if rs.components.Storage == nil {
		span.RecordError(ErrStorageNotInit)
		span.SetStatus(codes.Error, "存储未初始化")
		return ErrStorageNotInit
	}

	// 使用数据库事务确保操作的原子性
	err := rs.components.Storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 更新初始状态为 PENDING_PARSING
		if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx, message.SubmissionUUID, map[string]interface{}{
			"processing_status": constants.StatusPendingParsing,
		}); err != nil {
			log.Error().Err(err).Msg("更新简历状态为PENDING_PARSING失败")
			return fmt.Errorf("更新状态为%s失败: %w", constants.StatusPendingParsing, err)
		}

		// 2. 从MinIO获取原始简历文件
		originalFileBytes, err := rs.components.Storage.MinIO.GetResumeFile(ctx, message.OriginalFilePathOSS)
		if err != nil {
			log.Error().Err(err).Msg("从MinIO下载简历失败")
			span.SetAttributes(attribute.String("error.type", "download_failure"))
			return NewDownloadError(message.SubmissionUUID, err.Error())
		}
		log.Debug().Int("size_bytes", len(originalFileBytes)).Msg("从MinIO下载简历成功")
		span.SetAttributes(attribute.Int("file_size_bytes", len(originalFileBytes)))

		// 3. 内嵌数据短路：之前导出的PDF自带结构化载荷，直接完成，不走转换和LLM
		if rs.components.Embedder != nil {
			embedded, extractErr := rs.components.Embedder.Extract(message.OriginalFilename, originalFileBytes)
			if extractErr != nil {
				log.Error().Err(extractErr).Msg("PDF内嵌数据校验失败")
				span.RecordError(extractErr)
				return NewValidationError(message.SubmissionUUID, extractErr.Error())
			}
			if embedded != nil {
				span.AddEvent("embedded_payload_found")
				span.SetAttributes(attribute.Bool("from_embedded", true))
				return rs.finalizeEmbeddedResume(ctx, tx, message, embedded)
			}
		}

		// 4. 转换并去重 - 创建子span
		ctx, convertSpan := tracer.Start(ctx, "ConvertAndDeduplicateResume")
		markdown, textMD5Hex, err := rs.convertAndDeduplicateResume(ctx, tx, message, originalFileBytes)
		convertSpan.End()

		if err != nil {
			if errors.Is(err, ErrDuplicateContent) {
				log.Info().Msg("检测到重复内容，跳过处理")
				return nil // 内容重复是正常流程，提交状态更新并返回nil，事务将提交
			}
			return err // 其他错误则回滚事务
		}

		// 5. 上传转换后的Markdown到MinIO - 只记录事件而不创建子span
		span.AddEvent("uploading_to_minio")
		markdownObjectKey, err := rs.components.Storage.MinIO.UploadMarkdown(ctx, message.SubmissionUUID, markdown)
		if err != nil {
			log.Error().Err(err).Msg("上传Markdown到MinIO失败")
			return NewStoreError(message.SubmissionUUID, err.Error())
		}
		log.Debug().Str("object_key", markdownObjectKey).Msg("Markdown已上传到MinIO")

		// 热点缓存，结构化阶段优先走缓存，失败不影响主流程
		if rs.components.Storage.Redis != nil {
			if cacheErr := rs.components.Storage.Redis.SetResumeMarkdown(ctx, message.SubmissionUUID, markdown, constants.MarkdownCacheDuration); cacheErr != nil {
				log.Warn().Err(cacheErr).Msg("缓存Markdown到Redis失败")
			}
		}

		// 6. 构建下一个阶段的消息
		markdownMessage := storage.ResumeMarkdownMessage{
			SubmissionUUID:  message.SubmissionUUID,
			MarkdownPathOSS: markdownObjectKey,
			RenderedTextMD5: textMD5Hex,
		}
		if len(markdown) <= maxInlineMarkdownBytes {
			markdownMessage.Markdown = markdown
		}

		// 7. [Outbox] 将消息写入 Outbox 表，而不是直接发布
		if err := rs.writeOutbox(ctx, tx, message.SubmissionUUID, "resume.converted",
			rs.config.RabbitMQ.MarkdownReadyRoutingKey, markdownMessage); err != nil {
			return err
		}

		// 8. 更新数据库记录
		if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx, message.SubmissionUUID, map[string]interface{}{
			"markdown_path_oss": markdownObjectKey,
			"rendered_text_md5": textMD5Hex,
			"processing_status": constants.StatusPendingLLM,
			"parser_version":    rs.parserVersion(),
		}); err != nil {
			log.Error().Err(err).Msg("更新数据库记录失败")
			return NewUpdateError(message.SubmissionUUID, err.Error())
		}

		span.SetStatus(codes.Ok, "处理成功")
		return nil // 事务成功
	})

	if err != nil {
		// 如果事务执行过程中发生错误，更新状态为失败
		failStatus, errType := failureStatusFor(err, constants.StatusParsingFailed, tracing.ErrorTypeInternal)
		tracing.RecordError(span, err, errType)
		updateErr := rs.components.Storage.MySQL.MarkResumeProcessingFailed(ctx, message.SubmissionUUID, failStatus, err.Error())
		if updateErr != nil {
			log.Error().Err(updateErr).Msg("更新状态为失败时出错")
		}
		return err // 返回原始错误
	}

	log.Info().Msg("上传任务处理成功完成")
	return nil
}

// convertAndDeduplicateResume 内部辅助方法，转换文档并检查文本是否重复
func (rs *resumeServiceImpl) convertAndDeduplicateResume(ctx context.Context, tx *gorm.DB, message storage.ResumeUploadMessage, fileBytes []byte) (string, string, error) {
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)

	// 文档转纯文本，主转换器失败时管线内部走PDF兜底
	markdown, err := rs.pipeline.ConvertDocument(ctx, message.OriginalFilename, fileBytes)
	if err != nil {
		log.Error().Err(err).Msg("转换简历文档失败")
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "convert_failure"))
		return "", "", NewConvertError(message.SubmissionUUID, err.Error())
	}
	log.Debug().Int("text_length", len(markdown)).Msg("成功转换文档")
	span.SetAttributes(
		attribute.Int("text_length", len(markdown)),
		attribute.String("text_preview", tracing.SafeResumeContent(markdown)),
	)

	span.AddEvent("document_conversion_completed")

	// 计算文本MD5用于去重
	textMD5Hex := utils.CalculateMD5([]byte(markdown))
	log.Debug().Str("md5", textMD5Hex).Msg("计算得到文本MD5")

	// 在Redis中原子地检查并添加文本MD5
	textExists, err := rs.components.Storage.Redis.CheckAndAddTextMD5(ctx, textMD5Hex)
	if err != nil {
		log.Warn().Err(err).Msg("Redis检查文本MD5失败，将继续处理，但文本去重可能失效")
	} else if textExists {
		log.Info().Str("md5", textMD5Hex).Msg("检测到重复的文本MD5，标记为重复内容")
		if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx, message.SubmissionUUID, map[string]interface{}{
			"processing_status": constants.StatusDuplicateSkipped,
		}); err != nil {
			return "", "", fmt.Errorf("更新重复内容状态失败: %w", err)
		}
		span.SetAttributes(
			attribute.Bool("duplicate_content", true),
			attribute.String("md5", textMD5Hex),
		)
		return "", "", ErrDuplicateContent
	}

	log.Debug().Msg("文本MD5不存在于Redis，继续处理")
	return markdown, textMD5Hex, nil
}

// finalizeEmbeddedResume 内嵌短路路径：校验通过的结构化数据直接落库并完成
func (rs *resumeServiceImpl) finalizeEmbeddedResume(ctx context.Context, tx *gorm.DB, message storage.ResumeUploadMessage, resume *types.NormalizedResume) error {
	log := logger.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "FinalizeEmbeddedResume")
	defer span.End()
	span.SetAttributes(attribute.String("resume.name",
		tracing.SafeAttributeValue("name", resume.PersonalInfo.Name, tracing.DefaultMaxLength)))

	markdown := ""
	if rs.components.Renderer != nil {
		markdown = rs.components.Renderer.Render(resume)
	}
	textMD5Hex := utils.CalculateMD5([]byte(markdown))

	markdownObjectKey := ""
	if markdown != "" {
		var err error
		markdownObjectKey, err = rs.components.Storage.MinIO.UploadMarkdown(ctx, message.SubmissionUUID, markdown)
		if err != nil {
			log.Error().Err(err).Msg("上传内嵌简历Markdown失败")
			return NewStoreError(message.SubmissionUUID, err.Error())
		}
	}

	resumeMap, err := resume.ToMap()
	if err != nil {
		return fmt.Errorf("序列化内嵌简历失败: %w", err)
	}
	parsedJSON, err := models.MapToJSON(resumeMap)
	if err != nil {
		return fmt.Errorf("序列化内嵌简历失败: %w", err)
	}

	// 候选人关联
	var candidateID *string
	candidate, err := rs.components.Storage.MySQL.FindOrCreateCandidate(ctx, tx, basicInfoFromResume(resume))
	if err != nil {
		log.Warn().Err(err).Msg("关联候选人失败，继续处理")
	} else if candidate != nil {
		candidateID = &candidate.CandidateID
	}

	updates := map[string]interface{}{
		"markdown_path_oss":  markdownObjectKey,
		"rendered_text_md5":  textMD5Hex,
		"parsed_resume_json": parsedJSON,
		"resume_identifier":  resumeIdentifier(resume),
		"processing_status":  constants.StatusCompleted,
		"parser_version":     rs.parserVersion(),
	}
	if candidateID != nil {
		updates["candidate_id"] = *candidateID
	}

	if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx, message.SubmissionUUID, updates); err != nil {
		return NewUpdateError(message.SubmissionUUID, err.Error())
	}

	completedMessage := storage.ResumeCompletedMessage{
		SubmissionUUID:   message.SubmissionUUID,
		ProcessingStatus: constants.StatusCompleted,
	}
	if err := rs.writeOutbox(ctx, tx, message.SubmissionUUID, "resume.completed",
		rs.config.RabbitMQ.CompletedRoutingKey, completedMessage); err != nil {
		return err
	}

	span.SetStatus(codes.Ok, "内嵌短路完成")
	log.Info().Msg("从PDF内嵌数据恢复简历，跳过LLM提取")
	return nil
}

// failureStatusFor 把处理错误映射为失败状态和追踪错误类型
func failureStatusFor(err error, defaultStatus string, defaultType tracing.ErrorType) (string, tracing.ErrorType) {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return constants.StatusValidationFailed, tracing.ErrorTypeValidation
	case errors.Is(err, ErrConvertFailed):
		return constants.StatusParsingFailed, tracing.ErrorTypeInternal
	}
	return defaultStatus, defaultType
}

// extractWithRetry 按配置的超时和重试次数调用LLM提取
// 校验失败不重试，重新生成大概率还是同样的结构问题
func (rs *resumeServiceImpl) extractWithRetry(ctx context.Context, markdown string) (*types.NormalizedResume, error) {
	log := logger.FromContext(ctx)
	timeout := config.GetDuration(rs.config.LLMExtractor.ExtractionTimeout, 2*time.Minute)
	retryWait := time.Duration(rs.config.LLMExtractor.RetryWaitSeconds) * time.Second
	if retryWait <= 0 {
		retryWait = 5 * time.Second
	}
	maxAttempts := rs.config.LLMExtractor.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var resume *types.NormalizedResume
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		extractCtx, cancel := context.WithTimeout(ctx, timeout)
		resume, err = rs.pipeline.ExtractResume(extractCtx, markdown)
		cancel()
		if err == nil || errors.Is(err, ErrValidationFailed) {
			return resume, err
		}
		if attempt == maxAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_wait", retryWait).Msg("LLM提取失败，等待重试")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryWait):
		}
	}
	return nil, err
}

// writeOutbox 在事务内写入Outbox记录，由中继异步发布
func (rs *resumeServiceImpl) writeOutbox(ctx context.Context, tx *gorm.DB, submissionUUID, eventType, routingKey string, payload interface{}) error {
	log := logger.FromContext(ctx)
	ctx, outboxSpan := tracer.Start(ctx, "WriteToOutbox")
	defer outboxSpan.End()
	outboxSpan.SetAttributes(attribute.String("event_type", eventType))

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("序列化outbox payload失败")
		outboxSpan.RecordError(err)
		outboxSpan.SetStatus(codes.Error, "序列化失败")
		return fmt.Errorf("序列化outbox payload失败: %w", err)
	}

	outboxEntry := models.OutboxMessage{
		AggregateID:      submissionUUID,
		EventType:        eventType,
		Payload:          string(payloadBytes),
		TargetExchange:   rs.config.RabbitMQ.ProcessingEventsExchange,
		TargetRoutingKey: routingKey,
	}

	if err := tx.WithContext(ctx).Create(&outboxEntry).Error; err != nil {
		log.Error().Err(err).Msg("插入outbox记录失败")
		outboxSpan.RecordError(err)
		outboxSpan.SetStatus(codes.Error, "插入失败")
		return NewPublishError(submissionUUID, err.Error())
	}
	log.Debug().Str("event_type", eventType).Msg("成功创建outbox记录")
	return nil
}

// ProcessStructuringTasks 处理LLM结构化任务
// 实现ResumeService接口
func (rs *resumeServiceImpl) ProcessStructuringTasks(ctx context.Context, message storage.ResumeMarkdownMessage) error {
	ctx, span := tracer.Start(ctx, "ProcessStructuringTasks",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("submission_uuid", message.SubmissionUUID))

	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始处理LLM结构化任务")
	startTime := time.Now()

	if rs.components.Storage == nil {
		return ErrStorageNotInit
	}
	if rs.components.Extractor == nil {
		return ErrExtractorNotInit
	}

	// --- 事务一：锁定记录并做幂等性检查 ---
	err := rs.components.Storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx, txSpan := tracer.Start(ctx, "GetAndLockSubmission")
		defer txSpan.End()

		var submission models.ResumeSubmission
		if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_uuid = ?", message.SubmissionUUID).
			First(&submission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warn().Msg("找不到对应的ResumeSubmission记录，消息可能已过期")
				txSpan.SetAttributes(attribute.String("skipped_reason", "record_not_found"))
				return nil // 记录不存在，确认消息避免无限重试
			}
			txSpan.RecordError(err)
			txSpan.SetStatus(codes.Error, "查询失败")
			return fmt.Errorf("获取ResumeSubmission记录失败: %w", err)
		}

		// 幂等性检查 - 使用常量集替代内联的状态检查
		if !constants.IsStatusAllowed(submission.ProcessingStatus, constants.AllowedStatusesForLLM) {
			log.Debug().Str("current_status", submission.ProcessingStatus).Msg("跳过重复/无效状态的消息")
			span.SetAttributes(
				attribute.String("skipped_reason", "invalid_status"),
				attribute.String("current_status", submission.ProcessingStatus),
			)
			return nil // 状态不匹配，说明是重复消息或已处理，直接确认并返回
		}

		if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx.WithContext(ctx), message.SubmissionUUID, map[string]interface{}{
			"processing_status": constants.StatusPendingLLM,
		}); err != nil {
			log.Error().Err(err).Msg("更新状态到PENDING_LLM失败")
			return NewUpdateError(message.SubmissionUUID, err.Error())
		}

		return nil // 事务成功提交
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "事务处理失败")
		return err
	}

	// --- 事务外执行IO操作（取Markdown，LLM提取，修复，校验） ---
	ctx, fetchSpan := tracer.Start(ctx, "FetchMarkdown")
	markdown, err := rs.fetchMarkdown(ctx, message)
	fetchSpan.End()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		rs.markFailed(ctx, message.SubmissionUUID, constants.StatusLLMFailed, err)
		return err
	}

	ctx, extractSpan := tracer.Start(ctx, "ExtractStructuredResume")
	resume, err := rs.extractWithRetry(ctx, markdown)
	extractSpan.End()
	if err != nil {
		failStatus, errType := failureStatusFor(err, constants.StatusLLMFailed, tracing.ErrorTypeLLM)
		wrapped := NewLLMExtractError(message.SubmissionUUID, err.Error())
		if errors.Is(err, ErrValidationFailed) {
			wrapped = NewValidationError(message.SubmissionUUID, err.Error())
		}
		tracing.RecordError(span, err, errType)
		rs.markFailed(ctx, message.SubmissionUUID, failStatus, err)
		return wrapped
	}

	// 用规范化后的数据重新渲染Markdown，覆盖转换阶段的原始文本
	canonicalMD5 := message.RenderedTextMD5
	if rs.components.Renderer != nil {
		canonical := rs.components.Renderer.Render(resume)
		if canonical != "" && canonical != markdown {
			if _, uploadErr := rs.components.Storage.MinIO.UploadMarkdown(ctx, message.SubmissionUUID, canonical); uploadErr != nil {
				log.Warn().Err(uploadErr).Msg("上传规范化Markdown失败，保留转换阶段版本")
			} else {
				canonicalMD5 = utils.CalculateMD5([]byte(canonical))
				if rs.components.Storage.Redis != nil {
					if cacheErr := rs.components.Storage.Redis.SetResumeMarkdown(ctx, message.SubmissionUUID, canonical, constants.MarkdownCacheDuration); cacheErr != nil {
						log.Warn().Err(cacheErr).Msg("更新Redis中的Markdown缓存失败")
					}
				}
			}
		}
	}

	// --- 事务二：落库结构化数据并写完成事件 ---
	ctx, finalTxSpan := tracer.Start(ctx, "ExecuteFinalTransaction")
	defer finalTxSpan.End()
	err = rs.components.Storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return rs.executeStructuringTransaction(ctx, tx, message, resume, canonicalMD5, time.Since(startTime))
	})

	if err != nil {
		log.Error().Err(err).Msg("结构化最终事务失败")
		span.RecordError(err)
		span.SetStatus(codes.Error, "最终事务失败")
		rs.markFailed(ctx, message.SubmissionUUID, constants.StatusLLMFailed, err)
		return err
	}

	span.SetStatus(codes.Ok, "处理成功")
	log.Info().Float64("elapsed_seconds", time.Since(startTime).Seconds()).Msg("LLM结构化任务处理成功完成")
	return nil
}

// fetchMarkdown 获取结构化阶段的输入文本：消息内联 > Redis缓存 > MinIO
func (rs *resumeServiceImpl) fetchMarkdown(ctx context.Context, message storage.ResumeMarkdownMessage) (string, error) {
	log := logger.FromContext(ctx)

	if message.Markdown != "" {
		log.Debug().Int("text_length", len(message.Markdown)).Msg("使用消息内联的Markdown")
		return message.Markdown, nil
	}

	if rs.components.Storage.Redis != nil {
		cached, err := rs.components.Storage.Redis.GetResumeMarkdown(ctx, message.SubmissionUUID)
		if err == nil && cached != "" {
			log.Debug().Int("text_length", len(cached)).Msg("从Redis缓存获取Markdown")
			return cached, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("读取Redis缓存的Markdown失败")
		}
	}

	markdown, err := rs.components.Storage.MinIO.GetMarkdown(ctx, message.MarkdownPathOSS)
	if err != nil {
		log.Error().Err(err).Str("path", message.MarkdownPathOSS).Msg("从MinIO下载Markdown失败")
		return "", NewDownloadError(message.SubmissionUUID, err.Error())
	}
	log.Debug().Int("text_length", len(markdown)).Msg("成功从MinIO下载Markdown")
	return markdown, nil
}

// executeStructuringTransaction 执行结构化处理的最终事务
func (rs *resumeServiceImpl) executeStructuringTransaction(
	ctx context.Context,
	tx *gorm.DB,
	message storage.ResumeMarkdownMessage,
	resume *types.NormalizedResume,
	renderedTextMD5 string,
	elapsed time.Duration,
) error {
	log := logger.FromContext(ctx)

	resumeMap, err := resume.ToMap()
	if err != nil {
		return fmt.Errorf("序列化结构化简历失败: %w", err)
	}
	parsedJSON, err := models.MapToJSON(resumeMap)
	if err != nil {
		return fmt.Errorf("序列化结构化简历失败: %w", err)
	}

	// 候选人关联
	var candidateID *string
	candidate, err := rs.components.Storage.MySQL.FindOrCreateCandidate(ctx, tx, basicInfoFromResume(resume))
	if err != nil {
		log.Warn().Err(err).Msg("关联候选人失败，继续处理")
	} else if candidate != nil {
		candidateID = &candidate.CandidateID
	}

	updates := map[string]interface{}{
		"parsed_resume_json": parsedJSON,
		"resume_identifier":  resumeIdentifier(resume),
		"rendered_text_md5":  renderedTextMD5,
		"processing_status":  constants.StatusCompleted,
	}
	if candidateID != nil {
		updates["candidate_id"] = *candidateID
	}

	if err := rs.components.Storage.MySQL.UpdateResumeSubmissionFields(tx, message.SubmissionUUID, updates); err != nil {
		log.Error().Err(err).Msg("更新最终状态到MySQL失败")
		return fmt.Errorf("更新最终状态失败: %w", err)
	}

	completedMessage := storage.ResumeCompletedMessage{
		SubmissionUUID:   message.SubmissionUUID,
		ProcessingStatus: constants.StatusCompleted,
		ProcessingTime:   int64(elapsed.Seconds()),
	}
	if err := rs.writeOutbox(ctx, tx, message.SubmissionUUID, "resume.completed",
		rs.config.RabbitMQ.CompletedRoutingKey, completedMessage); err != nil {
		return err
	}

	log.Debug().Msg("成功执行结构化处理事务")
	return nil
}

// markFailed 记录失败状态和原因，更新失败本身只告警不覆盖原始错误
func (rs *resumeServiceImpl) markFailed(ctx context.Context, submissionUUID, status string, cause error) {
	log := logger.FromContext(ctx)
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := rs.components.Storage.MySQL.MarkResumeProcessingFailed(ctx, submissionUUID, status, reason); err != nil {
		log.Error().Err(err).Str("target_status", status).Msg("更新失败状态时出错")
	}
}

// ExportResume 导出带内嵌结构化数据的PDF
// 实现ResumeService接口
func (rs *resumeServiceImpl) ExportResume(ctx context.Context, submissionUUID string) (*models.ResumeExport, error) {
	ctx, span := tracer.Start(ctx, "ExportResume")
	defer span.End()
	span.SetAttributes(attribute.String("submission_uuid", submissionUUID))

	ctx = logger.WithSubmissionUUID(ctx, submissionUUID)
	log := logger.FromContext(ctx)

	if rs.components.Storage == nil {
		return nil, ErrStorageNotInit
	}

	// 同一提交的导出串行化，避免并发导出写出重复记录
	lockKey := fmt.Sprintf(constants.KeyResumeExportLock, submissionUUID)
	lockValue, err := rs.components.Storage.Redis.AcquireLock(ctx, lockKey, 30*time.Second)
	if err != nil {
		log.Warn().Err(err).Msg("获取导出锁失败，继续执行导出")
	} else if lockValue == "" {
		return nil, fmt.Errorf("%w: 另一个导出正在进行中", ErrExportNotReady)
	} else {
		defer func() {
			if _, relErr := rs.components.Storage.Redis.ReleaseLock(ctx, lockKey, lockValue); relErr != nil {
				log.Warn().Err(relErr).Msg("释放导出锁失败")
			}
		}()
	}

	// 1. 取记录并检查状态
	submission, err := rs.components.Storage.MySQL.GetResumeSubmission(ctx, submissionUUID)
	if err != nil {
		span.RecordError(err)
		return nil, NewDatabaseError(submissionUUID, err.Error())
	}
	if submission.ProcessingStatus != constants.StatusCompleted || len(submission.ParsedResumeJSON) == 0 {
		log.Warn().Str("status", submission.ProcessingStatus).Msg("简历未完成解析，无法导出")
		return nil, fmt.Errorf("%w: status=%s", ErrExportNotReady, submission.ProcessingStatus)
	}

	// 2. 恢复结构化简历
	var resumeMap map[string]any
	if err := json.Unmarshal(submission.ParsedResumeJSON, &resumeMap); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("解析已存储的简历JSON失败: %w", err)
	}
	resume, err := types.Validate(resumeMap)
	if err != nil {
		span.RecordError(err)
		return nil, NewValidationError(submissionUUID, err.Error())
	}

	// 3. 下载原始PDF作为导出底板
	if !strings.EqualFold(filepath.Ext(submission.OriginalFilename), ".pdf") {
		return nil, fmt.Errorf("%w: 原始文件不是PDF", ErrExportNotReady)
	}
	pdfData, err := rs.components.Storage.MinIO.GetResumeFile(ctx, submission.OriginalFilePathOSS)
	if err != nil {
		span.RecordError(err)
		return nil, NewDownloadError(submissionUUID, err.Error())
	}

	// 4. 写入元数据
	sourceResumeID := submission.SourceResumeID
	if sourceResumeID == "" {
		sourceResumeID = submissionUUID
	}
	stamped, err := rs.pipeline.ExportResume(ctx, pdfData, resume, sourceResumeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "写入元数据失败")
		return nil, NewEmbedError(submissionUUID, err.Error())
	}

	// 5. 上传导出件并记录
	objectKey, err := rs.components.Storage.MinIO.UploadExportedPDF(ctx, submissionUUID, stamped)
	if err != nil {
		span.RecordError(err)
		return nil, NewStoreError(submissionUUID, err.Error())
	}

	export := &models.ResumeExport{
		SubmissionUUID: submissionUUID,
		ExportPathOSS:  objectKey,
		PayloadVersion: metadata.PayloadVersion,
	}
	err = rs.components.Storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return rs.components.Storage.MySQL.CreateResumeExport(tx, export)
	})
	if err != nil {
		span.RecordError(err)
		return nil, NewDatabaseError(submissionUUID, err.Error())
	}

	span.SetAttributes(
		attribute.String("export.object_key", objectKey),
		attribute.Int("export.size_bytes", len(stamped)),
	)
	span.SetStatus(codes.Ok, "导出成功")
	log.Info().Str("object_key", objectKey).Msg("简历导出成功")
	return export, nil
}

// ParseDocument 同步解析入口
// 实现ResumeService接口
func (rs *resumeServiceImpl) ParseDocument(ctx context.Context, filename string, data []byte) (*ParseOutcome, error) {
	return rs.pipeline.ParseResume(ctx, filename, data)
}

// parserVersion 返回配置的解析器版本，未配置时回退到默认版本
func (rs *resumeServiceImpl) parserVersion() string {
	if rs.config != nil && rs.config.ActiveParserVersion != "" {
		return rs.config.ActiveParserVersion
	}
	return constants.DefaultParserVer
}

// basicInfoFromResume 从结构化简历提取候选人关联所需的基本信息
func basicInfoFromResume(resume *types.NormalizedResume) map[string]string {
	return map[string]string{
		"name":     resume.PersonalInfo.Name,
		"email":    resume.PersonalInfo.Email,
		"phone":    resume.PersonalInfo.Phone,
		"location": resume.PersonalInfo.Location,
	}
}

// resumeIdentifier 生成name_phone形式的人工可读标识
func resumeIdentifier(resume *types.NormalizedResume) string {
	name := resume.PersonalInfo.Name
	phone := resume.PersonalInfo.Phone
	if name == "" && phone == "" {
		return ""
	}
	return name + "_" + phone
}
