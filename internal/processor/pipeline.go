package processor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"resume-matcher-go/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ParseOutcome 一次简历解析的产出
type ParseOutcome struct {
	Resume       *types.NormalizedResume // 校验通过的结构化简历
	Markdown     string                  // 渲染后的Markdown
	SourceText   string                  // 转换阶段得到的原始文本（嵌入短路时为空）
	FromEmbedded bool                    // 是否来自PDF内嵌数据的短路路径
}

// ParsePipeline 简历解析管线，聚合转换、提取、修复、渲染、嵌入各组件
// 不持有存储依赖，纯计算编排，便于单测
type ParsePipeline struct {
	Converter DocumentConverter
	Fallback  FallbackExtractor
	Extractor StructuredExtractor
	Repairer  ProjectRepairer
	Renderer  ResumeRenderer
	Embedder  MetadataEmbedder

	Config Settings
}

// NewParsePipeline 创建解析管线
func NewParsePipeline(comp *Components, set *Settings, opts ...SettingOpt) *ParsePipeline {
	for _, opt := range opts {
		opt(set)
	}

	if set.Logger == nil {
		set.Logger = log.New(os.Stdout, "[Pipeline] ", log.LstdFlags)
	}

	p := &ParsePipeline{
		Converter: comp.Converter,
		Fallback:  comp.Fallback,
		Extractor: comp.Extractor,
		Repairer:  comp.Repairer,
		Renderer:  comp.Renderer,
		Embedder:  comp.Embedder,
		Config:    *set,
	}

	if p.Converter == nil {
		p.Config.Logger.Println("警告: ParsePipeline 的 Converter 未初始化，仅嵌入短路路径可用。")
	}

	return p
}

// ConvertDocument 将上传的文档转为纯文本
// 先走主转换器，PDF在主转换失败或产出为空时走兜底提取；两者都拿不到文本时报错。
func (p *ParsePipeline) ConvertDocument(ctx context.Context, filename string, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "ParsePipeline.ConvertDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.filename", filename),
		attribute.Int("document.size_bytes", len(data)),
	)

	if p.Converter == nil {
		return "", fmt.Errorf("DocumentConverter未初始化")
	}

	// 兜底提取需要文件路径，先落一个保留后缀的临时文件
	ext := strings.ToLower(filepath.Ext(filename))
	tmpFile, err := os.CreateTemp("", "resume-*"+ext)
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("关闭临时文件失败: %w", err)
	}

	text, _, convertErr := p.Converter.ConvertBytes(ctx, data, filename)
	if convertErr != nil {
		span.AddEvent("primary_converter_failed")
		p.logDebug("主转换器失败 (%s): %v", filename, convertErr)
	}

	// PDF专用兜底
	if strings.TrimSpace(text) == "" && ext == ".pdf" && p.Fallback != nil {
		span.AddEvent("fallback_extraction")
		p.logDebug("主转换产出为空，尝试兜底提取: %s", filename)
		text = p.Fallback.ExtractText(tmpPath)
	}

	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, "no text extracted")
		if convertErr != nil {
			return "", fmt.Errorf("%w: %v", ErrConvertFailed, convertErr)
		}
		return "", fmt.Errorf("%w: 文档未产出任何文本", ErrConvertFailed)
	}

	span.SetAttributes(attribute.Int("text.length", len(text)))
	span.SetStatus(codes.Ok, "")
	return text, nil
}

// ExtractResume 对文本执行LLM结构化提取、项目修复和校验
func (p *ParsePipeline) ExtractResume(ctx context.Context, markdownText string) (*types.NormalizedResume, error) {
	ctx, span := tracer.Start(ctx, "ParsePipeline.ExtractResume")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(markdownText)))

	if p.Extractor == nil {
		return nil, fmt.Errorf("StructuredExtractor未初始化")
	}

	result, rawJSON, err := p.Extractor.ExtractStructured(ctx, markdownText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm extraction failed")
		return nil, fmt.Errorf("%w: %v", ErrLLMExtractFailed, err)
	}
	span.AddEvent("llm_extraction_completed")

	if p.Repairer != nil {
		result = p.Repairer.RepairProjects(result, rawJSON)
	}

	resume, err := types.Validate(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	span.SetStatus(codes.Ok, "")
	return resume, nil
}

// ParseResume 完整解析入口：先探测PDF内嵌数据短路，否则走转换+LLM提取
func (p *ParsePipeline) ParseResume(ctx context.Context, filename string, data []byte) (*ParseOutcome, error) {
	ctx, span := tracer.Start(ctx, "ParsePipeline.ParseResume")
	defer span.End()
	span.SetAttributes(attribute.String("document.filename", filename))

	// 嵌入短路：之前导出的PDF自带结构化数据，跳过LLM
	if p.Embedder != nil {
		embedded, err := p.Embedder.Extract(filename, data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedded payload invalid")
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
		if embedded != nil {
			span.SetAttributes(attribute.Bool("from_embedded", true))
			span.SetStatus(codes.Ok, "")
			outcome := &ParseOutcome{Resume: embedded, FromEmbedded: true}
			if p.Renderer != nil {
				outcome.Markdown = p.Renderer.Render(embedded)
			}
			return outcome, nil
		}
	}

	text, err := p.ConvertDocument(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	resume, err := p.ExtractResume(ctx, text)
	if err != nil {
		return nil, err
	}

	outcome := &ParseOutcome{Resume: resume, SourceText: text}
	if p.Renderer != nil {
		outcome.Markdown = p.Renderer.Render(resume)
	}

	span.SetStatus(codes.Ok, "")
	return outcome, nil
}

// ExportResume 将结构化简历写入PDF元数据，产出可回流解析的导出件
func (p *ParsePipeline) ExportResume(ctx context.Context, pdfData []byte, resume *types.NormalizedResume, sourceResumeID string) ([]byte, error) {
	_, span := tracer.Start(ctx, "ParsePipeline.ExportResume")
	defer span.End()

	if p.Embedder == nil {
		return nil, fmt.Errorf("MetadataEmbedder未初始化")
	}
	if resume == nil {
		return nil, fmt.Errorf("结构化简历不能为空")
	}

	resumeMap, err := resume.ToMap()
	if err != nil {
		return nil, fmt.Errorf("序列化结构化简历失败: %w", err)
	}

	stamped, err := p.Embedder.Embed(pdfData, resumeMap, sourceResumeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, fmt.Errorf("%w: %v", ErrEmbedFailed, err)
	}

	span.SetAttributes(attribute.Int("export.size_bytes", len(stamped)))
	span.SetStatus(codes.Ok, "")
	return stamped, nil
}

func (p *ParsePipeline) logDebug(format string, args ...interface{}) {
	if p.Config.Debug && p.Config.Logger != nil {
		p.Config.Logger.Printf(format, args...)
	}
}
