package parser

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFConverter 使用 Eino PDF Parser 做本地PDF文本转换，
// 不依赖外部Tika服务，只支持PDF
type EinoPDFConverter struct {
	parser *pdf.PDFParser
	logger *log.Logger
}

// EinoPDFOption PDF转换器的配置选项
type EinoPDFOption func(*EinoPDFConverter)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFConverter) {
		e.logger = logger
	}
}

var _ DocumentConverter = (*EinoPDFConverter)(nil)

// NewEinoPDFConverter 初始化 Eino PDF 转换器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewEinoPDFConverter(ctx context.Context, options ...EinoPDFOption) (*EinoPDFConverter, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 非常重要：我们希望获取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	converter := &EinoPDFConverter{
		parser: p,
		logger: log.New(os.Stderr, "[PDF转换器] ", log.LstdFlags),
	}

	// 应用选项
	for _, option := range options {
		option(converter)
	}

	return converter, nil
}

// ConvertFile 从staging文件转换PDF内容
func (e *EinoPDFConverter) ConvertFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	e.logger.Printf("开始处理PDF文件: %s", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("读取PDF文件 %s 失败: %w", filePath, err)
	}

	text, metadata, err := e.ConvertBytes(ctx, data, filePath)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF处理失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", nil, err
	}

	e.logger.Printf("PDF处理完成: 提取了 %d 个字符 (用时 %.2f秒)", len(text), duration.Seconds())
	return text, metadata, nil
}

// ConvertBytes 从字节数组转换PDF内容
func (e *EinoPDFConverter) ConvertBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	if ext := strings.ToLower(filepath.Ext(uri)); ext != "" && ext != ".pdf" {
		return "", nil, fmt.Errorf("eino转换器只支持PDF文件, 收到: %s", ext)
	}

	extraMeta := map[string]interface{}{
		"source_file_path": uri,
		"extraction_time":  time.Now().Format(time.RFC3339),
	}

	startTime := time.Now()

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)

	duration := time.Since(startTime)
	if err != nil {
		return "", extraMeta, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}

	if len(docs) == 0 {
		return "", extraMeta, fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var fullContent strings.Builder
	for i, doc := range docs {
		fullContent.WriteString(doc.Content)
		if i < len(docs)-1 {
			fullContent.WriteString("\n\n")
		}
	}

	// 合并元数据
	finalMetadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			finalMetadata[k] = v
		}
	}
	for k, v := range extraMeta {
		finalMetadata[k] = v
	}
	finalMetadata["processing_duration_ms"] = duration.Milliseconds()
	finalMetadata["document_count"] = len(docs)
	finalMetadata["text_length"] = fullContent.Len()

	return fullContent.String(), finalMetadata, nil
}
