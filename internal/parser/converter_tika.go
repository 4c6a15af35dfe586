package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DocumentConverter 文档到纯文本/Markdown的转换器接口
type DocumentConverter interface {
	// ConvertFile 将staging目录中的文档文件转换为文本，同时返回转换元数据
	ConvertFile(ctx context.Context, filePath string) (string, map[string]interface{}, error)

	// ConvertBytes 从字节数组转换，uri用于内容类型推断和日志
	ConvertBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error)
}

// TikaConverter 基于Apache Tika的文档转换器，支持PDF/DOCX等多种格式
type TikaConverter struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 是否提取完整元数据
	extractFullMetadata bool
	// 是否提取精简元数据
	extractMinimalMetadata bool
	// 日志记录
	logger *log.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaConverter)

// WithFullMetadata 配置是否提取完整元数据
func WithFullMetadata(extract bool) TikaOption {
	return func(c *TikaConverter) {
		c.extractFullMetadata = extract
	}
}

// WithMinimalMetadata 配置是否提取精简的关键元数据
func WithMinimalMetadata(extract bool) TikaOption {
	return func(c *TikaConverter) {
		c.extractMinimalMetadata = extract
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(logger *log.Logger) TikaOption {
	return func(c *TikaConverter) {
		c.logger = logger
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(c *TikaConverter) {
		c.Client.Timeout = timeout
	}
}

// 确保TikaConverter实现了DocumentConverter接口
var _ DocumentConverter = (*TikaConverter)(nil)

// NewTikaConverter 创建一个新的Tika文档转换器
func NewTikaConverter(serverURL string, options ...TikaOption) *TikaConverter {
	// 设置默认的HTTP客户端，包含合理的超时设置
	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	converter := &TikaConverter{
		ServerURL:              serverURL,
		Client:                 client,
		extractFullMetadata:    false,
		extractMinimalMetadata: true,
		logger:                 log.New(os.Stderr, "[TikaConverter] ", log.LstdFlags),
	}

	// 应用选项
	for _, option := range options {
		option(converter)
	}

	return converter
}

// ConvertFile 从staging文件转换文档内容
func (c *TikaConverter) ConvertFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	c.logger.Printf("开始转换文档: %s", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("读取文档文件 %s 失败: %w", filePath, err)
	}

	text, metadata, err := c.ConvertBytes(ctx, data, filePath)

	duration := time.Since(startTime)
	if err != nil {
		c.logger.Printf("文档转换失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", nil, err
	}

	c.logger.Printf("文档转换完成: 提取了 %d 个字符 (用时 %.2f秒)", len(text), duration.Seconds())
	return text, metadata, nil
}

// ConvertBytes 从字节数组转换文档内容
func (c *TikaConverter) ConvertBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()

	// 基本元数据，无论如何都会包含
	baseMetadata := map[string]interface{}{
		"extraction_time":  time.Now().Format(time.RFC3339),
		"source_file_path": uri,
	}

	// 构建请求URL - 纯文本模式
	url := fmt.Sprintf("%s/tika", c.ServerURL)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return "", baseMetadata, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	// 设置头信息，内容类型按扩展名推断
	req.Header.Set("Content-Type", contentTypeFor(uri))
	req.Header.Set("Accept", "text/plain")

	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", filepath.Base(uri))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", baseMetadata, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("读取Tika响应失败: %w", err)
	}

	text := string(textBytes)

	baseMetadata["text_length"] = len(text)
	baseMetadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	// 如果不需要任何元数据，直接返回基本元数据
	if !c.extractMinimalMetadata && !c.extractFullMetadata {
		return text, baseMetadata, nil
	}

	metadataStartTime := time.Now()
	rawMetadata, err := c.extractMetadata(ctx, data, uri)
	if err == nil {
		if c.extractFullMetadata {
			// 合并所有元数据
			for k, v := range rawMetadata {
				baseMetadata[k] = v
			}
		} else {
			// 只添加重要的元数据
			for k, v := range rawMetadata {
				if isImportantMetadata(k) {
					baseMetadata[k] = v
				}
			}
		}
	} else {
		c.logger.Printf("元数据提取失败: %v, 继续使用基本元数据", err)
	}
	baseMetadata["metadata_processing_ms"] = time.Since(metadataStartTime).Milliseconds()

	return text, baseMetadata, nil
}

// contentTypeFor 根据文件扩展名推断内容类型
func contentTypeFor(uri string) string {
	ext := strings.ToLower(filepath.Ext(uri))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".md", ".txt":
		return "text/plain"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// 判断元数据字段是否重要
func isImportantMetadata(key string) bool {
	importantKeys := map[string]bool{
		"pdf:PDFVersion":                true,
		"xmpTPg:NPages":                 true,
		"dcterms:created":               true,
		"language":                      true,
		"pdf:charsPerPage":              true,
		"dc:title":                      true,
		"Content-Type":                  true,
		"pdf:docinfo:title":             true,
		"pdf:docinfo:created":           true,
		"pdf:totalUnmappedUnicodeChars": true,
	}
	return importantKeys[key]
}

// extractMetadata 提取文档元数据
func (c *TikaConverter) extractMetadata(ctx context.Context, data []byte, uri string) (map[string]interface{}, error) {
	// 构建请求URL - 元数据
	url := fmt.Sprintf("%s/meta", c.ServerURL)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeFor(uri))
	req.Header.Set("Accept", "application/json")

	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", filepath.Base(uri))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	metadataBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取Tika响应失败: %w", err)
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("解析元数据JSON失败: %w", err)
	}

	return metadata, nil
}
