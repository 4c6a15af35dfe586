package parser

import (
	"log"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FallbackPDFExtractor 纯文本兜底提取器。
// 部分扫描版或字体异常的PDF会让主转换器失败或返回空文本，
// 这里逐页提取纯文本再拼接，能挽回一部分这类文件。
type FallbackPDFExtractor struct {
	logger *log.Logger
}

// NewFallbackPDFExtractor 创建兜底PDF提取器
func NewFallbackPDFExtractor(logger *log.Logger) *FallbackPDFExtractor {
	if logger == nil {
		logger = log.New(os.Stderr, "[PDF兜底] ", log.LstdFlags)
	}
	return &FallbackPDFExtractor{logger: logger}
}

// ExtractText 逐页提取PDF纯文本，页与页之间用空行分隔。
// 单页提取失败只跳过该页不中断，全部失败时返回空字符串。
func (e *FallbackPDFExtractor) ExtractText(filePath string) string {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		e.logger.Printf("兜底提取打开PDF失败: %v", err)
		return ""
	}
	defer f.Close()

	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Printf("第%d页文本提取失败: %v", i, err)
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	if len(pages) == 0 {
		return ""
	}
	e.logger.Printf("兜底提取完成: %d/%d 页有文本", len(pages), total)
	return strings.Join(pages, "\n\n")
}
