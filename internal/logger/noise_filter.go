package logger // 日志输出的噪声过滤

import (
	"bytes"
	"io"
)

// PDF解析库在遇到非标准字体或交叉引用表时会输出大量告警，
// 这些内容对业务排查没有价值，默认在日志出口处按行过滤掉
var defaultNoisePatterns = []string{
	"Ignoring wrong pointing object",
	"font bounding box",
	"invalid font",
	"unsupported font",
}

// NoiseFilterWriter 按行过滤包含指定子串的日志输出
type NoiseFilterWriter struct {
	next     io.Writer
	patterns [][]byte
	buf      bytes.Buffer
}

// NewNoiseFilterWriter 创建噪声过滤写入器
// patterns为空时使用默认的PDF解析噪声列表
func NewNoiseFilterWriter(next io.Writer, patterns []string) *NoiseFilterWriter {
	if len(patterns) == 0 {
		patterns = defaultNoisePatterns
	}
	raw := make([][]byte, 0, len(patterns))
	for _, p := range patterns {
		if p != "" {
			raw = append(raw, []byte(p))
		}
	}
	return &NoiseFilterWriter{next: next, patterns: raw}
}

// Write 实现io.Writer，按行缓冲后逐行判断是否放行
func (w *NoiseFilterWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// 不完整的行放回缓冲区等待后续写入
			w.buf.Write(line)
			break
		}
		if w.noisy(line) {
			continue
		}
		if _, err := w.next.Write(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (w *NoiseFilterWriter) noisy(line []byte) bool {
	for _, pattern := range w.patterns {
		if bytes.Contains(line, pattern) {
			return true
		}
	}
	return false
}
