// Package metadata 实现简历结构化数据在PDF文档元数据中的往返嵌入。
// 编码格式固定为 JSON -> gzip -> URL安全base64，保证产物可以安全放进
// PDF信息字典的字符串值里。
package metadata

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// PayloadType 嵌入载荷的类型判别值，用于区分本系统写入的数据和第三方元数据
	PayloadType = "resume_matcher_embedded_resume"
	// PayloadVersion 当前载荷格式版本
	PayloadVersion = "1"

	// DataKey 信息字典中存放编码载荷的键
	DataKey = "ResumeMatcherData"
	// VersionKey 信息字典中存放格式版本的键
	VersionKey = "ResumeMatcherVersion"
)

// EmbeddedPayload PDF元数据中携带的完整载荷
type EmbeddedPayload struct {
	Type           string         `json:"type"`
	Version        string         `json:"version"`
	ResumeData     map[string]any `json:"resume_data"`
	SourceResumeID string         `json:"source_resume_id,omitempty"`
}

// Codec 载荷编解码器。编码是确定性的（JSON键按字典序输出），
// 同一载荷多次编码得到相同字符串。
type Codec struct{}

// NewCodec 创建载荷编解码器
func NewCodec() *Codec {
	return &Codec{}
}

// Encode 将载荷编码为URL安全的base64字符串
func (c *Codec) Encode(payload *EmbeddedPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("载荷不能为空")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化载荷失败: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("压缩载荷失败: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("压缩载荷失败: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode 解码嵌入的载荷字符串。
// 任何一步失败（base64非法、gzip损坏、JSON不是对象）都返回nil，
// 不返回错误：第三方工具写入的同名元数据不应该让提取流程报错。
func (c *Codec) Decode(encoded string) *EmbeddedPayload {
	if encoded == "" {
		return nil
	}

	compressed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil
	}
	defer gz.Close()

	var decoded bytes.Buffer
	if _, err := decoded.ReadFrom(gz); err != nil {
		return nil
	}

	// 先确认顶层是JSON对象再映射到结构体
	var probe map[string]any
	if err := json.Unmarshal(decoded.Bytes(), &probe); err != nil {
		return nil
	}

	var payload EmbeddedPayload
	if err := json.Unmarshal(decoded.Bytes(), &payload); err != nil {
		return nil
	}
	return &payload
}
