package metadata

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"resume-matcher-go/internal/logger"
	"resume-matcher-go/internal/types"
)

// DocumentError 表示PDF文档本身无法解析或写入
type DocumentError struct {
	Stage string
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("PDF文档处理失败 (%s): %v", e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Embedder 负责向PDF信息字典写入和读取简历载荷。
// 写入只改元数据，页面内容保持不变；同名键覆盖，其余已有元数据保留。
type Embedder struct {
	codec  *Codec
	conf   *model.Configuration
	logger zerolog.Logger
}

// NewEmbedder 创建PDF元数据嵌入器
func NewEmbedder() *Embedder {
	conf := model.NewDefaultConfiguration()
	// 宽松校验：简历PDF常由各类工具导出，严格模式会拒掉太多可用文件
	conf.ValidationMode = model.ValidationRelaxed

	return &Embedder{
		codec:  NewCodec(),
		conf:   conf,
		logger: logger.Logger.With().Str("component", "metadata_embedder").Logger(),
	}
}

// Embed 将规范化后的简历数据嵌入PDF元数据，返回新的PDF字节。
// resumeData在嵌入前先做一次规范化。
// sourceResumeID非空时写入载荷，用于回溯原始简历记录。
// PDF无法解析时返回DocumentError。
func (e *Embedder) Embed(pdfData []byte, resumeData map[string]any, sourceResumeID string) ([]byte, error) {
	normalized := types.Normalize(resumeData)

	payload := &EmbeddedPayload{
		Type:           PayloadType,
		Version:        PayloadVersion,
		ResumeData:     normalized,
		SourceResumeID: sourceResumeID,
	}

	encoded, err := e.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("编码简历载荷失败: %w", err)
	}

	properties := map[string]string{
		VersionKey: PayloadVersion,
		DataKey:    encoded,
	}

	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(pdfData), &out, properties, e.conf); err != nil {
		return nil, &DocumentError{Stage: "写入元数据", Err: err}
	}

	e.logger.Debug().
		Int("pdf_size", len(pdfData)).
		Int("payload_size", len(encoded)).
		Str("source_resume_id", sourceResumeID).
		Msg("简历数据已嵌入PDF元数据")

	return out.Bytes(), nil
}

// Extract 从PDF元数据中提取并校验嵌入的简历数据。
// 非本系统写入的数据一律静默返回nil：
// 文件不是PDF、文档解析失败、键缺失或为空白、载荷解码失败、
// 类型判别值不匹配，这些情况都视为"没有嵌入数据"而不是错误。
// 只有判别值确认是本系统写入之后，结构校验失败才作为错误返回。
func (e *Embedder) Extract(filename string, pdfData []byte) (*types.NormalizedResume, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, nil
	}

	properties, err := api.Properties(bytes.NewReader(pdfData), e.conf)
	if err != nil {
		e.logger.Debug().Err(err).Str("filename", filename).Msg("读取PDF元数据失败，按无嵌入数据处理")
		return nil, nil
	}

	encoded := strings.TrimSpace(properties[DataKey])
	if encoded == "" {
		return nil, nil
	}

	payload := e.codec.Decode(encoded)
	if payload == nil {
		e.logger.Debug().Str("filename", filename).Msg("嵌入载荷解码失败，按无嵌入数据处理")
		return nil, nil
	}
	if payload.Type != PayloadType {
		return nil, nil
	}
	if payload.ResumeData == nil {
		return nil, nil
	}

	resume, err := types.Validate(payload.ResumeData)
	if err != nil {
		// 判别值已匹配，说明数据确实是本系统写入的，校验失败必须暴露
		return nil, fmt.Errorf("嵌入简历数据校验失败: %w", err)
	}

	e.logger.Debug().
		Str("filename", filename).
		Str("source_resume_id", payload.SourceResumeID).
		Msg("从PDF元数据提取到嵌入简历数据")

	return resume, nil
}
