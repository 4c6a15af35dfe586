package processor

import (
	"context"
	"errors"
	"testing"

	"resume-matcher-go/internal/parser"
	"resume-matcher-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConverter struct {
	text string
	err  error
}

func (s *stubConverter) ConvertFile(ctx context.Context, filePath string) (string, map[string]interface{}, error) {
	return s.text, nil, s.err
}

func (s *stubConverter) ConvertBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	return s.text, nil, s.err
}

type stubFallback struct {
	text   string
	called bool
}

func (s *stubFallback) ExtractText(filePath string) string {
	s.called = true
	return s.text
}

type stubExtractor struct {
	result  map[string]any
	rawJSON []byte
	err     error
}

func (s *stubExtractor) ExtractStructured(ctx context.Context, markdownText string) (map[string]any, []byte, error) {
	return s.result, s.rawJSON, s.err
}

type stubRepairer struct {
	called bool
}

func (s *stubRepairer) RepairProjects(result map[string]any, rawJSON []byte) map[string]any {
	s.called = true
	return result
}

type stubEmbedder struct {
	resume     *types.NormalizedResume
	extractErr error
	embedOut   []byte
	embedErr   error
}

func (s *stubEmbedder) Embed(pdfData []byte, resumeData map[string]any, sourceResumeID string) ([]byte, error) {
	return s.embedOut, s.embedErr
}

func (s *stubEmbedder) Extract(filename string, pdfData []byte) (*types.NormalizedResume, error) {
	return s.resume, s.extractErr
}

func newTestPipeline(comp Components) *ParsePipeline {
	if comp.Renderer == nil {
		comp.Renderer = parser.NewMarkdownRenderer()
	}
	return NewParsePipeline(&comp, &Settings{})
}

func validResumeMap() map[string]any {
	return map[string]any{
		"personalInfo": map[string]any{
			"name":  "张三",
			"email": "zhangsan@example.com",
			"phone": "13800138000",
		},
		"summary": "资深后端工程师",
		"workExperience": []any{
			map[string]any{
				"title":       "Go开发工程师",
				"company":     "某科技公司",
				"years":       "2020-2023",
				"description": []any{"负责核心服务开发"},
			},
		},
	}
}

func TestConvertDocumentPrimarySuccess(t *testing.T) {
	p := newTestPipeline(Components{
		Converter: &stubConverter{text: "简历文本内容"},
	})

	text, err := p.ConvertDocument(context.Background(), "resume.pdf", []byte("%PDF-1.4 data"))
	require.NoError(t, err)
	assert.Equal(t, "简历文本内容", text)
}

func TestConvertDocumentFallbackOnFailure(t *testing.T) {
	fallback := &stubFallback{text: "兜底提取的文本"}
	p := newTestPipeline(Components{
		Converter: &stubConverter{err: errors.New("tika unavailable")},
		Fallback:  fallback,
	})

	text, err := p.ConvertDocument(context.Background(), "resume.pdf", []byte("%PDF-1.4 data"))
	require.NoError(t, err)
	assert.True(t, fallback.called)
	assert.Equal(t, "兜底提取的文本", text)
}

func TestConvertDocumentFallbackOnEmptyOutput(t *testing.T) {
	fallback := &stubFallback{text: "兜底提取的文本"}
	p := newTestPipeline(Components{
		Converter: &stubConverter{text: "   \n  "},
		Fallback:  fallback,
	})

	text, err := p.ConvertDocument(context.Background(), "scan.pdf", []byte("%PDF-1.4 data"))
	require.NoError(t, err)
	assert.True(t, fallback.called)
	assert.Equal(t, "兜底提取的文本", text)
}

func TestConvertDocumentNoFallbackForNonPDF(t *testing.T) {
	fallback := &stubFallback{text: "不应被调用"}
	p := newTestPipeline(Components{
		Converter: &stubConverter{err: errors.New("conversion failed")},
		Fallback:  fallback,
	})

	_, err := p.ConvertDocument(context.Background(), "resume.docx", []byte("PK..."))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConvertFailed)
	assert.False(t, fallback.called)
}

func TestConvertDocumentAllEmpty(t *testing.T) {
	p := newTestPipeline(Components{
		Converter: &stubConverter{text: ""},
		Fallback:  &stubFallback{text: ""},
	})

	_, err := p.ConvertDocument(context.Background(), "empty.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConvertFailed)
}

func TestExtractResumeSuccess(t *testing.T) {
	repairer := &stubRepairer{}
	p := newTestPipeline(Components{
		Extractor: &stubExtractor{result: validResumeMap(), rawJSON: []byte(`{}`)},
		Repairer:  repairer,
	})

	resume, err := p.ExtractResume(context.Background(), "# 张三\n简历内容")
	require.NoError(t, err)
	assert.True(t, repairer.called)
	assert.Equal(t, "张三", resume.PersonalInfo.Name)
	assert.Len(t, resume.WorkExperience, 1)
}

func TestExtractResumeLLMFailure(t *testing.T) {
	p := newTestPipeline(Components{
		Extractor: &stubExtractor{err: errors.New("model timeout")},
	})

	_, err := p.ExtractResume(context.Background(), "简历内容")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMExtractFailed)
}

func TestExtractResumeValidationFailure(t *testing.T) {
	bad := map[string]any{"workExperience": "不是列表"}
	p := newTestPipeline(Components{
		Extractor: &stubExtractor{result: bad, rawJSON: []byte(`{}`)},
	})

	_, err := p.ExtractResume(context.Background(), "简历内容")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)

	var schemaErr *types.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestParseResumeEmbeddedShortCircuit(t *testing.T) {
	embedded, err := types.Validate(validResumeMap())
	require.NoError(t, err)

	p := newTestPipeline(Components{
		Embedder: &stubEmbedder{resume: embedded},
		// Converter和Extractor为nil，命中短路说明没有触碰它们
	})

	outcome, err := p.ParseResume(context.Background(), "export_123.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, outcome.FromEmbedded)
	assert.Equal(t, "张三", outcome.Resume.PersonalInfo.Name)
	assert.Contains(t, outcome.Markdown, "张三")
}

func TestParseResumeEmbeddedInvalid(t *testing.T) {
	p := newTestPipeline(Components{
		Embedder: &stubEmbedder{extractErr: errors.New("载荷结构不合法")},
	})

	_, err := p.ParseResume(context.Background(), "broken.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestParseResumeFullPath(t *testing.T) {
	p := newTestPipeline(Components{
		Converter: &stubConverter{text: "原始简历文本"},
		Extractor: &stubExtractor{result: validResumeMap(), rawJSON: []byte(`{}`)},
		Repairer:  &stubRepairer{},
		Embedder:  &stubEmbedder{}, // Extract返回nil，走完整路径
	})

	outcome, err := p.ParseResume(context.Background(), "resume.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.False(t, outcome.FromEmbedded)
	assert.Equal(t, "原始简历文本", outcome.SourceText)
	assert.Equal(t, "张三", outcome.Resume.PersonalInfo.Name)
	assert.NotEmpty(t, outcome.Markdown)
}

func TestExportResumeEmbeds(t *testing.T) {
	resume, err := types.Validate(validResumeMap())
	require.NoError(t, err)

	p := newTestPipeline(Components{
		Embedder: &stubEmbedder{embedOut: []byte("stamped-pdf")},
	})

	out, err := p.ExportResume(context.Background(), []byte("%PDF-1.4"), resume, "src-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("stamped-pdf"), out)
}

func TestExportResumeEmbedFailure(t *testing.T) {
	resume, err := types.Validate(validResumeMap())
	require.NoError(t, err)

	p := newTestPipeline(Components{
		Embedder: &stubEmbedder{embedErr: errors.New("pdf damaged")},
	})

	_, err = p.ExportResume(context.Background(), []byte("%PDF-1.4"), resume, "src-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedFailed)
}

func TestExportResumeNilResume(t *testing.T) {
	p := newTestPipeline(Components{
		Embedder: &stubEmbedder{},
	})

	_, err := p.ExportResume(context.Background(), []byte("%PDF-1.4"), nil, "")
	require.Error(t, err)
}
