package metadata

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher-go/internal/types"
)

// minimalPDF 单页空白PDF，交叉引用偏移量经过手工核对
const minimalPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n203\n%%EOF\n"

func sampleResumeData() map[string]any {
	return map[string]any{
		"personalInfo": map[string]any{
			"name":  "张三",
			"email": "zhangsan@example.com",
		},
		"summary": "五年经验的后端工程师",
		"workExperience": []any{
			map[string]any{
				"title":       "高级工程师",
				"company":     "某科技公司",
				"years":       "2021-2024",
				"description": []any{"负责核心服务开发"},
			},
		},
	}
}

func TestEmbedAndExtractRoundTrip(t *testing.T) {
	embedder := NewEmbedder()

	stamped, err := embedder.Embed([]byte(minimalPDF), sampleResumeData(), "resume-42")
	require.NoError(t, err)
	require.NotEmpty(t, stamped)

	resume, err := embedder.Extract("document.pdf", stamped)
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, "张三", resume.PersonalInfo.Name)
	assert.Equal(t, "五年经验的后端工程师", resume.Summary)
	require.Len(t, resume.WorkExperience, 1)
	assert.Equal(t, "高级工程师", resume.WorkExperience[0].Title)
}

func TestEmbedInvalidPDF(t *testing.T) {
	embedder := NewEmbedder()

	_, err := embedder.Embed([]byte("这不是一个PDF文件"), sampleResumeData(), "")
	require.Error(t, err)
	var docErr *DocumentError
	assert.ErrorAs(t, err, &docErr)
}

func TestExtractNonPDFFilename(t *testing.T) {
	embedder := NewEmbedder()

	resume, err := embedder.Extract("resume.docx", []byte(minimalPDF))
	require.NoError(t, err)
	assert.Nil(t, resume)
}

func TestExtractUnparseableBytes(t *testing.T) {
	embedder := NewEmbedder()

	// 提取路径上文档解析失败不是错误，按无嵌入数据处理
	resume, err := embedder.Extract("resume.pdf", []byte("损坏的内容"))
	require.NoError(t, err)
	assert.Nil(t, resume)
}

func TestExtractWithoutEmbeddedData(t *testing.T) {
	embedder := NewEmbedder()

	resume, err := embedder.Extract("resume.pdf", []byte(minimalPDF))
	require.NoError(t, err)
	assert.Nil(t, resume)
}

func TestExtractIgnoresForeignPayload(t *testing.T) {
	embedder := NewEmbedder()

	// 第三方工具写入了同名键但类型判别值不同
	codec := NewCodec()
	encoded, err := codec.Encode(&EmbeddedPayload{
		Type:       "some_other_tool",
		Version:    "9",
		ResumeData: map[string]any{"summary": "不相干的数据"},
	})
	require.NoError(t, err)

	stamped := stampRaw(t, embedder, map[string]string{
		DataKey:    encoded,
		VersionKey: "9",
	})

	resume, err := embedder.Extract("resume.pdf", stamped)
	require.NoError(t, err)
	assert.Nil(t, resume)
}

func TestExtractRejectsInvalidResumeData(t *testing.T) {
	embedder := NewEmbedder()

	// 判别值匹配但resume_data形状非法，必须报错而不是静默跳过
	codec := NewCodec()
	encoded, err := codec.Encode(&EmbeddedPayload{
		Type:       PayloadType,
		Version:    PayloadVersion,
		ResumeData: map[string]any{"workExperience": "不是列表"},
	})
	require.NoError(t, err)

	stamped := stampRaw(t, embedder, map[string]string{
		DataKey:    encoded,
		VersionKey: PayloadVersion,
	})

	_, err = embedder.Extract("resume.pdf", stamped)
	require.Error(t, err)
	var schemaErr *types.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestEmbedOverwritesPreviousPayload(t *testing.T) {
	embedder := NewEmbedder()

	first, err := embedder.Embed([]byte(minimalPDF), sampleResumeData(), "old-id")
	require.NoError(t, err)

	updated := sampleResumeData()
	updated["summary"] = "更新后的简介"
	second, err := embedder.Embed(first, updated, "new-id")
	require.NoError(t, err)

	resume, err := embedder.Extract("resume.pdf", second)
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, "更新后的简介", resume.Summary)
}

// stampRaw 绕过Embed直接写入原始属性，用于构造异常载荷场景
func stampRaw(t *testing.T, e *Embedder, properties map[string]string) []byte {
	t.Helper()

	var out bytes.Buffer
	err := api.AddProperties(bytes.NewReader([]byte(minimalPDF)), &out, properties, e.conf)
	require.NoError(t, err)
	return out.Bytes()
}
