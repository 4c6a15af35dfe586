package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-matcher-go/internal/types"
)

func fullResume(t *testing.T) *types.NormalizedResume {
	t.Helper()
	resume, err := types.Validate(map[string]any{
		"personalInfo": map[string]any{
			"name":     "陈晓",
			"title":    "资深后端工程师",
			"email":    "chenxiao@example.com",
			"phone":    "13800001111",
			"location": "深圳",
			"github":   "github.com/chenxiao",
		},
		"summary": "八年分布式系统开发经验",
		"workExperience": []any{
			map[string]any{
				"title": "技术专家", "company": "某云厂商", "years": "2020-2024",
				"description": []any{"负责存储网关", "主导容量优化"},
			},
		},
		"education": []any{
			map[string]any{"degree": "计算机硕士", "institution": "某大学", "years": "2013-2016"},
		},
		"personalProjects": []any{
			map[string]any{"name": "开源网关", "role": "维护者", "years": "2021-至今",
				"description": []any{"处理百万级QPS"}},
		},
		"additional": map[string]any{
			"technicalSkills":        []any{"Go", "MySQL", "Kafka"},
			"languages":              []any{"中文", "English"},
			"certificationsTraining": []any{"  ", "CKA"},
			"awards":                 []any{},
		},
	})
	require.NoError(t, err)
	return resume
}

func TestRenderFullResume(t *testing.T) {
	renderer := NewMarkdownRenderer()
	md := renderer.Render(fullResume(t))

	expected := strings.Join([]string{
		"# 陈晓",
		"## 资深后端工程师",
		"chenxiao@example.com | 13800001111 | 深圳 | github.com/chenxiao",
		"",
		"## Summary",
		"八年分布式系统开发经验",
		"",
		"## Experience",
		"- 技术专家 - 某云厂商 (2020-2024)",
		"  - 负责存储网关",
		"  - 主导容量优化",
		"",
		"## Education",
		"- 计算机硕士 - 某大学 (2013-2016)",
		"",
		"## Projects",
		"- 开源网关 - 维护者 (2021-至今)",
		"  - 处理百万级QPS",
		"",
		"## Additional",
		"- Technical Skills: Go, MySQL, Kafka",
		"- Languages: 中文, English",
		"- Certifications: CKA",
	}, "\n")

	assert.Equal(t, expected, md)
}

func TestRenderDeterministic(t *testing.T) {
	renderer := NewMarkdownRenderer()
	resume := fullResume(t)

	first := renderer.Render(resume)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, renderer.Render(resume))
	}
}

func TestRenderEmptyResume(t *testing.T) {
	renderer := NewMarkdownRenderer()
	resume, err := types.Validate(map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, "", renderer.Render(resume))
}

func TestRenderOmitsEmptySections(t *testing.T) {
	renderer := NewMarkdownRenderer()
	resume, err := types.Validate(map[string]any{
		"personalInfo": map[string]any{"name": "赵云"},
		"summary":      "简介",
	})
	require.NoError(t, err)

	md := renderer.Render(resume)
	assert.Contains(t, md, "# 赵云")
	assert.Contains(t, md, "## Summary")
	assert.NotContains(t, md, "## Experience")
	assert.NotContains(t, md, "## Education")
	assert.NotContains(t, md, "## Projects")
	assert.NotContains(t, md, "## Additional")
}

func TestRenderYearsOnlyHeader(t *testing.T) {
	renderer := NewMarkdownRenderer()
	resume, err := types.Validate(map[string]any{
		"workExperience": []any{
			map[string]any{"years": "2022-2023"},
		},
	})
	require.NoError(t, err)

	md := renderer.Render(resume)
	assert.Contains(t, md, "- 2022-2023")
}
