package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	out := Normalize(map[string]any{})

	pi, ok := out["personalInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "", pi["name"])
	assert.Equal(t, "", pi["github"])
	assert.Equal(t, "", out["summary"])
	assert.Equal(t, []any{}, out["workExperience"])
	assert.Equal(t, []any{}, out["education"])
	assert.Equal(t, []any{}, out["personalProjects"])

	add, ok := out["additional"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, add["technicalSkills"])
	assert.Equal(t, map[string]any{}, out["customSections"])
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := map[string]any{
		"summary": nil,
		"workExperience": []any{
			map[string]any{"title": "工程师", "description": "第一行\n第二行"},
		},
	}

	_ = Normalize(raw)

	// 原始mapping保持不变
	assert.Nil(t, raw["summary"])
	entry := raw["workExperience"].([]any)[0].(map[string]any)
	assert.Equal(t, "第一行\n第二行", entry["description"])
}

func TestNormalizeCoercesDescription(t *testing.T) {
	out := Normalize(map[string]any{
		"workExperience": []any{
			map[string]any{"title": "a", "description": "line one\n\n  line two  \n"},
			map[string]any{"title": "b", "description": []any{"x", float64(3)}},
			map[string]any{"title": "c", "description": float64(7)},
		},
	})

	entries := out["workExperience"].([]any)
	assert.Equal(t, []any{"line one", "line two"}, entries[0].(map[string]any)["description"])
	assert.Equal(t, []any{"x", "3"}, entries[1].(map[string]any)["description"])
	assert.Equal(t, []any{}, entries[2].(map[string]any)["description"])
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := map[string]any{
		"personalInfo": map[string]any{"name": "张三", "phone": float64(13800001111)},
		"summary":      "后端工程师",
		"additional":   map[string]any{"languages": []any{"中文", "English"}},
	}

	once := Normalize(raw)
	twice := Normalize(once)

	onceJSON, err := json.Marshal(once)
	require.NoError(t, err)
	twiceJSON, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(onceJSON), string(twiceJSON))
}

func TestValidateAcceptsMinimalData(t *testing.T) {
	resume, err := Validate(map[string]any{
		"personalInfo": map[string]any{"name": "李四"},
	})

	require.NoError(t, err)
	assert.Equal(t, "李四", resume.PersonalInfo.Name)
	assert.NotNil(t, resume.WorkExperience)
	assert.NotNil(t, resume.PersonalProjects)
	assert.NotNil(t, resume.Additional.Awards)
	assert.NotNil(t, resume.CustomSections)
}

func TestValidateRejectsNonListField(t *testing.T) {
	_, err := Validate(map[string]any{
		"workExperience": "不是列表",
	})

	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "workExperience", schemaErr.Field)
}

func TestValidateRejectsNonMappingEntry(t *testing.T) {
	_, err := Validate(map[string]any{
		"education": []any{"只是一个字符串"},
	})

	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "education[0]", schemaErr.Field)
}

func TestValidatePreservesProjectNullLinks(t *testing.T) {
	resume, err := Validate(map[string]any{
		"personalProjects": []any{
			map[string]any{"name": "检索引擎", "github": nil, "website": "https://example.com"},
		},
	})

	require.NoError(t, err)
	require.Len(t, resume.PersonalProjects, 1)
	assert.Nil(t, resume.PersonalProjects[0].GitHub)
	require.NotNil(t, resume.PersonalProjects[0].Website)
	assert.Equal(t, "https://example.com", *resume.PersonalProjects[0].Website)
}

func TestToMapRoundTrip(t *testing.T) {
	resume, err := Validate(map[string]any{
		"personalInfo": map[string]any{"name": "王五", "email": "w@example.com"},
		"summary":      "数据工程师",
		"workExperience": []any{
			map[string]any{"title": "工程师", "company": "某公司", "years": "2020-2024",
				"description": []any{"负责数据平台"}},
		},
	})
	require.NoError(t, err)

	m, err := resume.ToMap()
	require.NoError(t, err)

	again, err := Validate(m)
	require.NoError(t, err)
	assert.Equal(t, resume, again)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, "true", Stringify(true))
}
