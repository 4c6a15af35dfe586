package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestRepairRecoversProjectsFromCustomSections(t *testing.T) {
	raw := `{
		"personalProjects": [],
		"customSections": {
			"项目经历": {
				"items": [
					{"name": "检索引擎", "role": "核心开发", "years": "2022",
					 "github": null, "description": "实现倒排索引\n支持中文分词"},
					{"title": "监控平台", "subtitle": "负责人", "description": ["告警聚合"]}
				]
			}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	projects, ok := repaired["personalProjects"].([]any)
	require.True(t, ok)
	require.Len(t, projects, 2)

	first := projects[0].(map[string]any)
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, "检索引擎", first["name"])
	assert.Equal(t, "核心开发", first["role"])
	assert.Equal(t, "2022", first["years"])
	assert.Nil(t, first["github"])
	assert.Equal(t, []any{"实现倒排索引", "支持中文分词"}, first["description"])

	second := projects[1].(map[string]any)
	assert.Equal(t, float64(2), second["id"])
	// name缺失时回退到title，role缺失时回退到subtitle
	assert.Equal(t, "监控平台", second["name"])
	assert.Equal(t, "负责人", second["role"])
}

func TestRepairIDsSpanMultipleSections(t *testing.T) {
	raw := `{
		"customSections": {
			"Side Projects": {"items": [{"name": "工具A"}, {"name": "工具B"}]},
			"作品集": {"items": [{"name": "工具C"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	projects := repaired["personalProjects"].([]any)
	require.Len(t, projects, 3)
	// 序号按原始JSON中章节出现顺序的拼接位置编号
	assert.Equal(t, "工具A", projects[0].(map[string]any)["name"])
	assert.Equal(t, float64(1), projects[0].(map[string]any)["id"])
	assert.Equal(t, "工具B", projects[1].(map[string]any)["name"])
	assert.Equal(t, float64(2), projects[1].(map[string]any)["id"])
	assert.Equal(t, "工具C", projects[2].(map[string]any)["name"])
	assert.Equal(t, float64(3), projects[2].(map[string]any)["id"])
}

func TestRepairSkipsWhenProjectsPresent(t *testing.T) {
	raw := `{
		"personalProjects": [{"name": "已有项目"}],
		"customSections": {
			"projects": {"items": [{"name": "不该被提取"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	projects := repaired["personalProjects"].([]any)
	require.Len(t, projects, 1)
	assert.Equal(t, "已有项目", projects[0].(map[string]any)["name"])
}

func TestRepairMatchesSectionLabel(t *testing.T) {
	raw := `{
		"customSections": {
			"其他": {"title": "个人项目", "items": [{"name": "小工具"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	projects := repaired["personalProjects"].([]any)
	require.Len(t, projects, 1)
}

func TestRepairIgnoresNonProjectSections(t *testing.T) {
	raw := `{
		"customSections": {
			"兴趣爱好": {"items": [{"name": "摄影"}]},
			"志愿活动": {"items": [{"name": "社区服务"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	_, present := repaired["personalProjects"]
	assert.False(t, present)
}

func TestRepairSkipsNamelessItems(t *testing.T) {
	raw := `{
		"customSections": {
			"projects": {"items": [{"role": "只有角色没有名字"}, {"name": "有名字"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	projects := repaired["personalProjects"].([]any)
	require.Len(t, projects, 1)
	assert.Equal(t, "有名字", projects[0].(map[string]any)["name"])
	assert.Equal(t, float64(1), projects[0].(map[string]any)["id"])
}

func TestRepairLeavesCustomSectionsUntouched(t *testing.T) {
	raw := `{
		"customSections": {
			"项目经验": {"items": [{"name": "项目X"}]}
		}
	}`
	result := decodeJSON(t, raw)

	repaired := NewSectionRepairHeuristic().RepairProjects(result, []byte(raw))

	// 原mapping不被修改
	_, present := result["personalProjects"]
	assert.False(t, present)

	sections := repaired["customSections"].(map[string]any)
	section := sections["项目经验"].(map[string]any)
	items := section["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "项目X", items[0].(map[string]any)["name"])
}

func TestCustomSectionOrder(t *testing.T) {
	raw := []byte(`{"summary": "x", "customSections": {"b章节": {}, "a章节": {}, "c章节": {}}}`)
	keys := customSectionOrder(raw)
	assert.Equal(t, []string{"b章节", "a章节", "c章节"}, keys)

	assert.Nil(t, customSectionOrder(nil))
	assert.Nil(t, customSectionOrder([]byte("not json")))
	assert.Nil(t, customSectionOrder([]byte(`{"summary": "没有自由章节"}`)))
}
