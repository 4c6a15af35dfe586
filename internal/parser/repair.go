package parser

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"resume-matcher-go/internal/logger"
	"resume-matcher-go/internal/types"
)

// projectSectionHints 判定自由章节是否是项目章节的中英文子串线索
var projectSectionHints = []string{
	"project",
	"projects",
	"project experience",
	"personal projects",
	"side projects",
	"portfolio",
	"项目",
	"项目经历",
	"项目经验",
	"个人项目",
	"作品",
}

// SectionRepairHeuristic 从customSections中找回被LLM错放的项目经历。
// LLM偶尔会把项目章节归到自由章节里而不是personalProjects，
// 该启发式在personalProjects为空时按章节键名和标签线索识别项目章节，
// 把其中的条目提升为标准项目条目。
// 修复是增量的：customSections原样保留，只补personalProjects。
type SectionRepairHeuristic struct {
	logger zerolog.Logger
}

// NewSectionRepairHeuristic 创建章节修复启发式
func NewSectionRepairHeuristic() *SectionRepairHeuristic {
	return &SectionRepairHeuristic{
		logger: logger.Logger.With().Str("component", "section_repair").Logger(),
	}
}

// RepairProjects 对LLM提取结果执行项目章节修复，返回新的mapping，输入不被修改。
// rawJSON是提取结果的原始JSON文本，用于还原customSections的键出现顺序；
// 传nil时退化为按键名排序，保证结果仍然是确定性的。
// personalProjects已非空时原样返回，不做任何事。
func (h *SectionRepairHeuristic) RepairProjects(result map[string]any, rawJSON []byte) map[string]any {
	if projects, ok := result["personalProjects"].([]any); ok && len(projects) > 0 {
		return result
	}

	customSections, ok := result["customSections"].(map[string]any)
	if !ok || len(customSections) == 0 {
		return result
	}

	keys := customSectionOrder(rawJSON)
	if keys == nil {
		keys = make([]string, 0, len(customSections))
		for k := range customSections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var recovered []any
	for _, key := range keys {
		value, present := customSections[key]
		if !present {
			continue
		}
		if !looksLikeProjectSection(key, value) {
			continue
		}
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		items, ok := section["items"].([]any)
		if !ok {
			continue
		}
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(firstNonEmpty(item, "name", "title"))
			if name == "" {
				continue
			}
			recovered = append(recovered, map[string]any{
				// 序号按所有匹配章节拼接后的位置从1开始编
				"id":   float64(len(recovered) + 1),
				"name": name,
				"role": strings.TrimSpace(firstNonEmpty(item, "role", "subtitle")),
				"years": strings.TrimSpace(types.Stringify(item["years"])),
				// 链接字段原样透传，包括null
				"github":      item["github"],
				"website":     item["website"],
				"description": types.CoerceDescription(item["description"]),
			})
		}
	}

	if len(recovered) == 0 {
		return result
	}

	out := make(map[string]any, len(result))
	for k, v := range result {
		out[k] = v
	}
	out["personalProjects"] = recovered

	h.logger.Info().Int("recovered", len(recovered)).Msg("从customSections找回项目经历条目")
	return out
}

// looksLikeProjectSection 判断章节是否是项目章节：
// 先看章节键名，再看章节的title/label标签。
// 子串匹配会把"项目管理办公室"这类键也认成项目章节，
// 换成更严格的匹配会漏掉太多真实变体，维持现状。
func looksLikeProjectSection(key string, value any) bool {
	lowered := strings.ToLower(strings.TrimSpace(key))
	for _, hint := range projectSectionHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}

	section, ok := value.(map[string]any)
	if !ok {
		return false
	}
	label := strings.ToLower(firstNonEmpty(section, "title", "label"))
	if label == "" {
		return false
	}
	for _, hint := range projectSectionHints {
		if strings.Contains(label, hint) {
			return true
		}
	}
	return false
}

// firstNonEmpty 返回第一个非空字符串字段的值
func firstNonEmpty(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := types.Stringify(m[key]); s != "" {
			return s
		}
	}
	return ""
}

// customSectionOrder 从原始JSON文本中还原customSections对象的键出现顺序。
// Go的map不保序，而修复结果的序号依赖章节顺序，所以需要回到原文扫描。
// 解析失败或找不到customSections时返回nil。
func customSectionOrder(rawJSON []byte) []string {
	if len(rawJSON) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(rawJSON))
	// 定位顶层对象
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}
		if key != "customSections" {
			// 跳过整个值
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}

		open, err := dec.Token()
		if err != nil {
			return nil
		}
		if delim, ok := open.(json.Delim); !ok || delim != '{' {
			return nil
		}
		var keys []string
		for dec.More() {
			sectionTok, err := dec.Token()
			if err != nil {
				return nil
			}
			sectionKey, ok := sectionTok.(string)
			if !ok {
				return nil
			}
			keys = append(keys, sectionKey)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}
		return keys
	}
	return nil
}
