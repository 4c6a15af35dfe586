package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PersonalInfo 简历头部的个人信息
// 所有字段缺失时规范化为空字符串，渲染层不需要再做nil判断
type PersonalInfo struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	LinkedIn string `json:"linkedin"`
	GitHub   string `json:"github"`
	Website  string `json:"website"`
}

// WorkEntry 工作经历条目
type WorkEntry struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Years       string   `json:"years"`
	Description []string `json:"description"`
}

// EducationEntry 教育经历条目
type EducationEntry struct {
	Degree      string   `json:"degree"`
	Institution string   `json:"institution"`
	Years       string   `json:"years"`
	Description []string `json:"description"`
}

// ProjectEntry 个人项目条目
// ID 为1起始的序号，从customSections恢复的项目在恢复时赋值
// GitHub/Website 使用指针以保留原始数据中的null
type ProjectEntry struct {
	ID          int      `json:"id,omitempty"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Years       string   `json:"years"`
	GitHub      *string  `json:"github"`
	Website     *string  `json:"website"`
	Description []string `json:"description"`
}

// AdditionalInfo 技能/语言/证书/奖项等附加信息
// 各列表保序不去重，空白项在渲染时丢弃
type AdditionalInfo struct {
	TechnicalSkills        []string `json:"technicalSkills"`
	Languages              []string `json:"languages"`
	CertificationsTraining []string `json:"certificationsTraining"`
	Awards                 []string `json:"awards"`
}

// NormalizedResume 规范化后的结构化简历，是整个系统的核心数据模型
// 由解析管线（LLM提取、章节修复、结构校验）或PDF内嵌元数据解码两条路径产生
// 一旦通过Validate产生即视为不可变，任何修复都在原始mapping上生成新值
type NormalizedResume struct {
	PersonalInfo     PersonalInfo     `json:"personalInfo"`
	Summary          string           `json:"summary"`
	WorkExperience   []WorkEntry      `json:"workExperience"`
	Education        []EducationEntry `json:"education"`
	PersonalProjects []ProjectEntry   `json:"personalProjects"`
	Additional       AdditionalInfo   `json:"additional"`
	// CustomSections 保留LLM输出中无法归类的自由章节，键为原始章节标签（可能是非英文）
	CustomSections map[string]any `json:"customSections"`
}

// SchemaError 结构化数据不符合NormalizedResume形状时返回的校验错误
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("简历数据结构校验失败 (字段:%s): %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("简历数据结构校验失败: %s", e.Reason)
}

// personalInfoFields personalInfo中规范化为字符串的字段集合
var personalInfoFields = []string{
	"name", "title", "email", "phone", "location", "linkedin", "github", "website",
}

// additionalListFields additional中规范化为字符串列表的字段集合
var additionalListFields = []string{
	"technicalSkills", "languages", "certificationsTraining", "awards",
}

// entryListFields 顶层的条目列表字段集合
var entryListFields = []string{"workExperience", "education", "personalProjects"}

// Normalize 对原始mapping执行一次显式的规范化遍历：
// 缺失或null的字段补默认值，标量统一转字符串，description统一转字符串列表。
// 规范化只在出入口边界（嵌入、提取、管线输出）各执行一次，
// 核心逻辑不再做零散的存在性判断。
// 输入不会被修改，返回新的mapping。
func Normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+7)
	for k, v := range raw {
		out[k] = v
	}

	personal := make(map[string]any)
	if pi, ok := out["personalInfo"].(map[string]any); ok {
		for _, field := range personalInfoFields {
			personal[field] = Stringify(pi[field])
		}
		// 保留未知的附加字段，统一转字符串
		for k, v := range pi {
			if _, known := personal[k]; !known {
				personal[k] = Stringify(v)
			}
		}
	} else {
		for _, field := range personalInfoFields {
			personal[field] = ""
		}
	}
	out["personalInfo"] = personal

	out["summary"] = Stringify(out["summary"])

	for _, field := range entryListFields {
		out[field] = normalizeEntryList(out[field])
	}

	additional := make(map[string]any)
	if add, ok := out["additional"].(map[string]any); ok {
		for _, field := range additionalListFields {
			additional[field] = normalizeStringList(add[field])
		}
	} else {
		for _, field := range additionalListFields {
			additional[field] = []any{}
		}
	}
	out["additional"] = additional

	if _, ok := out["customSections"].(map[string]any); !ok {
		out["customSections"] = map[string]any{}
	}

	return out
}

// normalizeEntryList 规范化条目列表：非列表转为空列表，
// mapping条目的description统一为字符串列表，非mapping条目原样保留交给校验
func normalizeEntryList(v any) []any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		cloned := make(map[string]any, len(entry))
		for k, val := range entry {
			cloned[k] = val
		}
		cloned["description"] = CoerceDescription(cloned["description"])
		out = append(out, cloned)
	}
	return out
}

// normalizeStringList 规范化字符串列表字段：保序，标量转字符串
func normalizeStringList(v any) []any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, Stringify(item))
	}
	return out
}

// CoerceDescription 将description字段统一为有序字符串列表：
// 单个字符串按行拆分并丢弃空白行，已是列表则逐项转字符串，其他类型转为空列表
func CoerceDescription(v any) []any {
	switch d := v.(type) {
	case string:
		var lines []any
		for _, line := range strings.Split(d, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if lines == nil {
			return []any{}
		}
		return lines
	case []any:
		out := make([]any, 0, len(d))
		for _, item := range d {
			out = append(out, Stringify(item))
		}
		return out
	default:
		return []any{}
	}
}

// Stringify 将任意标量转为字符串，nil转为空字符串
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// JSON数字解码后统一是float64，整数值去掉小数部分
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Validate 对规范化后的mapping做结构校验并转换为类型化的NormalizedResume。
// 容器类型不匹配（列表字段不是列表、条目不是mapping等）返回SchemaError。
func Validate(raw map[string]any) (*NormalizedResume, error) {
	normalized := Normalize(raw)

	for _, field := range entryListFields {
		items, ok := normalized[field].([]any)
		if !ok {
			return nil, &SchemaError{Field: field, Reason: "字段必须是列表"}
		}
		for i, item := range items {
			if _, ok := item.(map[string]any); !ok {
				return nil, &SchemaError{
					Field:  fmt.Sprintf("%s[%d]", field, i),
					Reason: "条目必须是mapping",
				}
			}
		}
	}

	// 通过JSON再编码映射到严格的结构体
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("序列化失败: %v", err)}
	}
	var resume NormalizedResume
	if err := json.Unmarshal(data, &resume); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("结构不匹配: %v", err)}
	}

	// 列表字段保证非nil，序列化时稳定输出空数组
	if resume.WorkExperience == nil {
		resume.WorkExperience = []WorkEntry{}
	}
	if resume.Education == nil {
		resume.Education = []EducationEntry{}
	}
	if resume.PersonalProjects == nil {
		resume.PersonalProjects = []ProjectEntry{}
	}
	if resume.Additional.TechnicalSkills == nil {
		resume.Additional.TechnicalSkills = []string{}
	}
	if resume.Additional.Languages == nil {
		resume.Additional.Languages = []string{}
	}
	if resume.Additional.CertificationsTraining == nil {
		resume.Additional.CertificationsTraining = []string{}
	}
	if resume.Additional.Awards == nil {
		resume.Additional.Awards = []string{}
	}
	if resume.CustomSections == nil {
		resume.CustomSections = map[string]any{}
	}

	return &resume, nil
}

// ToMap 将类型化简历转回规范化mapping，用于嵌入PDF元数据等边界场景
func (r *NormalizedResume) ToMap() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("序列化简历失败: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("反序列化简历失败: %w", err)
	}
	return Normalize(m), nil
}
