package parser

import (
	"fmt"
	"strings"

	"resume-matcher-go/internal/types"
)

// MarkdownRenderer 将规范化简历渲染为确定性的Markdown快照。
// 章节和字段顺序固定，同一份数据任何时候渲染结果完全一致，
// 快照可以直接用于全文索引和重新解析。
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建Markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// contactFields 联系方式的固定输出顺序
var contactFields = []func(*types.PersonalInfo) string{
	func(p *types.PersonalInfo) string { return p.Email },
	func(p *types.PersonalInfo) string { return p.Phone },
	func(p *types.PersonalInfo) string { return p.Location },
	func(p *types.PersonalInfo) string { return p.LinkedIn },
	func(p *types.PersonalInfo) string { return p.GitHub },
	func(p *types.PersonalInfo) string { return p.Website },
}

// Render 渲染简历快照
// 输出结构固定为：姓名、头衔、联系方式行、Summary、Experience、
// Education、Projects、Additional，空章节整体省略
func (r *MarkdownRenderer) Render(resume *types.NormalizedResume) string {
	var lines []string

	personal := &resume.PersonalInfo
	if name := strings.TrimSpace(personal.Name); name != "" {
		lines = append(lines, "# "+name)
	}
	if title := strings.TrimSpace(personal.Title); title != "" {
		lines = append(lines, "## "+title)
	}
	var contacts []string
	for _, field := range contactFields {
		if v := strings.TrimSpace(field(personal)); v != "" {
			contacts = append(contacts, v)
		}
	}
	if len(contacts) > 0 {
		lines = append(lines, strings.Join(contacts, " | "))
	}

	if summary := strings.TrimSpace(resume.Summary); summary != "" {
		lines = append(lines, "", "## Summary", summary)
	}

	lines = appendEntrySection(lines, "Experience", workItems(resume.WorkExperience))
	lines = appendEntrySection(lines, "Education", educationItems(resume.Education))
	lines = appendEntrySection(lines, "Projects", projectItems(resume.PersonalProjects))

	lines = appendAdditional(lines, &resume.Additional)

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// entryItem 章节条目的渲染视图：主字段、副字段、时间段、描述列表
type entryItem struct {
	primary     string
	secondary   string
	years       string
	description []string
}

func workItems(entries []types.WorkEntry) []entryItem {
	items := make([]entryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryItem{e.Title, e.Company, e.Years, e.Description})
	}
	return items
}

func educationItems(entries []types.EducationEntry) []entryItem {
	items := make([]entryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryItem{e.Degree, e.Institution, e.Years, e.Description})
	}
	return items
}

func projectItems(entries []types.ProjectEntry) []entryItem {
	items := make([]entryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryItem{e.Name, e.Role, e.Years, e.Description})
	}
	return items
}

// appendEntrySection 渲染一个条目章节
// 条目行格式为 "- 主字段 - 副字段 (时间段)"，缺失的部分省略
// 描述以两个空格缩进的嵌套列表输出，空白描述行丢弃
func appendEntrySection(lines []string, heading string, items []entryItem) []string {
	if len(items) == 0 {
		return lines
	}
	lines = append(lines, "", "## "+heading)
	for _, item := range items {
		var parts []string
		if p := strings.TrimSpace(item.primary); p != "" {
			parts = append(parts, p)
		}
		if s := strings.TrimSpace(item.secondary); s != "" {
			parts = append(parts, s)
		}
		header := strings.Join(parts, " - ")
		if years := strings.TrimSpace(item.years); years != "" {
			if header != "" {
				header = fmt.Sprintf("%s (%s)", header, years)
			} else {
				header = years
			}
		}
		if header != "" {
			lines = append(lines, "- "+header)
		}
		for _, bullet := range item.description {
			if text := strings.TrimSpace(bullet); text != "" {
				lines = append(lines, "  - "+text)
			}
		}
	}
	return lines
}

// appendAdditional 渲染附加信息章节，四个列表的标签和顺序固定
func appendAdditional(lines []string, additional *types.AdditionalInfo) []string {
	blocks := []struct {
		label  string
		values []string
	}{
		{"Technical Skills", additional.TechnicalSkills},
		{"Languages", additional.Languages},
		{"Certifications", additional.CertificationsTraining},
		{"Awards", additional.Awards},
	}

	wroteHeading := false
	for _, block := range blocks {
		var cleaned []string
		for _, v := range block.values {
			if t := strings.TrimSpace(v); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) == 0 {
			continue
		}
		if !wroteHeading {
			lines = append(lines, "", "## Additional")
			wroteHeading = true
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", block.label, strings.Join(cleaned, ", ")))
	}
	return lines
}
