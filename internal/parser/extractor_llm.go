package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// resumeSchemaExample 提取结果的目标JSON结构示例，直接写进提示词
const resumeSchemaExample = `{
  "personalInfo": {
    "name": "string",
    "title": "string",
    "email": "string",
    "phone": "string",
    "location": "string",
    "linkedin": "string",
    "github": "string",
    "website": "string"
  },
  "summary": "string",
  "workExperience": [
    {"title": "string", "company": "string", "years": "string", "description": ["string"]}
  ],
  "education": [
    {"degree": "string", "institution": "string", "years": "string", "description": ["string"]}
  ],
  "personalProjects": [
    {"id": 1, "name": "string", "role": "string", "years": "string",
     "github": "string或null", "website": "string或null", "description": ["string"]}
  ],
  "additional": {
    "technicalSkills": ["string"],
    "languages": ["string"],
    "certificationsTraining": ["string"],
    "awards": ["string"]
  },
  "customSections": {}
}`

// LLMResumeExtractor 使用LLM从简历Markdown文本中提取结构化数据
type LLMResumeExtractor struct {
	// LLM模型接口
	llmModel model.ToolCallingChatModel

	// 提示词模板
	promptTemplate string

	logger *log.Logger
}

// LLMExtractorOption 是LLM提取器的配置选项
type LLMExtractorOption func(*LLMResumeExtractor)

// WithExtractorPrompt 设置自定义提示词模板
func WithExtractorPrompt(prompt string) LLMExtractorOption {
	return func(e *LLMResumeExtractor) {
		e.promptTemplate = prompt
	}
}

// NewLLMResumeExtractor 创建新的LLM简历提取器
func NewLLMResumeExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...LLMExtractorOption) *LLMResumeExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	extractor := &LLMResumeExtractor{
		llmModel: llmModel,
		logger:   logger,
	}

	// 应用选项
	for _, opt := range options {
		opt(extractor)
	}

	if extractor.promptTemplate == "" {
		extractor.generatePromptTemplate()
	}

	return extractor
}

// 生成提示词模板
func (e *LLMResumeExtractor) generatePromptTemplate() {
	e.promptTemplate = `你是一个专业的简历解析专家，任务是把简历文本转换为结构化JSON。

核心任务：
1. 提取个人信息：姓名、头衔、邮箱、电话、所在地、linkedin、github、个人网站。
2. 提取个人简介(summary)：如果简历里有概述性段落。
3. 提取工作经历(workExperience)：每段经历包含职位(title)、公司(company)、时间段(years)和职责描述列表(description)。
4. 提取教育经历(education)：学位(degree)、学校(institution)、时间段(years)和描述列表。
5. 提取个人项目(personalProjects)：项目名(name)、角色(role)、时间段(years)、github和website链接、描述列表。项目章节必须放进personalProjects，不要放进customSections。
6. 提取附加信息(additional)：技术技能(technicalSkills)、语言(languages)、证书培训(certificationsTraining)、获奖(awards)，各自是字符串列表。
7. 无法归类的章节放进customSections：键为原始章节标题，值为 {"title": "...", "items": [...]} 形式。

重要指令：
- 信息缺失处理：缺失的字符串字段设为空字符串，缺失的列表设为空数组。请勿编造信息。
- 时间段保留原文写法，不要改写格式。
- 描述列表逐条拆分，每条一个字符串，去掉项目符号前缀。
- 简历语言保持原文，不要翻译。

JSON输出格式规范：
%s

请严格按照上述JSON格式规范输出，不要包含任何解释性文字或Markdown标记。确保JSON的完整性和可解析性。
接下来，你将收到一份简历文本，请对其进行分析。`
}

// ExtractStructured 使用LLM解析简历文本，返回结构化mapping和原始JSON文本。
// 原始JSON保留了customSections的键出现顺序，供后续的章节修复使用。
func (e *LLMResumeExtractor) ExtractStructured(ctx context.Context, markdownText string) (map[string]any, []byte, error) {
	systemPromptContent := fmt.Sprintf(e.promptTemplate, resumeSchemaExample)

	// 调用LLM
	response, err := e.callLLM(ctx, systemPromptContent, markdownText)
	if err != nil {
		return nil, nil, fmt.Errorf("LLM调用失败: %w", err)
	}

	// 提取JSON部分（防止LLM返回的不是纯JSON）
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		e.logger.Printf("无法从LLM响应中提取有效的JSON。原始响应: %.200s", response)
		return nil, nil, fmt.Errorf("无法从LLM响应中提取有效的JSON")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, nil, fmt.Errorf("解析JSON失败: %w", err)
	}

	return result, []byte(jsonStr), nil
}

// callLLM 调用LLM处理提示词
func (e *LLMResumeExtractor) callLLM(ctx context.Context, systemContent string, userContent string) (string, error) {
	// 创建消息列表，包含系统提示和用户提示
	messages := []*einoschema.Message{
		{Role: "system", Content: systemContent},
		{Role: "user", Content: userContent},
	}

	// 设置最大重试次数
	maxRetries := 2
	retryDelay := 2 * time.Second

	var response *einoschema.Message
	var err error

	e.logger.Printf("[LLMResumeExtractor] System Prompt: %.50s...", systemContent)
	e.logger.Printf("[LLMResumeExtractor] User Prompt: %.50s...", userContent)

	// 重试逻辑
	for retry := 0; retry <= maxRetries; retry++ {
		// 如果是重试，则先检查上下文是否已取消
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				// 增加退避时间
				retryDelay *= 2
				e.logger.Printf("重试LLM调用 (第%d次)", retry)
			}
		}

		// 创建带超时的上下文，继承上游的取消信号
		callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)

		// 调用LLM
		response, err = e.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break // 调用成功，退出重试循环
		}

		// 判断是否应该重试
		if !isRetryableError(err) || retry >= maxRetries {
			e.logger.Printf("[LLMResumeExtractor] LLM call final error after retries: %v", err)
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	e.logger.Printf("[LLMResumeExtractor] LLM Response: %.50s", response.Content)
	return response.Content, nil
}

// isRetryableError 判断错误是否应该重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 检查常见的可重试错误
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// 从文本中提取JSON
func extractJSON(text string) string {
	// 尝试使用正则表达式提取 ```json ... ``` 代码块中的内容
	re := regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// 如果正则没有匹配到，尝试寻找 JSON 的开始和结束位置作为回退
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	// 查找匹配的}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}
