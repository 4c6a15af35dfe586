package parser

import (
	"context"
	"log"
	"os"
	"testing"

	"resume-matcher-go/internal/agent"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用LLM模型模拟器
type MockLLMModel struct {
	// 模拟响应
	mockResponse string
	// 记录绑定的工具 (可选，用于测试)
	boundTools []*schema.ToolInfo
	// 用于测试的错误
	Err error
	// 用于测试的调用次数
	CallCount int
	// 用于测试的成功调用次数
	SucceedAfterNCalls int
}

// Generate 实现model.ChatModel接口
func (m *MockLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.CallCount++
	if m.Err != nil && (m.SucceedAfterNCalls == 0 || m.CallCount <= m.SucceedAfterNCalls) {
		return nil, m.Err
	}
	// 返回预设的模拟响应
	return &schema.Message{
		Role:    "assistant",
		Content: m.mockResponse,
	}, nil
}

// Stream 实现model.ChatModel接口
func (m *MockLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	// 测试中不需要流式响应
	return nil, nil
}

// BindTools 实现model.ChatModel接口
func (m *MockLLMModel) BindTools(tools []*schema.ToolInfo) error {
	// 空实现，测试中不需要工具绑定
	m.boundTools = tools
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (m *MockLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	log.Printf("[MockLLMModel] WithTools called with %d tools. Will call BindTools.", len(tools))
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

const mockResumeResponse = `{
	"personalInfo": {
		"name": "张三",
		"title": "后端开发工程师",
		"email": "zhangsan@example.com",
		"phone": "13800138000",
		"location": "北京",
		"linkedin": "",
		"github": "github.com/zhangsan",
		"website": ""
	},
	"summary": "三年Go后端开发经验",
	"workExperience": [
		{"title": "后端工程师", "company": "某互联网公司", "years": "2021-2024",
		 "description": ["负责订单服务", "优化查询性能"]}
	],
	"education": [
		{"degree": "计算机本科", "institution": "某大学", "years": "2017-2021", "description": []}
	],
	"personalProjects": [],
	"additional": {
		"technicalSkills": ["Go", "MySQL", "Redis"],
		"languages": ["中文"],
		"certificationsTraining": [],
		"awards": []
	},
	"customSections": {
		"开源项目": {"items": [{"name": "轻量RPC框架"}]}
	}
}`

func TestExtractStructured(t *testing.T) {
	mockModel := &MockLLMModel{mockResponse: mockResumeResponse}
	extractor := NewLLMResumeExtractor(mockModel, nil)

	result, rawJSON, err := extractor.ExtractStructured(context.Background(), "# 张三\n后端开发工程师")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, rawJSON)

	personal, ok := result["personalInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "张三", personal["name"])
	assert.Equal(t, "github.com/zhangsan", personal["github"])

	work, ok := result["workExperience"].([]any)
	require.True(t, ok)
	require.Len(t, work, 1)

	// 原始JSON保留customSections键顺序
	assert.Equal(t, []string{"开源项目"}, customSectionOrder(rawJSON))
}

func TestExtractStructuredWithMarkdownFence(t *testing.T) {
	mockModel := &MockLLMModel{
		mockResponse: "以下是解析结果：\n```json\n" + mockResumeResponse + "\n```\n解析完成。",
	}
	extractor := NewLLMResumeExtractor(mockModel, nil)

	result, _, err := extractor.ExtractStructured(context.Background(), "简历文本")
	require.NoError(t, err)
	personal := result["personalInfo"].(map[string]any)
	assert.Equal(t, "张三", personal["name"])
}

func TestExtractStructuredNoJSON(t *testing.T) {
	mockModel := &MockLLMModel{mockResponse: "抱歉，我无法解析这份简历。"}
	extractor := NewLLMResumeExtractor(mockModel, nil)

	_, _, err := extractor.ExtractStructured(context.Background(), "简历文本")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON")
}

func TestExtractJSON(t *testing.T) {
	// 代码块提取
	assert.Equal(t, `{"a": 1}`, extractJSON("结果：```json\n{\"a\": 1}\n```"))
	// 括号匹配回退
	assert.Equal(t, `{"a": {"b": 2}}`, extractJSON(`前缀 {"a": {"b": 2}} 后缀`))
	// 无JSON
	assert.Equal(t, "", extractJSON("没有任何结构化内容"))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(assert.AnError))
	assert.True(t, isRetryableError(errTimeout{}))
}

type errTimeout struct{}

func (errTimeout) Error() string { return "request timeout" }

// TestExtractStructuredLive 调用真实的通义千问API，默认跳过
// 在仓库根目录放置.env并设置ALIYUN_API_KEY后可手动执行
func TestExtractStructuredLive(t *testing.T) {
	_ = godotenv.Load("../../.env")
	apiKey := os.Getenv("ALIYUN_API_KEY")
	if apiKey == "" {
		t.Skip("未设置ALIYUN_API_KEY，跳过真实LLM测试")
	}

	liveModel, err := agent.NewAliyunQwenChatModel(apiKey, os.Getenv("ALIYUN_MODEL"), os.Getenv("ALIYUN_API_URL"))
	require.NoError(t, err)

	extractor := NewLLMResumeExtractor(liveModel, log.New(os.Stderr, "[LiveLLMTest] ", log.LstdFlags))
	result, _, err := extractor.ExtractStructured(context.Background(),
		"# 李四\n\n资深Go工程师，五年后端开发经验。\n\n## 工作经历\n\n- 某互联网公司 后端开发 2019-2024")
	require.NoError(t, err)
	require.Contains(t, result, "personalInfo")
}
