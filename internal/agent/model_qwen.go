package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

const (
	// DashScope的OpenAI兼容入口
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
	defaultRequestTimeout      = 120 * time.Second
)

// qwenChatRequest OpenAI兼容的请求体
// schema.Message的role/content字段与OpenAI格式兼容，直接复用
type qwenChatRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
	Tools    []qwenTool        `json:"tools,omitempty"`
}

type qwenTool struct {
	Type     string       `json:"type"` // 固定为"function"
	Function qwenFunction `json:"function"`
}

type qwenFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type qwenChatMessage struct {
	Role      string         `json:"role"`
	Content   *string        `json:"content"` // 有tool_calls时可能为null
	ToolCalls []qwenToolCall `json:"tool_calls,omitempty"`
}

type qwenToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type qwenChatChoice struct {
	Index        int             `json:"index"`
	Message      qwenChatMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type qwenChatResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []qwenChatChoice `json:"choices"`
}

// AliyunQwenChatModel 通义千问聊天模型客户端，走OpenAI兼容协议
// 实现 model.ToolCallingChatModel 接口
type AliyunQwenChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	boundTools []qwenTool
}

// NewAliyunQwenChatModel 创建一个新的通义千问客户端
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	log.Debug().Str("api_url", url).Str("model", mn).Msg("初始化通义千问客户端")

	return &AliyunQwenChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		boundTools: make([]qwenTool, 0),
	}, nil
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 工具绑定走WithTools，其余调用选项当前不处理
	}

	reqPayload := qwenChatRequest{
		Model:    aq.modelName,
		Messages: messages,
	}
	if len(aq.boundTools) > 0 {
		reqPayload.Tools = aq.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug().Str("model", aq.modelName).Int("message_count", len(messages)).Msg("发送LLM请求")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var resp qwenChatResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化API响应失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("API返回空choices: %s", string(bodyBytes))
	}

	apiMessage := resp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}

	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return result, nil
}

// Stream 实现 model.ChatModel 接口
// 简历提取走的是一次性补全，流式暂不支持
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel的Stream方法未实现")
}

// BindTools 实现 model.ChatModel 接口
// 参数schema统一按空对象处理，当前没有需要声明参数的工具
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	aq.boundTools = make([]qwenTool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		aq.boundTools = append(aq.boundTools, qwenTool{
			Type: "function",
			Function: qwenFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
