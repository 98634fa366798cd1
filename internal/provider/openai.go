package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const openAIDefaultBase = "https://api.openai.com/v1"

// OpenAIProvider implements LLMProvider against any endpoint that speaks
// the chat completions API. It has no default model; model.name must
// name one.
type OpenAIProvider struct {
	endpoint
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openAIDefaultBase
	}
	return &OpenAIProvider{endpoint: newEndpoint("openai", apiKey, apiBase, defaultModel)}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model, err := p.model(req)
	if err != nil {
		return nil, err
	}
	oaReq, err := p.buildOpenAIRequest(model, req)
	if err != nil {
		return nil, err
	}
	body, err := p.post(ctx, p.apiBase+"/chat/completions", http.Header{"Authorization": {"Bearer " + p.apiKey}}, oaReq)
	if err != nil {
		return nil, err
	}
	return p.parseOpenAIResponse(body)
}

type openAIRequest struct {
	Model       string           `json:"model"`
	Messages    []openAIMessage  `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

// openAIFunctionCall carries arguments as a JSON document in a string.
type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (p *OpenAIProvider) buildOpenAIRequest(model string, req *ChatRequest) (*openAIRequest, error) {
	oaReq := &openAIRequest{
		Model:       model,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, msg := range req.Messages {
		m := openAIMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		if msg.Role == RoleTool {
			// Same envelope Gemini receives as a functionResponse.
			b, err := json.Marshal(functionResponse(msg))
			if err != nil {
				return nil, fmt.Errorf("encode %s result: %w", msg.ToolName, err)
			}
			m.Content = string(b)
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", tc.Name, err)
			}
			m.ToolCalls = append(m.ToolCalls, openAIToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: openAIFunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		oaReq.Messages = append(oaReq.Messages, m)
	}
	return oaReq, nil
}

func (p *OpenAIProvider) parseOpenAIResponse(body []byte) (*ChatResponse, error) {
	var oaResp openAIResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(oaResp.Choices) == 0 {
		return nil, ErrModelFault
	}

	choice := oaResp.Choices[0]
	result := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if oaResp.Usage != nil {
		result.Usage = Usage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%w: %s arguments are not a JSON object", ErrModelFault, tc.Function.Name)
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return result, nil
}
