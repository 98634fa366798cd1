package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const geminiDefaultBase = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements LLMProvider using the Gemini REST API with a
// static API key.
type GeminiProvider struct {
	endpoint
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(apiKey, apiBase, defaultModel string) *GeminiProvider {
	if apiBase == "" {
		apiBase = geminiDefaultBase
	}
	if defaultModel == "" {
		defaultModel = "gemini-1.5-flash"
	}
	return &GeminiProvider{endpoint: newEndpoint("gemini", apiKey, apiBase, defaultModel)}
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model, err := p.model(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", p.apiBase, model)
	body, err := p.post(ctx, url, http.Header{"X-Goog-Api-Key": {p.apiKey}}, p.buildGeminiRequest(req))
	if err != nil {
		return nil, err
	}
	return p.parseGeminiResponse(body)
}

// --- Gemini request/response types ---

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string                  `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResp *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (p *GeminiProvider) buildGeminiRequest(req *ChatRequest) *geminiRequest {
	gemReq := &geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if gemReq.SystemInstruction == nil {
				gemReq.SystemInstruction = &geminiContent{}
			}
			gemReq.SystemInstruction.Parts = append(gemReq.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			continue
		case RoleTool:
			part := geminiPart{FunctionResp: &geminiFunctionResponse{
				Name:     msg.ToolName,
				Response: functionResponse(msg),
			}}
			// Consecutive results answer one model turn and share a content.
			if n := len(gemReq.Contents); n > 0 && gemReq.Contents[n-1].Role == "function" {
				gemReq.Contents[n-1].Parts = append(gemReq.Contents[n-1].Parts, part)
			} else {
				gemReq.Contents = append(gemReq.Contents, geminiContent{Role: "function", Parts: []geminiPart{part}})
			}
			continue
		}

		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		content := geminiContent{Role: role}
		if msg.Content != "" {
			content.Parts = append(content.Parts, geminiPart{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			content.Parts = append(content.Parts, geminiPart{
				FunctionCall: &geminiFunctionCall{
					Name: tc.Name,
					Args: tc.Arguments,
				},
			})
		}
		if len(content.Parts) == 0 {
			continue
		}
		gemReq.Contents = append(gemReq.Contents, content)
	}

	if len(req.Tools) > 0 {
		var decls []geminiFunctionDecl
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		gemReq.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	return gemReq
}

func (p *GeminiProvider) parseGeminiResponse(body []byte) (*ChatResponse, error) {
	var gemResp geminiResponse
	if err := json.Unmarshal(body, &gemResp); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	if len(gemResp.Candidates) == 0 {
		return nil, ErrModelFault
	}

	candidate := gemResp.Candidates[0]
	result := &ChatResponse{
		FinishReason: candidate.FinishReason,
	}

	if gemResp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     gemResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gemResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gemResp.UsageMetadata.TotalTokenCount,
		}
	}

	for i, part := range candidate.Content.Parts {
		if part.Text != "" {
			result.Content += part.Text
		}
		if part.FunctionCall != nil {
			// Gemini has no call ids; the position keeps them unique per turn.
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("%s-%d", part.FunctionCall.Name, i),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	return result, nil
}
