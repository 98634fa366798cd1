// Package provider implements the LLM clients the agent loop talks to.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrModelFault is returned when the model answers without any candidate.
var ErrModelFault = errors.New("model returned no candidates")

// LLMProvider is the interface for LLM API clients.
type LLMProvider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// ToolName is set on tool results; Gemini matches responses by name.
	ToolName string `json:"tool_name,omitempty"`
	// IsError marks a tool result whose Content is an error message.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition defines a tool that can be called by the LLM.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a function that can be called.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is a non-2xx answer from a model endpoint.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, e.Body)
}
