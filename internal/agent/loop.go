// Package agent implements the core agent loop.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/metrics"
	"github.com/mirrorhub/mirrorhub/internal/provider"
	"github.com/mirrorhub/mirrorhub/internal/session"
	"github.com/mirrorhub/mirrorhub/internal/tools"
)

// DefaultMaxToolTurns bounds how many rounds of tool calls one turn may run.
const DefaultMaxToolTurns = 5

// Dispatcher runs tools on behalf of the loop. *tools.Registry and
// *toolrpc.Client both satisfy it.
type Dispatcher interface {
	Definitions(ctx context.Context) ([]tools.Definition, error)
	Dispatch(ctx context.Context, name string, params map[string]any) (any, error)
}

// LoopOptions contains configuration for the agent loop.
type LoopOptions struct {
	Provider     provider.LLMProvider
	Tools        Dispatcher
	Model        string
	MaxTokens    int
	Temperature  float64
	MaxToolTurns int
	SystemPrompt string
	Thoughts     ThoughtSink
	Metrics      *metrics.Metrics
}

// Loop is the core agent processing engine. A Loop is safe for concurrent
// use by independent sessions.
type Loop struct {
	provider     provider.LLMProvider
	tools        Dispatcher
	model        string
	maxTokens    int
	temperature  float64
	maxToolTurns int
	systemPrompt string
	thoughts     ThoughtSink
	metrics      *metrics.Metrics
}

// NewLoop creates a new agent loop.
func NewLoop(opts LoopOptions) *Loop {
	maxTurns := opts.MaxToolTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxToolTurns
	}
	model := opts.Model
	if model == "" && opts.Provider != nil {
		model = opts.Provider.DefaultModel()
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	thoughts := opts.Thoughts
	if thoughts == nil {
		thoughts = LogThoughts{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Default
	}
	return &Loop{
		provider:     opts.Provider,
		tools:        opts.Tools,
		model:        model,
		maxTokens:    maxTokens,
		temperature:  opts.Temperature,
		maxToolTurns: maxTurns,
		systemPrompt: opts.SystemPrompt,
		thoughts:     thoughts,
		metrics:      m,
	}
}

// RunTurn appends text to the session and drives the model until it answers
// without tool calls, the tool-turn bound is hit, or the model faults.
//
// A model fault is not returned as an error: the fault is logged and the last
// text the model produced in this turn (possibly empty) is returned. Only
// context cancellation and tool-definition failures surface as errors.
func (l *Loop) RunTurn(ctx context.Context, sess *session.Session, text string) (string, error) {
	sess.LockTurn()
	defer sess.UnlockTurn()

	sess.Append(provider.Message{Role: provider.RoleUser, Content: text})

	toolDefs, err := l.buildToolDefinitions(ctx)
	if err != nil {
		return "", fmt.Errorf("load tool definitions: %w", err)
	}

	lastText := ""
	resp, err := l.callModel(ctx, sess, toolDefs)
	if err != nil {
		return l.modelFault(ctx, sess, lastText, err)
	}
	sess.Append(assistantMessage(resp))
	if resp.Content != "" {
		lastText = resp.Content
	}

	turn := 0
	for len(resp.ToolCalls) > 0 && turn < l.maxToolTurns {
		turn++
		l.thought(ctx, fmt.Sprintf("--- Tool Turn %d/%d ---", turn, l.maxToolTurns))

		sess.Append(l.executeToolCalls(ctx, resp.ToolCalls)...)

		resp, err = l.callModel(ctx, sess, toolDefs)
		if err != nil {
			return l.modelFault(ctx, sess, lastText, err)
		}
		sess.Append(assistantMessage(resp))
		if resp.Content != "" {
			lastText = resp.Content
		}
	}

	if len(resp.ToolCalls) > 0 {
		slog.Warn("Maximum tool turns reached with tool calls pending",
			"session", sess.Key, "max_tool_turns", l.maxToolTurns, "pending", len(resp.ToolCalls))
		l.thought(ctx, fmt.Sprintf("Maximum tool turns (%d) reached. Exiting loop even though function calls are pending.", l.maxToolTurns))
		// Close out the unanswered calls so the next turn starts from a
		// well-formed conversation.
		sess.Append(skippedToolResults(resp.ToolCalls)...)
		l.countTurn("max_turns")
		return resp.Content, nil
	}

	l.thought(ctx, "Agent loop finished.")
	l.countTurn("done")
	return resp.Content, nil
}

func (l *Loop) callModel(ctx context.Context, sess *session.Session, toolDefs []provider.ToolDefinition) (*provider.ChatResponse, error) {
	messages := sess.History()
	if l.systemPrompt != "" {
		messages = append([]provider.Message{{Role: provider.RoleSystem, Content: l.systemPrompt}}, messages...)
	}

	start := time.Now()
	resp, err := l.provider.Chat(ctx, &provider.ChatRequest{
		Messages:    messages,
		Tools:       toolDefs,
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	})
	if l.metrics != nil {
		l.metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("Model responded",
		"session", sess.Key, "model", l.model, "tool_calls", len(resp.ToolCalls),
		"tokens", resp.Usage.TotalTokens, "duration", time.Since(start))
	return resp, nil
}

func (l *Loop) modelFault(ctx context.Context, sess *session.Session, lastText string, err error) (string, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		l.countTurn("canceled")
		return lastText, ctxErr
	}
	if errors.Is(err, provider.ErrModelFault) {
		slog.Warn("Model returned no candidates", "session", sess.Key, "model", l.model)
	} else {
		slog.Error("Model call failed", "session", sess.Key, "model", l.model, "error", err)
	}
	l.thought(ctx, "Warning: model response has no candidates.")
	l.countTurn("model_fault")
	return lastText, nil
}

// executeToolCalls runs calls in emitted order and returns one tool result
// per call in the same order.
func (l *Loop) executeToolCalls(ctx context.Context, calls []provider.ToolCall) []provider.Message {
	plural := ""
	if len(calls) > 1 {
		plural = "s"
	}
	l.thought(ctx, fmt.Sprintf("Executing %d tool call%s...", len(calls), plural))

	results := make([]provider.Message, 0, len(calls))
	for _, tc := range calls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		l.thought(ctx, fmt.Sprintf("Attempting to call '%s' with args '%s'", tc.Name, compactJSON(args)))

		msg := provider.Message{
			Role:       provider.RoleTool,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
		}
		result, err := l.tools.Dispatch(ctx, tc.Name, args)
		if err != nil {
			msg.Content = err.Error()
			msg.IsError = true
			l.thought(ctx, fmt.Sprintf("Tool '%s' reported an error: %s", tc.Name, err))
		} else {
			msg.Content = resultContent(result)
			l.thought(ctx, fmt.Sprintf("Tool '%s' succeeded. Result snippet: %s...", tc.Name, snippet(msg.Content, 15)))
		}
		results = append(results, msg)
	}
	l.thought(ctx, fmt.Sprintf("Finished executing tool call%s.", plural))
	return results
}

func (l *Loop) buildToolDefinitions(ctx context.Context) ([]provider.ToolDefinition, error) {
	if l.tools == nil {
		return nil, nil
	}
	defs, err := l.tools.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]provider.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return out, nil
}

func (l *Loop) thought(ctx context.Context, text string) {
	l.thoughts.Thought(ctx, text)
}

func (l *Loop) countTurn(outcome string) {
	if l.metrics != nil {
		l.metrics.AgentTurnsTotal.WithLabelValues(outcome).Inc()
	}
}

func assistantMessage(resp *provider.ChatResponse) provider.Message {
	return provider.Message{
		Role:      provider.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
}

func skippedToolResults(calls []provider.ToolCall) []provider.Message {
	out := make([]provider.Message, len(calls))
	for i, tc := range calls {
		out[i] = provider.Message{
			Role:       provider.RoleTool,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Content:    "not executed: tool turn limit reached",
			IsError:    true,
		}
	}
	return out
}

// resultContent renders a tool result for the model. Strings pass through.
func resultContent(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
