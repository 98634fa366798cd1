// Package tools provides the tool framework and the mirror tools the agent can call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mirrorhub/mirrorhub/internal/metrics"
)

var (
	// ErrUnknownTool is returned when dispatching a name that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when arguments do not match the tool schema
	// or reference ids the tool does not know.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Tier is the risk tier of a tool.
type Tier int

const (
	// TierReadOnly tools only read and never touch the confirmation gateway.
	TierReadOnly Tier = 0
	// TierMutating tools change user data and must be wrapped with Gate.
	TierMutating Tier = 1
)

func (t Tier) String() string {
	if t == TierMutating {
		return "mutating"
	}
	return "read_only"
}

// Tool is the interface that all agent tools must implement.
type Tool interface {
	// Name returns the tool identifier used in function calls.
	Name() string
	// Description returns a human-readable description for the LLM.
	Description() string
	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any
	// Tier returns the risk tier.
	Tier() Tier
	// Execute runs the tool. The result must be JSON-serializable.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	RiskTier        Tier
	Fn              func(ctx context.Context, params map[string]any) (any, error)
}

func (f *Func) Name() string               { return f.ToolName }
func (f *Func) Description() string        { return f.ToolDescription }
func (f *Func) Parameters() map[string]any { return f.Schema }
func (f *Func) Tier() Tier                 { return f.RiskTier }

func (f *Func) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f.Fn(ctx, params)
}

// Definition describes a tool to a model or a remote caller.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Tier        Tier           `json:"tier"`
}

// Registry manages tool registration and execution.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	metrics *metrics.Metrics
	auditor Auditor
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		metrics: metrics.Default,
	}
}

// Register adds a tool to the registry and compiles its parameter schema.
// Registration happens before dispatch starts; the registry is read-only
// afterwards. A schema that does not compile is a programming error.
func (r *Registry) Register(tool Tool) {
	sch, err := compileSchema(tool.Name(), tool.Parameters())
	if err != nil {
		panic(fmt.Sprintf("tools: %v", err))
	}
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = sch
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Definitions returns tool definitions sorted by name.
func (r *Registry) Definitions(ctx context.Context) ([]Definition, error) {
	tools := r.List()
	defs := make([]Definition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
			Tier:        tool.Tier(),
		})
	}
	return defs, nil
}

// CallRecord is one dispatched tool call as seen by an Auditor.
type CallRecord struct {
	Tool      string
	Tier      Tier
	Arguments map[string]any
	Result    string // ok, rejected, invalid, unknown, error
	Error     string
	Duration  time.Duration
	At        time.Time
}

// Auditor observes every dispatched call.
type Auditor interface {
	RecordToolCall(ctx context.Context, rec CallRecord)
}

// SetAuditor installs a call observer. Call it before dispatch starts.
func (r *Registry) SetAuditor(a Auditor) {
	r.auditor = a
}

// Dispatch validates params against the tool schema and runs the tool.
// Mutating tools that were registered without Gate are refused.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]any) (any, error) {
	start := time.Now()
	tool, ok := r.tools[name]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		r.record(ctx, CallRecord{Tool: name, Arguments: params, Result: "unknown"}, err, start)
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	rec := CallRecord{Tool: name, Tier: tool.Tier(), Arguments: params}
	if err := ValidateArguments(r.schemas[name], params); err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		rec.Result = "invalid"
		r.record(ctx, rec, err, start)
		return nil, err
	}
	if tool.Tier() == TierMutating && !isGated(tool) {
		err := fmt.Errorf("%s: mutating tool registered without confirmation gate", name)
		rec.Result = "error"
		r.record(ctx, rec, err, start)
		return nil, err
	}

	result, err := tool.Execute(ctx, params)
	switch {
	case err == nil:
		rec.Result = "ok"
		slog.Debug("Tool executed", "tool", name, "duration", time.Since(start))
	case errors.Is(err, ErrActionRejected):
		rec.Result = "rejected"
		slog.Info("Tool call rejected", "tool", name, "error", err)
	case errors.Is(err, ErrInvalidArguments):
		rec.Result = "invalid"
		slog.Warn("Tool call invalid", "tool", name, "error", err)
	default:
		rec.Result = "error"
		slog.Warn("Tool call failed", "tool", name, "error", err)
	}
	r.record(ctx, rec, err, start)
	return result, err
}

func (r *Registry) record(ctx context.Context, rec CallRecord, err error, start time.Time) {
	rec.At = start
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Error = err.Error()
	}
	if r.metrics != nil {
		r.metrics.ToolCallsTotal.WithLabelValues(rec.Tool, rec.Result).Inc()
		r.metrics.ToolCallDuration.WithLabelValues(rec.Tool).Observe(rec.Duration.Seconds())
	}
	if r.auditor != nil {
		r.auditor.RecordToolCall(ctx, rec)
	}
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key string, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int parameter with a default value.
func GetInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool parameter with a default value.
func GetBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetStringSlice extracts a list of strings, skipping non-string entries.
func GetStringSlice(params map[string]any, key string) []string {
	var out []string
	switch v := params[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// optionalString returns nil when key is absent or blank.
func optionalString(params map[string]any, key string) *string {
	s, ok := params[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
