package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrActionRejected is matched by every *ActionRejectedError.
var ErrActionRejected = errors.New("action rejected")

// ActionRejectedError reports that a human denied a mutating call, or that
// no decision arrived in time.
type ActionRejectedError struct {
	ActionID    string
	Tool        string
	Description string
}

func (e *ActionRejectedError) Error() string {
	return fmt.Sprintf("%s: this action was rejected", e.Description)
}

// Is lets errors.Is(err, ErrActionRejected) match.
func (e *ActionRejectedError) Is(target error) bool {
	return target == ErrActionRejected
}

// Confirmer asks a human to confirm an action and reports the answer.
// *approval.Poller is the production implementation.
type Confirmer interface {
	Await(ctx context.Context, description, actionID string, details map[string]any) bool
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, description, actionID string, details map[string]any) bool

// Await calls f.
func (f ConfirmerFunc) Await(ctx context.Context, description, actionID string, details map[string]any) bool {
	return f(ctx, description, actionID, details)
}

// AlwaysConfirm and AlwaysDeny are test and offline stubs.
var (
	AlwaysConfirm Confirmer = ConfirmerFunc(func(context.Context, string, string, map[string]any) bool { return true })
	AlwaysDeny    Confirmer = ConfirmerFunc(func(context.Context, string, string, map[string]any) bool { return false })
)

// Describer renders the confirmation prompt for one call. An error means
// the arguments cannot be acted on, and the human is never asked. A
// Describer may bind what it resolved into params; the confirmed call sees it.
type Describer func(params map[string]any) (string, error)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Template returns a Describer that substitutes {name} with the argument
// of that name. Absent arguments render as "-".
func Template(format string) Describer {
	return func(params map[string]any) (string, error) {
		return renderTemplate(format, params), nil
	}
}

func renderTemplate(format string, params map[string]any) string {
	return placeholder.ReplaceAllStringFunc(format, func(m string) string {
		v, ok := params[m[1:len(m)-1]]
		if !ok || v == nil {
			return "-"
		}
		return fmt.Sprint(v)
	})
}

type gatedTool struct {
	Tool
	describe  Describer
	confirmer Confirmer
}

// Gate wraps a mutating tool so every call first obtains a human decision
// under a fresh action id. The wrapped tool never runs unless confirmed.
func Gate(tool Tool, describe Describer, confirmer Confirmer) Tool {
	if tool.Tier() != TierMutating {
		panic(fmt.Sprintf("tools: Gate on %s tool %s", tool.Tier(), tool.Name()))
	}
	if confirmer == nil {
		confirmer = AlwaysDeny
	}
	return &gatedTool{Tool: tool, describe: describe, confirmer: confirmer}
}

func (g *gatedTool) gated() {}

func (g *gatedTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	call := make(map[string]any, len(params))
	for k, v := range params {
		if !strings.HasPrefix(k, boundPrefix) {
			call[k] = v
		}
	}
	details := maps.Clone(call)
	details["tool"] = g.Name()

	description, err := g.describe(call)
	if err != nil {
		return nil, err
	}
	actionID := uuid.NewString()
	if !g.confirmer.Await(ctx, description, actionID, details) {
		return nil, &ActionRejectedError{ActionID: actionID, Tool: g.Name(), Description: description}
	}
	return g.Tool.Execute(ctx, call)
}

// boundPrefix marks argument keys reserved for values a Describer resolved
// while rendering the prompt. Callers cannot supply them.
const boundPrefix = "\x00bound:"

// bind records v as the resolution of the argument key, so the confirmed
// call acts on exactly what the human was shown.
func bind(params map[string]any, key string, v any) {
	params[boundPrefix+key] = v
}

// bound returns the value bind stored for key.
func bound[T any](params map[string]any, key string) (T, bool) {
	v, ok := params[boundPrefix+key].(T)
	return v, ok
}

func isGated(t Tool) bool {
	_, ok := t.(interface{ gated() })
	return ok
}
