// Package toolrpc exposes a tool registry over a JSON-lines byte stream so
// the agent can run its tools in another process.
//
// Each line is one Message. Requests carry type "req"; the matching
// response reuses the id with type "res".
package toolrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mirrorhub/mirrorhub/internal/tools"
)

// Message types.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
)

// Operations.
const (
	OpList = "tools.list"
	OpCall = "tools.call"
)

// Error codes.
const (
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidArguments = "invalid_arguments"
	CodeActionRejected   = "action_rejected"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

// Message is one line on the wire.
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrPayload     `json:"error,omitempty"`
}

// ErrPayload is a failed response.
type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CallPayload is the tools.call request body.
type CallPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ResultPayload is the tools.call response body.
type ResultPayload struct {
	Result any `json:"result"`
}

// ListPayload is the tools.list response body.
type ListPayload struct {
	Tools []tools.Definition `json:"tools"`
}

// MustRaw marshals v, panicking on values that cannot be encoded.
func MustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("toolrpc: marshal %T: %v", v, err))
	}
	return b
}

// RemoteError is an error reported by the serving side.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps wire codes back onto the tools sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case CodeUnknownTool:
		return target == tools.ErrUnknownTool
	case CodeInvalidArguments:
		return target == tools.ErrInvalidArguments
	case CodeActionRejected:
		return target == tools.ErrActionRejected
	}
	return false
}

// errorCode classifies a dispatch error for the wire.
func errorCode(err error) string {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return CodeUnknownTool
	case errors.Is(err, tools.ErrInvalidArguments):
		return CodeInvalidArguments
	case errors.Is(err, tools.ErrActionRejected):
		return CodeActionRejected
	}
	return CodeInternal
}
