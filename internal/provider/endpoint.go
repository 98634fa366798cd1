package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// endpoint is the HTTP side shared by the model clients.
type endpoint struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	httpClient   *http.Client
}

func newEndpoint(name, apiKey, apiBase, defaultModel string) endpoint {
	return endpoint{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

// DefaultModel returns the model used when a request names none.
func (e *endpoint) DefaultModel() string {
	return e.defaultModel
}

func (e *endpoint) model(req *ChatRequest) (string, error) {
	if req.Model != "" {
		return req.Model, nil
	}
	if e.defaultModel == "" {
		return "", fmt.Errorf("%s: no model configured", e.name)
	}
	return e.defaultModel, nil
}

// post sends body as JSON and returns the response body of a 200 answer.
// Any other status is an *APIError.
func (e *endpoint) post(ctx context.Context, url string, header http.Header, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", e.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", e.name, err)
	}
	for k, vs := range header {
		httpReq.Header[k] = vs
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", e.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", e.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: e.name, Status: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	return respBody, nil
}

// functionResponse wraps a tool result as {"result": value} or
// {"error": message}. JSON content is passed through structured. Both
// clients send tool results in this shape.
func functionResponse(msg Message) map[string]any {
	if msg.IsError {
		return map[string]any{"error": msg.Content}
	}
	var v any
	if err := json.Unmarshal([]byte(msg.Content), &v); err != nil {
		v = msg.Content
	}
	return map[string]any{"result": v}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
