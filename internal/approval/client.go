package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a confirmation gateway over HTTP. It satisfies Requester
// and Decider, so Poller and Approver work the same against a local store
// or a remote gateway.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a client for a gateway base URL such as
// http://localhost:8000/api.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Request posts a new pending action.
func (c *Client) Request(ctx context.Context, id, description string, details map[string]any) (Action, error) {
	body := map[string]any{
		"action_id":   id,
		"description": description,
		"details":     details,
	}
	var a Action
	status, err := c.do(ctx, http.MethodPost, "/request_confirmation", body, &a)
	if err != nil {
		return Action{}, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return a, nil
	case http.StatusConflict:
		return Action{}, fmt.Errorf("%w: %s", ErrConflict, id)
	default:
		return Action{}, fmt.Errorf("%w: request_confirmation returned %d", ErrTransport, status)
	}
}

// Status fetches the current status of id.
func (c *Client) Status(ctx context.Context, id string) (Action, error) {
	var a Action
	status, err := c.do(ctx, http.MethodGet, "/confirmation_status/"+url.PathEscape(id), nil, &a)
	if err != nil {
		return Action{}, err
	}
	if status != http.StatusOK {
		return Action{}, fmt.Errorf("%w: confirmation_status returned %d", ErrTransport, status)
	}
	return a, nil
}

// Decide submits a human decision.
func (c *Client) Decide(ctx context.Context, id string, confirmed bool) (Action, error) {
	var a Action
	status, err := c.do(ctx, http.MethodPost, "/submit_confirmation/"+url.PathEscape(id), map[string]bool{"confirmed": confirmed}, &a)
	if err != nil {
		return Action{}, err
	}
	switch status {
	case http.StatusOK:
		return a, nil
	case http.StatusNotFound:
		return Action{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return Action{}, fmt.Errorf("%w: submit_confirmation returned %d", ErrTransport, status)
	}
}

// Pending lists actions awaiting a decision.
func (c *Client) Pending(ctx context.Context) ([]Action, error) {
	var out []Action
	status, err := c.do(ctx, http.MethodGet, "/pending_confirmations", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: pending_confirmations returned %d", ErrTransport, status)
	}
	for i := range out {
		if out[i].Status == "" {
			out[i].Status = StatusPending
		}
	}
	return out, nil
}

// AddThought forwards an agent progress note to the gateway's thought feed.
func (c *Client) AddThought(ctx context.Context, thought string) error {
	status, err := c.do(ctx, http.MethodPost, "/add_thought", map[string]string{"thought": thought}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return fmt.Errorf("%w: add_thought returned %d", ErrTransport, status)
	}
	return nil
}

// do sends one request. Network failures and undecodable 2xx bodies are
// reported as ErrTransport; any other status is returned for the caller
// to interpret.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
		}
	}
	return resp.StatusCode, nil
}
