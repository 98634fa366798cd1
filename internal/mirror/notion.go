package mirror

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

const (
	notionDefaultBase = "https://api.notion.com/v1"
	notionVersion     = "2022-06-28"
)

// APIError is a non-2xx answer from a vendor API.
type APIError struct {
	Service string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error (status %d, %s): %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Status, e.Message)
}

// NotionClient is a minimal client for the Notion pages and databases API.
type NotionClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewNotionClient creates a client. An empty baseURL selects the public API.
func NewNotionClient(apiKey, baseURL string) *NotionClient {
	if baseURL == "" {
		baseURL = notionDefaultBase
	}
	return &NotionClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Page is a Notion page with its properties.
type Page struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	CreatedTime time.Time           `json:"created_time"`
	Archived    bool                `json:"archived"`
	Properties  map[string]Property `json:"properties"`
}

// Property is one typed page property. Only the field named by Type is set.
type Property struct {
	Type        string        `json:"type"`
	Title       []RichText    `json:"title,omitempty"`
	RichText    []RichText    `json:"rich_text,omitempty"`
	Checkbox    bool          `json:"checkbox,omitempty"`
	Date        *DateValue    `json:"date,omitempty"`
	Select      *SelectValue  `json:"select,omitempty"`
	Status      *SelectValue  `json:"status,omitempty"`
	MultiSelect []SelectValue `json:"multi_select,omitempty"`
	Relation    []Relation    `json:"relation,omitempty"`
	Files       []File        `json:"files,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// RichText is a run of text.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// DateValue is a Notion date, either YYYY-MM-DD or a full ISO datetime.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// SelectValue is a select, status or multi-select option.
type SelectValue struct {
	Name string `json:"name"`
}

// Relation points at another page.
type Relation struct {
	ID string `json:"id"`
}

// File is an uploaded or external file.
type File struct {
	Name string `json:"name"`
	Type string `json:"type"`
	File *struct {
		URL string `json:"url"`
	} `json:"file,omitempty"`
	External *struct {
		URL string `json:"url"`
	} `json:"external,omitempty"`
}

// FileURL returns the URL of the first file, if any.
func (p Property) FileURL() string {
	for _, f := range p.Files {
		if f.File != nil && f.File.URL != "" {
			return f.File.URL
		}
		if f.External != nil && f.External.URL != "" {
			return f.External.URL
		}
	}
	return ""
}

// PlainText flattens the property to display text.
func (p Property) PlainText() string {
	join := func(rt []RichText) string {
		var b strings.Builder
		for _, r := range rt {
			b.WriteString(r.PlainText)
		}
		return b.String()
	}
	switch p.Type {
	case "title":
		return join(p.Title)
	case "rich_text":
		return join(p.RichText)
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "status":
		if p.Status != nil {
			return p.Status.Name
		}
	case "multi_select":
		names := make([]string, 0, len(p.MultiSelect))
		for _, s := range p.MultiSelect {
			names = append(names, s.Name)
		}
		return strings.Join(names, ", ")
	case "date":
		if p.Date != nil {
			return p.Date.Start
		}
	case "url":
		return p.URL
	case "checkbox":
		if p.Checkbox {
			return "true"
		}
		return "false"
	}
	return ""
}

type queryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// QueryDatabase runs query against a database and follows pagination
// until limit pages are collected. A non-positive limit reads everything.
func (c *NotionClient) QueryDatabase(ctx context.Context, databaseID string, query map[string]any, limit int) ([]Page, error) {
	if databaseID == "" {
		return nil, fmt.Errorf("notion query: %w", ErrNotConfigured)
	}
	body := make(map[string]any, len(query)+2)
	for k, v := range query {
		body[k] = v
	}
	var pages []Page
	for {
		if limit > 0 {
			remaining := limit - len(pages)
			if remaining > 100 {
				remaining = 100
			}
			body["page_size"] = remaining
		}
		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &resp); err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == nil || (limit > 0 && len(pages) >= limit) {
			break
		}
		body["start_cursor"] = *resp.NextCursor
	}
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

// RetrievePage fetches one page.
func (c *NotionClient) RetrievePage(ctx context.Context, pageID string) (Page, error) {
	var p Page
	err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil, &p)
	return p, err
}

// CreatePage creates a page in a database.
func (c *NotionClient) CreatePage(ctx context.Context, databaseID string, properties map[string]any) (Page, error) {
	if databaseID == "" {
		return Page{}, fmt.Errorf("notion create: %w", ErrNotConfigured)
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var p Page
	err := c.do(ctx, http.MethodPost, "/pages", body, &p)
	return p, err
}

// UpdatePage patches page properties.
func (c *NotionClient) UpdatePage(ctx context.Context, pageID string, properties map[string]any) (Page, error) {
	var p Page
	err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, map[string]any{"properties": properties}, &p)
	return p, err
}

// ArchivePage moves a page to the trash.
func (c *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	return c.do(ctx, http.MethodPatch, "/pages/"+pageID, map[string]any{"archived": true}, nil)
}

func (c *NotionClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Service: "notion", Status: resp.StatusCode, Message: string(respBody)}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Message != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode notion response: %w", err)
	}
	return nil
}

func titleProp(s string) map[string]any {
	return map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": s}}}}
}

func selectProp(s string) map[string]any {
	return map[string]any{"select": map[string]any{"name": s}}
}

func statusProp(s string) map[string]any {
	return map[string]any{"status": map[string]any{"name": s}}
}

func dateProp(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}

func relationProp(ids ...string) map[string]any {
	rel := make([]any, 0, len(ids))
	for _, id := range ids {
		rel = append(rel, map[string]any{"id": id})
	}
	return map[string]any{"relation": rel}
}

func checkboxProp(v bool) map[string]any {
	return map[string]any{"checkbox": v}
}
