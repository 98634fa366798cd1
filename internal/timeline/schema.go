package timeline

import (
	"time"
)

// Schema creates every table the hub persists.
const Schema = `
CREATE TABLE IF NOT EXISTS confirmations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id TEXT UNIQUE NOT NULL,
	tool TEXT DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	details TEXT DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	requested_at DATETIME NOT NULL,
	decided_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_confirmations_status ON confirmations(status);
CREATE INDEX IF NOT EXISTS idx_confirmations_requested ON confirmations(requested_at);

CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool TEXT NOT NULL,
	tier INTEGER NOT NULL DEFAULT 0,
	arguments TEXT DEFAULT '{}',
	result TEXT NOT NULL,
	error_text TEXT DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	called_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);
CREATE INDEX IF NOT EXISTS idx_tool_calls_called ON tool_calls(called_at);

CREATE TABLE IF NOT EXISTS outfit_suggestions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	outfit_date TEXT NOT NULL,
	items TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outfit_date ON outfit_suggestions(outfit_date);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_name TEXT UNIQUE NOT NULL,
	last_status TEXT DEFAULT '',
	last_run_at DATETIME,
	run_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ConfirmationRecord is the journal row for one pending action.
type ConfirmationRecord struct {
	ID          int64          `json:"id"`
	ActionID    string         `json:"action_id"`
	Tool        string         `json:"tool,omitempty"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Status      string         `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// ConfirmationFilter narrows ListConfirmations.
type ConfirmationFilter struct {
	Status string
	Limit  int
	Offset int
}

// ToolCallRecord is one audited tool dispatch.
type ToolCallRecord struct {
	ID         int64     `json:"id"`
	Tool       string    `json:"tool"`
	Tier       int       `json:"tier"`
	Arguments  string    `json:"arguments,omitempty"`
	Result     string    `json:"result"`
	ErrorText  string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CalledAt   time.Time `json:"called_at"`
}

// ScheduledJobRecord represents persisted scheduler job state.
type ScheduledJobRecord struct {
	ID         int64     `json:"id"`
	JobName    string    `json:"job_name"`
	LastStatus string    `json:"last_status"`
	LastRunAt  time.Time `json:"last_run_at"`
	RunCount   int       `json:"run_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
