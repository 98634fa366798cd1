// Package timeline persists the confirmation journal, the tool-call audit
// and outfit suggestions in a local SQLite database.
package timeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/bus"
	"github.com/mirrorhub/mirrorhub/internal/mirror"
	"github.com/mirrorhub/mirrorhub/internal/tools"
)

const dateLayout = "2006-01-02"

type TimelineService struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create timeline dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &TimelineService{db: db, now: time.Now}, nil
}

// DB returns the underlying *sql.DB for shared access.
func (s *TimelineService) DB() *sql.DB { return s.db }

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// --- Confirmation journal ---

// HandleConfirmation is a bus.Handler that journals every lifecycle event.
func (s *TimelineService) HandleConfirmation(ctx context.Context, evt *bus.ConfirmationEvent) {
	if err := s.RecordConfirmation(ctx, evt); err != nil {
		slog.Warn("Failed to journal confirmation", "action_id", evt.ActionID, "status", evt.Status, "error", err)
	}
}

// RecordConfirmation applies one lifecycle event to the journal. A pending
// event creates or refreshes the row; a terminal event closes it once.
func (s *TimelineService) RecordConfirmation(ctx context.Context, evt *bus.ConfirmationEvent) error {
	details, err := json.Marshal(evt.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	tool, _ := evt.Details["tool"].(string)
	at := evt.At.UTC()

	if evt.Status == approval.StatusPending {
		_, err = s.db.ExecContext(ctx, `INSERT INTO confirmations
			(action_id, tool, description, details, status, requested_at)
			VALUES (?, ?, ?, ?, 'pending', ?)
			ON CONFLICT(action_id) DO UPDATE SET
				tool = excluded.tool,
				description = excluded.description,
				details = excluded.details,
				requested_at = excluded.requested_at
			WHERE confirmations.status = 'pending'`,
			evt.ActionID, tool, evt.Description, string(details), at)
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE confirmations SET status = ?, decided_at = ?
		WHERE action_id = ? AND status = 'pending'`, string(evt.Status), at, evt.ActionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// The pending event never made it here; keep the outcome anyway.
	_, err = s.db.ExecContext(ctx, `INSERT INTO confirmations
		(action_id, tool, description, details, status, requested_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO NOTHING`,
		evt.ActionID, tool, evt.Description, string(details), string(evt.Status), at, at)
	return err
}

// TimeoutLeftovers closes journal rows still pending from a previous
// process. Their waiters are gone, so they can never be decided.
func (s *TimelineService) TimeoutLeftovers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE confirmations SET status = 'timeout', decided_at = ?
		WHERE status = 'pending'`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetConfirmation returns the journal row for actionID.
func (s *TimelineService) GetConfirmation(ctx context.Context, actionID string) (*ConfirmationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, action_id, COALESCE(tool,''), description,
		COALESCE(details,'{}'), status, requested_at, decided_at
		FROM confirmations WHERE action_id = ?`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanConfirmations(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return &out[0], nil
}

// ListConfirmations returns journal rows, newest first.
func (s *TimelineService) ListConfirmations(ctx context.Context, filter ConfirmationFilter) ([]ConfirmationRecord, error) {
	query := `SELECT id, action_id, COALESCE(tool,''), description,
		COALESCE(details,'{}'), status, requested_at, decided_at
		FROM confirmations WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY requested_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfirmations(rows)
}

func scanConfirmations(rows *sql.Rows) ([]ConfirmationRecord, error) {
	var out []ConfirmationRecord
	for rows.Next() {
		var r ConfirmationRecord
		var details string
		var decidedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ActionID, &r.Tool, &r.Description,
			&details, &r.Status, &r.RequestedAt, &decidedAt); err != nil {
			return nil, err
		}
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
				slog.Warn("Corrupt confirmation details", "action_id", r.ActionID, "error", err)
			}
		}
		if decidedAt.Valid {
			r.DecidedAt = &decidedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Tool call audit ---

// RecordToolCall implements tools.Auditor.
func (s *TimelineService) RecordToolCall(ctx context.Context, rec tools.CallRecord) {
	args, err := json.Marshal(rec.Arguments)
	if err != nil {
		args = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tool_calls
		(tool, tier, arguments, result, error_text, duration_ms, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Tool, int(rec.Tier), string(args), rec.Result, rec.Error, rec.Duration.Milliseconds(), rec.At.UTC())
	if err != nil {
		slog.Warn("Failed to audit tool call", "tool", rec.Tool, "error", err)
	}
}

// ListToolCalls returns audited calls, newest first. An empty tool lists all.
func (s *TimelineService) ListToolCalls(ctx context.Context, tool string, limit int) ([]ToolCallRecord, error) {
	query := `SELECT id, tool, tier, COALESCE(arguments,''), result, COALESCE(error_text,''),
		duration_ms, called_at FROM tool_calls WHERE 1=1`
	args := []any{}
	if tool != "" {
		query += " AND tool = ?"
		args = append(args, tool)
	}
	query += " ORDER BY called_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		if err := rows.Scan(&r.ID, &r.Tool, &r.Tier, &r.Arguments, &r.Result, &r.ErrorText,
			&r.DurationMS, &r.CalledAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Outfit suggestions ---

// SaveOutfitSuggestion stores a suggestion of closet item ids for date.
func (s *TimelineService) SaveOutfitSuggestion(ctx context.Context, date string, items []string) (mirror.OutfitSuggestion, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return mirror.OutfitSuggestion{}, fmt.Errorf("outfit date %q: %w", date, err)
	}
	if len(items) == 0 {
		return mirror.OutfitSuggestion{}, errors.New("outfit has no items")
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return mirror.OutfitSuggestion{}, err
	}
	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO outfit_suggestions (outfit_date, items, created_at) VALUES (?, ?, ?)`,
		date, string(raw), created)
	if err != nil {
		return mirror.OutfitSuggestion{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mirror.OutfitSuggestion{}, err
	}
	return mirror.OutfitSuggestion{ID: id, Date: date, Items: items, CreatedAt: created}, nil
}

// OutfitSuggestions returns the most recent suggestion for each of the
// days days starting at fromDate, skipping days without one.
func (s *TimelineService) OutfitSuggestions(ctx context.Context, fromDate string, days int) ([]mirror.OutfitSuggestion, error) {
	from, err := time.Parse(dateLayout, fromDate)
	if err != nil {
		return nil, fmt.Errorf("from date %q: %w", fromDate, err)
	}
	if days <= 0 {
		days = 7
	}
	until := from.AddDate(0, 0, days).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx, `SELECT id, outfit_date, items, created_at FROM outfit_suggestions
		WHERE outfit_date >= ? AND outfit_date < ?
		ORDER BY outfit_date ASC, created_at DESC, id DESC`, fromDate, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mirror.OutfitSuggestion
	for rows.Next() {
		var o mirror.OutfitSuggestion
		var items string
		if err := rows.Scan(&o.ID, &o.Date, &items, &o.CreatedAt); err != nil {
			return nil, err
		}
		if len(out) > 0 && out[len(out)-1].Date == o.Date {
			continue
		}
		if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
			return nil, fmt.Errorf("outfit %d items: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Retention ---

// Prune deletes decided confirmations and audited tool calls older than
// before. Pending rows and outfit suggestions are kept.
func (s *TimelineService) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM confirmations WHERE status != 'pending' AND requested_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	res, err = s.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE called_at < ?`, cutoff)
	if err != nil {
		return n, err
	}
	m, _ := res.RowsAffected()
	return n + m, nil
}

// --- Scheduled Jobs ---

// UpsertScheduledJob inserts or updates a scheduled job run record.
func (s *TimelineService) UpsertScheduledJob(jobName, status string, runAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO scheduled_jobs (job_name, last_status, last_run_at, run_count, updated_at)
		VALUES (?, ?, ?, 1, datetime('now'))
		ON CONFLICT(job_name) DO UPDATE SET
			last_status = excluded.last_status,
			last_run_at = excluded.last_run_at,
			run_count = scheduled_jobs.run_count + 1,
			updated_at = datetime('now')`,
		jobName, status, runAt.UTC())
	return err
}

// GetScheduledJob returns a scheduled job record by name.
func (s *TimelineService) GetScheduledJob(jobName string) (*ScheduledJobRecord, error) {
	var r ScheduledJobRecord
	var lastRunAt sql.NullTime
	err := s.db.QueryRow(`SELECT id, job_name, COALESCE(last_status,''), last_run_at,
		run_count, created_at, updated_at
		FROM scheduled_jobs WHERE job_name = ?`, jobName).
		Scan(&r.ID, &r.JobName, &r.LastStatus, &lastRunAt,
			&r.RunCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		r.LastRunAt = lastRunAt.Time
	}
	return &r, nil
}

// ListScheduledJobs returns all scheduled job records.
func (s *TimelineService) ListScheduledJobs() ([]ScheduledJobRecord, error) {
	rows, err := s.db.Query(`SELECT id, job_name, COALESCE(last_status,''), last_run_at,
		run_count, created_at, updated_at
		FROM scheduled_jobs ORDER BY job_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledJobRecord
	for rows.Next() {
		var r ScheduledJobRecord
		var lastRunAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.JobName, &r.LastStatus, &lastRunAt,
			&r.RunCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if lastRunAt.Valid {
			r.LastRunAt = lastRunAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
