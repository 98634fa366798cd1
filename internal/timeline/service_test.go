package timeline

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/bus"
	"github.com/mirrorhub/mirrorhub/internal/tools"
)

func newTestTimeline(t *testing.T) *TimelineService {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "timeline.db")
	svc, err := NewTimelineService(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func pendingEvent(id string, at time.Time) *bus.ConfirmationEvent {
	return &bus.ConfirmationEvent{
		ActionID:    id,
		Status:      approval.StatusPending,
		Description: "Delete task: " + id,
		Details:     map[string]any{"tool": "delete_task", "task_id": "1"},
		At:          at,
	}
}

func TestReopenKeepsJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "timeline.db")
	svc, err := NewTimelineService(dbPath)
	require.NoError(t, err)
	require.NoError(t, svc.RecordConfirmation(context.Background(), pendingEvent("a1", t0)))
	require.NoError(t, svc.Close())

	svc, err = NewTimelineService(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	rec, err := svc.GetConfirmation(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "delete_task", rec.Tool)

	rows, err := svc.DB().Query(`SELECT name FROM pragma_table_info('confirmations')`)
	require.NoError(t, err)
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"id", "action_id", "tool", "description", "details", "status", "requested_at", "decided_at"}, cols)
}

func TestConfirmationJournalLifecycle(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("a1", t0)))
	rec, err := svc.GetConfirmation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Status)
	assert.Equal(t, "delete_task", rec.Tool)
	assert.Equal(t, "1", rec.Details["task_id"])
	assert.True(t, rec.RequestedAt.Equal(t0))
	assert.Nil(t, rec.DecidedAt)

	decided := t0.Add(30 * time.Second)
	require.NoError(t, svc.RecordConfirmation(ctx, &bus.ConfirmationEvent{ActionID: "a1", Status: approval.StatusConfirmed, At: decided}))
	rec, err = svc.GetConfirmation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", rec.Status)
	require.NotNil(t, rec.DecidedAt)
	assert.True(t, rec.DecidedAt.Equal(decided))

	// Terminal rows are never reopened or re-decided.
	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("a1", t0.Add(time.Minute))))
	require.NoError(t, svc.RecordConfirmation(ctx, &bus.ConfirmationEvent{ActionID: "a1", Status: approval.StatusDenied, At: t0.Add(2 * time.Minute)}))
	rec, err = svc.GetConfirmation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", rec.Status)
	assert.True(t, rec.DecidedAt.Equal(decided))
}

func TestConfirmationWithoutPendingEvent(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	require.NoError(t, svc.RecordConfirmation(ctx, &bus.ConfirmationEvent{ActionID: "lost", Status: approval.StatusTimeout, Description: "x", At: t0}))
	rec, err := svc.GetConfirmation(ctx, "lost")
	require.NoError(t, err)
	assert.Equal(t, "timeout", rec.Status)

	_, err = svc.GetConfirmation(ctx, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimeoutLeftovers(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	svc.now = func() time.Time { return t0.Add(time.Hour) }

	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("a1", t0)))
	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("a2", t0)))
	require.NoError(t, svc.RecordConfirmation(ctx, &bus.ConfirmationEvent{ActionID: "a2", Status: approval.StatusDenied, At: t0}))

	n, err := svc.TimeoutLeftovers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	pending, err := svc.ListConfirmations(ctx, ConfirmationFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Empty(t, pending)
	timedOut, err := svc.ListConfirmations(ctx, ConfirmationFilter{Status: "timeout"})
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, "a1", timedOut[0].ActionID)
}

func TestListConfirmationsNewestFirst(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		svc.HandleConfirmation(ctx, pendingEvent(id, t0.Add(time.Duration(i)*time.Minute)))
	}
	all, err := svc.ListConfirmations(ctx, ConfirmationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ActionID)

	page, err := svc.ListConfirmations(ctx, ConfirmationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ActionID)
}

func TestToolCallAudit(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	svc.RecordToolCall(ctx, tools.CallRecord{Tool: "get_active_tasks", Result: "ok", Duration: 120 * time.Millisecond, At: t0})
	svc.RecordToolCall(ctx, tools.CallRecord{
		Tool: "delete_task", Tier: tools.TierMutating, Arguments: map[string]any{"task_id": "2"},
		Result: "rejected", Error: "Delete task: x: this action was rejected", At: t0.Add(time.Second),
	})

	all, err := svc.ListToolCalls(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "delete_task", all[0].Tool)
	assert.Equal(t, 1, all[0].Tier)
	assert.JSONEq(t, `{"task_id":"2"}`, all[0].Arguments)
	assert.Equal(t, "rejected", all[0].Result)
	assert.EqualValues(t, 120, all[1].DurationMS)

	only, err := svc.ListToolCalls(ctx, "get_active_tasks", 10)
	require.NoError(t, err)
	assert.Len(t, only, 1)
}

func TestOutfitSuggestions(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	clock := t0
	svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	_, err := svc.SaveOutfitSuggestion(ctx, "2024-05-01", []string{"old-shirt"})
	require.NoError(t, err)
	latest, err := svc.SaveOutfitSuggestion(ctx, "2024-05-01", []string{"shirt", "jeans"})
	require.NoError(t, err)
	assert.NotZero(t, latest.ID)
	_, err = svc.SaveOutfitSuggestion(ctx, "2024-05-03", []string{"dress"})
	require.NoError(t, err)
	_, err = svc.SaveOutfitSuggestion(ctx, "2024-05-09", []string{"coat"})
	require.NoError(t, err)

	got, err := svc.OutfitSuggestions(ctx, "2024-05-01", 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-05-01", got[0].Date)
	assert.Equal(t, []string{"shirt", "jeans"}, got[0].Items)
	assert.Equal(t, "2024-05-03", got[1].Date)

	_, err = svc.SaveOutfitSuggestion(ctx, "May 1st", []string{"x"})
	require.Error(t, err)
	_, err = svc.SaveOutfitSuggestion(ctx, "2024-05-01", nil)
	require.Error(t, err)
	_, err = svc.OutfitSuggestions(ctx, "tomorrow", 7)
	require.Error(t, err)
}

func TestPrune(t *testing.T) {
	svc := newTestTimeline(t)
	ctx := context.Background()
	old := t0.AddDate(0, 0, -40)

	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("old-done", old)))
	require.NoError(t, svc.RecordConfirmation(ctx, &bus.ConfirmationEvent{ActionID: "old-done", Status: approval.StatusConfirmed, At: old}))
	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("old-pending", old)))
	require.NoError(t, svc.RecordConfirmation(ctx, pendingEvent("fresh", t0)))
	svc.RecordToolCall(ctx, tools.CallRecord{Tool: "get_time_zone", Result: "ok", At: old})
	svc.RecordToolCall(ctx, tools.CallRecord{Tool: "get_time_zone", Result: "ok", At: t0})

	n, err := svc.Prune(ctx, t0.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := svc.ListConfirmations(ctx, ConfirmationFilter{})
	require.NoError(t, err)
	ids := []string{}
	for _, r := range left {
		ids = append(ids, r.ActionID)
	}
	assert.ElementsMatch(t, []string{"old-pending", "fresh"}, ids)
	calls, err := svc.ListToolCalls(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestScheduledJobs(t *testing.T) {
	svc := newTestTimeline(t)
	require.NoError(t, svc.UpsertScheduledJob("sweep", "ok", t0))
	require.NoError(t, svc.UpsertScheduledJob("sweep", "error", t0.Add(time.Minute)))
	require.NoError(t, svc.UpsertScheduledJob("prune", "ok", t0))

	job, err := svc.GetScheduledJob("sweep")
	require.NoError(t, err)
	assert.Equal(t, 2, job.RunCount)
	assert.Equal(t, "error", job.LastStatus)
	assert.True(t, job.LastRunAt.Equal(t0.Add(time.Minute)))

	jobs, err := svc.ListScheduledJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "prune", jobs[0].JobName)
}
