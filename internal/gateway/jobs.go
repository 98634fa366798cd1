package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/scheduler"
	"github.com/mirrorhub/mirrorhub/internal/session"
)

// Job names as recorded in the scheduled_jobs table.
const (
	JobSweepStale    = "sweep_stale_confirmations"
	JobPruneJournal  = "prune_journal"
	JobPruneSessions = "prune_sessions"
)

// Expirer is the part of approval.Store the sweep needs.
type Expirer interface {
	Expire(ctx context.Context, cutoff time.Time) ([]approval.Action, error)
}

// Pruner deletes old journal rows. The timeline service implements it.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SweepJob times out pending actions older than staleAfter.
func SweepJob(store Expirer, staleAfter, every time.Duration) *scheduler.Job {
	return &scheduler.Job{
		Name: JobSweepStale,
		Spec: everySpec(every),
		Run: func(ctx context.Context) error {
			expired, err := store.Expire(ctx, time.Now().Add(-staleAfter))
			if err != nil {
				return fmt.Errorf("expire stale confirmations: %w", err)
			}
			if len(expired) > 0 {
				slog.Info("Stale confirmations timed out", "count", len(expired))
			}
			return nil
		},
	}
}

// PruneJob drops decided journal rows older than retainDays, once a day.
func PruneJob(journal Pruner, retainDays int) *scheduler.Job {
	return &scheduler.Job{
		Name: JobPruneJournal,
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			n, err := journal.Prune(ctx, time.Now().AddDate(0, 0, -retainDays))
			if err != nil {
				return fmt.Errorf("prune journal: %w", err)
			}
			slog.Info("Journal pruned", "rows", n, "retain_days", retainDays)
			return nil
		},
	}
}

// SessionPruneJob discards chat sessions idle for longer than idle.
func SessionPruneJob(sessions *session.Manager, idle time.Duration) *scheduler.Job {
	return &scheduler.Job{
		Name: JobPruneSessions,
		Spec: "@every 10m",
		Run: func(context.Context) error {
			if n := sessions.Prune(time.Now().Add(-idle)); n > 0 {
				slog.Info("Idle chat sessions discarded", "count", n)
			}
			return nil
		},
	}
}

func everySpec(d time.Duration) string {
	if d < time.Second {
		d = time.Minute
	}
	return "@every " + d.String()
}
