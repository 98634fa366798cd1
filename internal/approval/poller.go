package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/metrics"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 300 * time.Second
)

// Poller blocks a mutating tool call until a human decides.
type Poller struct {
	backend  Requester
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewPoller creates a poller. Non-positive durations fall back to defaults.
func NewPoller(backend Requester, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{backend: backend, interval: interval, timeout: timeout, metrics: metrics.Default}
}

// Await posts the action once and polls its status. It returns true only
// when the action is confirmed. Failing to post, a denial, any other
// terminal status, an unknown id, the timeout and ctx cancellation all
// return false.
func (p *Poller) Await(ctx context.Context, description, actionID string, details map[string]any) bool {
	start := time.Now()
	approved := p.await(ctx, description, actionID, details)
	if p.metrics != nil {
		outcome := "rejected"
		if approved {
			outcome = "approved"
		}
		p.metrics.ConfirmationWait.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
	return approved
}

func (p *Poller) await(ctx context.Context, description, actionID string, details map[string]any) bool {
	if _, err := p.backend.Request(ctx, actionID, description, details); err != nil {
		slog.Warn("Confirmation request failed, treating as denied", "action_id", actionID, "error", err)
		return false
	}
	slog.Info("Waiting for confirmation", "action_id", actionID, "timeout", p.timeout)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for waited := time.Duration(0); waited < p.timeout; {
		select {
		case <-ctx.Done():
			slog.Info("Confirmation wait cancelled", "action_id", actionID, "error", ctx.Err())
			return false
		case <-ticker.C:
		}
		waited += p.interval

		a, err := p.backend.Status(ctx, actionID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			slog.Warn("Confirmation status poll failed", "action_id", actionID, "error", err)
			continue
		}
		switch a.Status {
		case StatusPending:
			continue
		case StatusConfirmed:
			slog.Info("Action confirmed", "action_id", actionID)
			return true
		case StatusDenied:
			slog.Info("Action denied", "action_id", actionID)
			return false
		default:
			slog.Warn("Action ended without confirmation", "action_id", actionID, "status", a.Status)
			return false
		}
	}

	slog.Warn("Confirmation timed out", "action_id", actionID, "timeout", p.timeout)
	return false
}
