// Package approval implements the confirmation gateway that stands between
// mutating tool calls and their side effects.
package approval

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/metrics"
)

// Status is the lifecycle state of a PendingAction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDenied    Status = "denied"
	StatusTimeout   Status = "timeout"
	// StatusError is reserved for store faults. Nothing sets it in normal flow.
	StatusError Status = "error"
	// StatusNotFound is only ever reported by Status lookups, never stored.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusDenied, StatusTimeout, StatusError:
		return true
	}
	return false
}

var (
	// ErrConflict is returned when a request reuses an id that was already decided.
	ErrConflict = errors.New("action already processed")
	// ErrNotFound is returned when deciding an id the store has never seen.
	ErrNotFound = errors.New("action not found")
	// ErrInvalidAction is returned for requests without an action id.
	ErrInvalidAction = errors.New("invalid action")
	// ErrTransport is returned by Client for network failures and unexpected responses.
	ErrTransport = errors.New("confirmation gateway unreachable")
)

// Action is one PendingAction record.
type Action struct {
	ID          string         `json:"action_id"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

func (a Action) clone() Action {
	a.Details = maps.Clone(a.Details)
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		a.DecidedAt = &t
	}
	return a
}

// Requester posts actions and reads their status. Poller needs nothing else.
type Requester interface {
	Request(ctx context.Context, id, description string, details map[string]any) (Action, error)
	Status(ctx context.Context, id string) (Action, error)
}

// Decider lists pending actions and records human decisions.
type Decider interface {
	Pending(ctx context.Context) ([]Action, error)
	Decide(ctx context.Context, id string, confirmed bool) (Action, error)
}

// Store is the authoritative owner of PendingAction records.
//
// Request stores or overwrites a pending record and fails with ErrConflict
// when the id is already terminal. Status never fails for unknown ids; it
// reports StatusNotFound. Decide fails with ErrNotFound for unknown ids and
// returns the current record unchanged when it is already terminal.
// Expire moves pending records created before cutoff to StatusTimeout.
type Store interface {
	Requester
	Decider
	Expire(ctx context.Context, cutoff time.Time) ([]Action, error)
}

// Notifier observes every stored transition, including the initial pending one.
type Notifier interface {
	Notify(ctx context.Context, a Action)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, a Action)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, a Action) { f(ctx, a) }

func notFound(id string) Action {
	return Action{ID: id, Status: StatusNotFound, Description: "Action ID not found."}
}

// Option customizes a Store implementation.
type Option func(*storeOptions)

type storeOptions struct {
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// WithNotifier registers an observer for stored transitions.
func WithNotifier(n Notifier) Option {
	return func(o *storeOptions) { o.notifier = n }
}

// WithMetrics overrides the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *storeOptions) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{metrics: metrics.Default, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o storeOptions) observe(ctx context.Context, a Action, pending int) {
	if o.metrics != nil {
		o.metrics.ConfirmationsTotal.WithLabelValues(string(a.Status)).Inc()
		if pending >= 0 {
			o.metrics.PendingConfirmations.Set(float64(pending))
		}
	}
	if o.notifier != nil {
		o.notifier.Notify(ctx, a)
	}
}
