// Package bus fans confirmation lifecycle events out to observers.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/approval"
)

// ConfirmationEvent is one step in the life of a pending action: its
// creation, its decision, or its expiry.
type ConfirmationEvent struct {
	ActionID    string          `json:"action_id"`
	Status      approval.Status `json:"status"`
	Description string          `json:"description"`
	Details     map[string]any  `json:"details,omitempty"`
	At          time.Time       `json:"at"`
}

// Handler observes events. Handlers run on the dispatch goroutine, one at
// a time, in subscription order.
type Handler func(ctx context.Context, evt *ConfirmationEvent)

type subscriber struct {
	name string
	fn   Handler
}

// EventBus decouples the confirmation store from its observers. The store
// never blocks on a slow subscriber; events beyond the buffer are dropped.
type EventBus struct {
	events chan *ConfirmationEvent
	subs   []subscriber
	mu     sync.RWMutex
}

// NewEventBus creates a bus holding up to buffer undelivered events.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 100
	}
	return &EventBus{events: make(chan *ConfirmationEvent, buffer)}
}

// Notify implements approval.Notifier.
func (b *EventBus) Notify(_ context.Context, a approval.Action) {
	at := a.CreatedAt
	if a.DecidedAt != nil {
		at = *a.DecidedAt
	}
	b.Publish(&ConfirmationEvent{
		ActionID:    a.ID,
		Status:      a.Status,
		Description: a.Description,
		Details:     a.Details,
		At:          at,
	})
}

// Publish queues an event for dispatch.
func (b *EventBus) Publish(evt *ConfirmationEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	select {
	case b.events <- evt:
	default:
		slog.Warn("Confirmation event dropped, bus full", "action_id", evt.ActionID, "status", evt.Status)
	}
}

// Subscribe registers a handler for every event.
func (b *EventBus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, fn: fn})
}

// Dispatch delivers events until ctx is cancelled. Run it as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-b.events:
			b.deliver(ctx, evt)
		}
	}
}

func (b *EventBus) deliver(ctx context.Context, evt *ConfirmationEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Confirmation subscriber panicked", "subscriber", s.name, "panic", r)
				}
			}()
			s.fn(ctx, evt)
		}()
	}
}

// Size returns the number of undelivered events.
func (b *EventBus) Size() int {
	return len(b.events)
}

// LogHandler records every event at info level.
func LogHandler(_ context.Context, evt *ConfirmationEvent) {
	slog.Info("Confirmation event", "action_id", evt.ActionID, "status", evt.Status, "description", evt.Description)
}
