package approval

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps actions in process memory. One mutex serializes every
// read-modify-write so two deciders cannot both win.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*Action
	opts    storeOptions
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]*Action),
		opts:    applyOptions(opts),
	}
}

// Request registers id as pending.
func (s *MemoryStore) Request(ctx context.Context, id, description string, details map[string]any) (Action, error) {
	if strings.TrimSpace(id) == "" {
		return Action{}, fmt.Errorf("%w: empty action_id", ErrInvalidAction)
	}

	s.mu.Lock()
	if existing, ok := s.actions[id]; ok && existing.Status.Terminal() {
		st := existing.Status
		s.mu.Unlock()
		return Action{}, fmt.Errorf("%w: %s is %s", ErrConflict, id, st)
	}
	a := &Action{
		ID:          id,
		Description: description,
		Details:     maps.Clone(details),
		Status:      StatusPending,
		CreatedAt:   s.opts.now(),
	}
	s.actions[id] = a
	out := a.clone()
	pending := s.countPendingLocked()
	s.mu.Unlock()

	slog.Info("Confirmation requested", "action_id", id, "description", description)
	s.observe(ctx, out, pending)
	return out, nil
}

// Status returns the current record, or a StatusNotFound record.
func (s *MemoryStore) Status(_ context.Context, id string) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return notFound(id), nil
	}
	return a.clone(), nil
}

// Decide records a human decision on a pending action.
func (s *MemoryStore) Decide(ctx context.Context, id string, confirmed bool) (Action, error) {
	s.mu.Lock()
	a, ok := s.actions[id]
	if !ok {
		s.mu.Unlock()
		return Action{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.Status.Terminal() {
		out := a.clone()
		s.mu.Unlock()
		slog.Debug("Decision ignored, action already terminal", "action_id", id, "status", out.Status)
		return out, nil
	}
	a.Status = StatusDenied
	if confirmed {
		a.Status = StatusConfirmed
	}
	now := s.opts.now()
	a.DecidedAt = &now
	out := a.clone()
	pending := s.countPendingLocked()
	s.mu.Unlock()

	slog.Info("Confirmation decided", "action_id", id, "status", out.Status)
	s.observe(ctx, out, pending)
	return out, nil
}

// Pending lists pending actions, oldest first.
func (s *MemoryStore) Pending(_ context.Context) ([]Action, error) {
	s.mu.Lock()
	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		if a.Status == StatusPending {
			out = append(out, a.clone())
		}
	}
	s.mu.Unlock()
	sortActions(out)
	return out, nil
}

// Expire times out pending actions created before cutoff.
func (s *MemoryStore) Expire(ctx context.Context, cutoff time.Time) ([]Action, error) {
	s.mu.Lock()
	now := s.opts.now()
	var expired []Action
	for _, a := range s.actions {
		if a.Status != StatusPending || !a.CreatedAt.Before(cutoff) {
			continue
		}
		a.Status = StatusTimeout
		t := now
		a.DecidedAt = &t
		expired = append(expired, a.clone())
	}
	pending := s.countPendingLocked()
	s.mu.Unlock()

	sortActions(expired)
	for _, a := range expired {
		slog.Info("Confirmation expired", "action_id", a.ID)
		s.observe(ctx, a, pending)
	}
	return expired, nil
}

func (s *MemoryStore) countPendingLocked() int {
	n := 0
	for _, a := range s.actions {
		if a.Status == StatusPending {
			n++
		}
	}
	return n
}

func (s *MemoryStore) observe(ctx context.Context, a Action, pending int) {
	s.opts.observe(ctx, a, pending)
}

func sortActions(as []Action) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].ID < as[j].ID
		}
		return as[i].CreatedAt.Before(as[j].CreatedAt)
	})
}
