package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/provider"
	"github.com/mirrorhub/mirrorhub/internal/scheduler"
	"github.com/mirrorhub/mirrorhub/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepJobTimesOutStaleActions(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().Add(-time.Hour).UnixNano())
	store := approval.NewMemoryStore(
		approval.WithMetrics(nil),
		approval.WithClock(func() time.Time { return time.Unix(0, now.Load()) }),
	)
	ctx := context.Background()
	_, err := store.Request(ctx, "old", "old action", nil)
	require.NoError(t, err)
	now.Store(time.Now().UnixNano())
	_, err = store.Request(ctx, "fresh", "fresh action", nil)
	require.NoError(t, err)

	s := scheduler.New(scheduler.Config{}, nil)
	require.NoError(t, s.Register(SweepJob(store, 10*time.Minute, time.Minute)))
	status, err := s.RunNow(ctx, JobSweepStale)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusOK, status)

	old, _ := store.Status(ctx, "old")
	fresh, _ := store.Status(ctx, "fresh")
	assert.Equal(t, approval.StatusTimeout, old.Status)
	assert.Equal(t, approval.StatusPending, fresh.Status)
}

type fakePruner struct{ before time.Time }

func (p *fakePruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return 3, nil
}

func TestPruneJobUsesRetention(t *testing.T) {
	p := &fakePruner{}
	job := PruneJob(p, 30)
	assert.Equal(t, "@daily", job.Spec)
	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), p.before, time.Minute)
}

func TestSessionPruneJob(t *testing.T) {
	m := session.NewManager()
	s, _ := m.GetOrCreate("idle")
	s.Append(provider.Message{Role: provider.RoleUser, Content: "hi"})
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, SessionPruneJob(m, time.Millisecond).Run(context.Background()))
	_, ok := m.Get("idle")
	assert.False(t, ok)
}

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 1m0s", everySpec(time.Minute))
	assert.Equal(t, "@every 1m0s", everySpec(0))
	assert.Equal(t, "@every 30s", everySpec(30*time.Second))
}

func TestThoughtRingOrder(t *testing.T) {
	r := NewThoughtRing(3)
	assert.Empty(t, r.List())
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.Add(s)
	}
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Text)
	assert.Equal(t, "e", list[2].Text)
}
