package approval

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// storeContract exercises behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T, opts ...Option) Store) {
	ctx := context.Background()

	t.Run("request then status", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Request(ctx, "a1", "Delete task: Pay rent", map[string]any{"task_id": "1"})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, a.Status)

		got, err := s.Status(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, "Delete task: Pay rent", got.Description)
		assert.Equal(t, "1", got.Details["task_id"])
	})

	t.Run("unknown status is not_found", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Status(ctx, "nope")
		require.NoError(t, err)
		assert.Equal(t, StatusNotFound, got.Status)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Request(ctx, "  ", "x", nil)
		require.ErrorIs(t, err, ErrInvalidAction)
	})

	t.Run("decide confirms once", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Request(ctx, "a1", "x", nil)
		require.NoError(t, err)

		a, err := s.Decide(ctx, "a1", true)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, a.Status)
		assert.NotNil(t, a.DecidedAt)

		// A later decision is a no-op that reports the current status.
		a, err = s.Decide(ctx, "a1", false)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, a.Status)
	})

	t.Run("decide unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Decide(ctx, "ghost", true)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("re-request after decision conflicts", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Request(ctx, "a1", "x", nil)
		require.NoError(t, err)
		_, err = s.Decide(ctx, "a1", false)
		require.NoError(t, err)

		_, err = s.Request(ctx, "a1", "x", nil)
		require.ErrorIs(t, err, ErrConflict)

		got, err := s.Status(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, StatusDenied, got.Status)
	})

	t.Run("re-request while pending overwrites", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Request(ctx, "a1", "first", nil)
		require.NoError(t, err)
		_, err = s.Request(ctx, "a1", "second", nil)
		require.NoError(t, err)

		got, err := s.Status(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Description)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("pending oldest first", func(t *testing.T) {
		s := newStore(t, WithClock(newFakeClock().Now))
		for _, id := range []string{"c", "a", "b"} {
			_, err := s.Request(ctx, id, "x", nil)
			require.NoError(t, err)
		}
		_, err := s.Decide(ctx, "a", true)
		require.NoError(t, err)

		pending, err := s.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "c", pending[0].ID)
		assert.Equal(t, "b", pending[1].ID)
	})

	t.Run("expire times out stale pending", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, WithClock(clock.Now))
		_, err := s.Request(ctx, "old", "x", nil)
		require.NoError(t, err)
		cutoff := clock.Now()
		_, err = s.Request(ctx, "new", "x", nil)
		require.NoError(t, err)

		expired, err := s.Expire(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "old", expired[0].ID)
		assert.Equal(t, StatusTimeout, expired[0].Status)

		// The poller treats timeout as terminal.
		a, err := s.Decide(ctx, "old", true)
		require.NoError(t, err)
		assert.Equal(t, StatusTimeout, a.Status)

		pending, err := s.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "new", pending[0].ID)
	})

	t.Run("concurrent decisions have one winner", func(t *testing.T) {
		var mu sync.Mutex
		var transitions []Status
		n := NotifierFunc(func(_ context.Context, a Action) {
			mu.Lock()
			transitions = append(transitions, a.Status)
			mu.Unlock()
		})
		s := newStore(t, WithNotifier(n))
		_, err := s.Request(ctx, "race", "x", nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]Status, 20)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, err := s.Decide(ctx, "race", i%2 == 0)
				if err == nil {
					results[i] = a.Status
				}
			}(i)
		}
		wg.Wait()

		final, err := s.Status(ctx, "race")
		require.NoError(t, err)
		require.True(t, final.Status.Terminal())
		for _, st := range results {
			assert.Equal(t, final.Status, st)
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []Status{StatusPending, final.Status}, transitions)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T, opts ...Option) Store {
		return NewMemoryStore(append([]Option{WithMetrics(nil)}, opts...)...)
	})
}

func TestMemoryStoreCopiesDetails(t *testing.T) {
	s := NewMemoryStore(WithMetrics(nil))
	details := map[string]any{"title": "before"}
	_, err := s.Request(context.Background(), "a1", "x", details)
	require.NoError(t, err)
	details["title"] = "after"

	got, err := s.Status(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Details["title"])
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MIRRORHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MIRRORHUB_TEST_REDIS_ADDR not set")
	}
	storeContract(t, func(t *testing.T, opts ...Option) Store {
		rdb, err := DialRedis(context.Background(), addr, "", 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })
		prefix := "mirrorhub-test:" + uuid.NewString() + ":"
		return NewRedisStore(rdb, prefix, append([]Option{WithMetrics(nil)}, opts...)...)
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusNotFound.Terminal())
	for _, s := range []Status{StatusConfirmed, StatusDenied, StatusTimeout, StatusError} {
		assert.True(t, s.Terminal(), s)
	}
}
