package session

import (
	"sync"
	"testing"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateAssignsID(t *testing.T) {
	m := NewManager()

	s, created := m.GetOrCreate("")
	require.True(t, created)
	require.NotEmpty(t, s.Key)

	again, created := m.GetOrCreate(s.Key)
	assert.False(t, created)
	assert.Same(t, s, again)

	named, created := m.GetOrCreate("kitchen")
	assert.True(t, created)
	assert.Equal(t, "kitchen", named.Key)
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewSession("a")
	s.Append(provider.Message{Role: provider.RoleUser, Content: "hi"})

	h := s.History()
	h[0].Content = "changed"

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "hi", s.History()[0].Content)
}

func TestDeleteAndList(t *testing.T) {
	m := NewManager()
	a, _ := m.GetOrCreate("a")
	b, _ := m.GetOrCreate("b")
	a.Append(provider.Message{Role: provider.RoleUser, Content: "first"})
	time.Sleep(2 * time.Millisecond)
	b.Append(provider.Message{Role: provider.RoleUser, Content: "second"})

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Key)
	assert.Equal(t, 1, infos[0].Messages)

	assert.True(t, m.Delete("a"))
	assert.False(t, m.Delete("a"))
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestPruneIdleSessions(t *testing.T) {
	m := NewManager()
	old, _ := m.GetOrCreate("old")
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(3 * time.Millisecond)
	fresh, _ := m.GetOrCreate("fresh")
	fresh.Append(provider.Message{Role: provider.RoleUser, Content: "x"})

	assert.Equal(t, 1, m.Prune(cutoff))
	_, ok := m.Get(old.Key)
	assert.False(t, ok)
	_, ok = m.Get("fresh")
	assert.True(t, ok)
}

func TestTurnLockSerializes(t *testing.T) {
	s := NewSession("a")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.LockTurn()
			defer s.UnlockTurn()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
