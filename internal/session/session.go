// Package session provides conversation session management.
//
// A session holds the conversation state of one Agent Loop. Sessions live in
// memory only; deleting a session (or restarting the process) discards it.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mirrorhub/mirrorhub/internal/provider"
)

// Session represents a conversation session.
type Session struct {
	Key       string
	CreatedAt time.Time

	messages  []provider.Message
	updatedAt time.Time
	metadata  map[string]any
	mu        sync.RWMutex

	// turn serializes agent turns on this session.
	turn sync.Mutex
}

// NewSession creates a new session with the given key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		CreatedAt: now,
		updatedAt: now,
		metadata:  map[string]any{},
	}
}

// LockTurn blocks until no other turn runs on this session.
func (s *Session) LockTurn() { s.turn.Lock() }

// UnlockTurn releases the turn lock.
func (s *Session) UnlockTurn() { s.turn.Unlock() }

// Append adds messages to the end of the conversation.
func (s *Session) Append(msgs ...provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.updatedAt = time.Now()
}

// History returns a copy of the full conversation.
func (s *Session) History() []provider.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]provider.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the conversation.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// UpdatedAt returns when the session last changed.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// GetMetadata returns a metadata value by key.
func (s *Session) GetMetadata(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.metadata[key]
	return val, ok
}

// SetMetadata sets a metadata value by key.
func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
	s.updatedAt = time.Now()
}

// Manager keeps the live sessions of one process.
type Manager struct {
	cache map[string]*Session
	mu    sync.RWMutex
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{cache: make(map[string]*Session)}
}

// GetOrCreate returns the session for key, creating it when needed.
// An empty key gets a fresh uuid. created reports whether the session is new.
func (m *Manager) GetOrCreate(key string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		key = uuid.NewString()
	}
	if s, ok := m.cache[key]; ok {
		return s, false
	}
	s = NewSession(key)
	m.cache[key] = s
	return s, true
}

// Get returns an existing session.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.cache[key]
	return s, ok
}

// Delete discards a session. It reports whether the session existed.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[key]; !ok {
		return false
	}
	delete(m.cache, key)
	return true
}

// SessionInfo contains metadata about a session.
type SessionInfo struct {
	Key       string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// List returns information about all sessions, most recently used first.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.cache))
	for _, s := range m.cache {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			Key:       s.Key,
			Messages:  s.Len(),
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos
}

// Prune discards sessions idle since before cutoff and returns how many went.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.cache {
		if s.UpdatedAt().Before(cutoff) {
			delete(m.cache, key)
			n++
		}
	}
	return n
}
