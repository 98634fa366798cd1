package tools

import (
	"fmt"
	"strconv"
	"sync"
)

// ID cache kinds.
const (
	KindTasks  = "tasks"
	KindEvents = "events"
	KindHabits = "habits"
	KindCloset = "closet"
)

// CacheEntry is what a short display id stands for.
type CacheEntry struct {
	ID    string
	Name  string
	Extra map[string]string
}

// IDCache maps the short ids ("1", "2", ...) shown to the model back to
// vendor ids. Each listing replaces the ids of its kind.
type IDCache struct {
	mu    sync.Mutex
	kinds map[string]map[string]CacheEntry
}

// NewIDCache creates an empty cache.
func NewIDCache() *IDCache {
	return &IDCache{kinds: make(map[string]map[string]CacheEntry)}
}

// Replace stores entries under display ids "1".."n" in order.
func (c *IDCache) Replace(kind string, entries []CacheEntry) {
	m := make(map[string]CacheEntry, len(entries))
	for i, e := range entries {
		m[DisplayID(i)] = e
	}
	c.mu.Lock()
	c.kinds[kind] = m
	c.mu.Unlock()
}

// Lookup resolves a display id. Unknown ids fail with ErrInvalidArguments.
func (c *IDCache) Lookup(kind, displayID string) (CacheEntry, error) {
	c.mu.Lock()
	e, ok := c.kinds[kind][displayID]
	c.mu.Unlock()
	if !ok {
		return CacheEntry{}, fmt.Errorf("%w: unknown %s id %q, list %s first", ErrInvalidArguments, kind, displayID, kind)
	}
	return e, nil
}

// DisplayID is the display id of the i-th listed item.
func DisplayID(i int) string { return strconv.Itoa(i + 1) }
