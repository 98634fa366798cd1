package gateway

import (
	"sync"
	"time"
)

// DefaultThoughtCapacity is how many thoughts the feed keeps.
const DefaultThoughtCapacity = 100

// Thought is one agent progress note.
type Thought struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ThoughtRing keeps the most recent thoughts, oldest first.
type ThoughtRing struct {
	mu    sync.Mutex
	items []Thought
	next  int
	full  bool
}

// NewThoughtRing creates a ring holding up to capacity thoughts.
func NewThoughtRing(capacity int) *ThoughtRing {
	if capacity <= 0 {
		capacity = DefaultThoughtCapacity
	}
	return &ThoughtRing{items: make([]Thought, capacity)}
}

// Add appends a thought, evicting the oldest when full.
func (r *ThoughtRing) Add(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = Thought{Text: text, At: time.Now()}
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// List returns the retained thoughts, oldest first.
func (r *ThoughtRing) List() []Thought {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Thought, r.next)
		copy(out, r.items[:r.next])
		return out
	}
	out := make([]Thought, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	out = append(out, r.items[:r.next]...)
	return out
}
