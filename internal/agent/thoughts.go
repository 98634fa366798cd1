package agent

import (
	"context"
	"log/slog"
)

// ThoughtSink receives progress narration from the loop.
// Implementations must not block for long; the loop waits on them.
type ThoughtSink interface {
	Thought(ctx context.Context, text string)
}

// ThoughtFunc adapts a function to ThoughtSink.
type ThoughtFunc func(ctx context.Context, text string)

// Thought implements ThoughtSink.
func (f ThoughtFunc) Thought(ctx context.Context, text string) { f(ctx, text) }

// LogThoughts writes thoughts to slog at debug level.
type LogThoughts struct{}

// Thought implements ThoughtSink.
func (LogThoughts) Thought(_ context.Context, text string) {
	slog.Debug("Agent thought", "text", text)
}

// ThoughtPoster is the part of approval.Client used to publish thoughts.
type ThoughtPoster interface {
	AddThought(ctx context.Context, thought string) error
}

// RemoteThoughts forwards thoughts to the gateway. Failures are logged and
// otherwise ignored; narration never fails a turn.
func RemoteThoughts(p ThoughtPoster) ThoughtSink {
	return ThoughtFunc(func(ctx context.Context, text string) {
		slog.Debug("Agent thought", "text", text)
		if err := p.AddThought(ctx, text); err != nil {
			slog.Debug("Thought not delivered", "error", err)
		}
	})
}

// MultiThoughts fans a thought out to several sinks in order.
func MultiThoughts(sinks ...ThoughtSink) ThoughtSink {
	return ThoughtFunc(func(ctx context.Context, text string) {
		for _, s := range sinks {
			if s != nil {
				s.Thought(ctx, text)
			}
		}
	})
}
