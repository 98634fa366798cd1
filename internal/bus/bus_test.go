package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorhub/mirrorhub/internal/approval"
)

func TestEventBusDeliversInOrder(t *testing.T) {
	b := NewEventBus(10)
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	b.Subscribe("panicky", func(context.Context, *ConfirmationEvent) { panic("boom") })
	b.Subscribe("recorder", func(_ context.Context, evt *ConfirmationEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.ActionID+":"+string(evt.Status))
		if len(got) == 2 {
			close(done)
		}
	})

	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	decided := created.Add(time.Minute)
	b.Notify(context.Background(), approval.Action{ID: "a1", Status: approval.StatusPending, CreatedAt: created})
	b.Notify(context.Background(), approval.Action{ID: "a1", Status: approval.StatusConfirmed, CreatedAt: created, DecidedAt: &decided})
	assert.Equal(t, 2, b.Size())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Dispatch(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, []string{"a1:pending", "a1:confirmed"}, got)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	b := NewEventBus(1)
	b.Publish(&ConfirmationEvent{ActionID: "a"})
	b.Publish(&ConfirmationEvent{ActionID: "b"})
	assert.Equal(t, 1, b.Size())
}

func TestNotifyUsesDecisionTime(t *testing.T) {
	b := NewEventBus(2)
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	decided := created.Add(time.Hour)
	b.Notify(context.Background(), approval.Action{ID: "x", Status: approval.StatusDenied, CreatedAt: created, DecidedAt: &decided})
	evt := <-b.events
	assert.Equal(t, decided, evt.At)
	assert.Equal(t, approval.StatusDenied, evt.Status)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByActionID(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{w: w, topic: "mirrorhub.confirmations", timeout: time.Second}
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	s.Handle(context.Background(), &ConfirmationEvent{ActionID: "a1", Status: approval.StatusTimeout, Description: "Delete task: x", At: at})
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "a1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "timeout", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "Delete task: x", decoded["description"])
	assert.Equal(t, "timeout", decoded["status"])

	w.err = errors.New("broker down")
	s.Handle(context.Background(), &ConfirmationEvent{ActionID: "a2"})
	assert.Len(t, w.msgs, 2)
}

func TestNewKafkaSinkParsesBrokers(t *testing.T) {
	s := NewKafkaSink(" b1:9092, ,b2:9092", "topic")
	w, ok := s.w.(*kafka.Writer)
	require.True(t, ok)
	assert.NotNil(t, w.Addr)
	assert.Equal(t, "topic", w.Topic)
	require.NoError(t, s.Close())
}
