package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/bus"
)

func newWebhook(t *testing.T, status int) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(raw, &m)
		mu.Lock()
		bodies = append(bodies, m)
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func TestSlackNotifierAnnouncesPending(t *testing.T) {
	srv, bodies := newWebhook(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL)

	n.Handle(context.Background(), &bus.ConfirmationEvent{
		ActionID:    "a1",
		Status:      approval.StatusPending,
		Description: "Delete event: Standup",
		Details:     map[string]any{"tool": "delete_event"},
	})
	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, "Confirmation needed: Delete event: Standup", body["text"])
	assert.Contains(t, string(mustJSON(t, body["blocks"])), "delete_event")
}

func TestSlackNotifierIgnoresDecisions(t *testing.T) {
	srv, bodies := newWebhook(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL)
	for _, st := range []approval.Status{approval.StatusConfirmed, approval.StatusDenied, approval.StatusTimeout} {
		n.Handle(context.Background(), &bus.ConfirmationEvent{ActionID: "a1", Status: st})
	}
	assert.Empty(t, *bodies)
}

func TestSlackNotifierWithoutWebhookIsSilent(t *testing.T) {
	n := NewSlackNotifier("  ")
	n.Handle(context.Background(), &bus.ConfirmationEvent{ActionID: "a1", Status: approval.StatusPending})
}

func TestSlackNotifierSendError(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusInternalServerError)
	n := NewSlackNotifier(srv.URL)
	err := n.Send(context.Background(), &bus.ConfirmationEvent{ActionID: "a1", Status: approval.StatusPending})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack webhook")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
