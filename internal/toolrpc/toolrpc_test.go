package toolrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(&tools.Func{
		ToolName:        "get_time_zone",
		ToolDescription: "Returns the user's timezone.",
		Schema:          map[string]any{"type": "object", "properties": map[string]any{}},
		RiskTier:        tools.TierReadOnly,
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"timezone": "America/New_York"}, nil
		},
	})
	reg.Register(&tools.Func{
		ToolName:        "events_on",
		ToolDescription: "Lists events on a date.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"date": map[string]any{"type": "string"}},
			"required":   []string{"date"},
		},
		RiskTier: tools.TierReadOnly,
		Fn: func(_ context.Context, p map[string]any) (any, error) {
			if p["date"] == "slow" {
				time.Sleep(150 * time.Millisecond)
			}
			return []any{}, nil
		},
	})
	reg.Register(tools.Gate(&tools.Func{
		ToolName: "delete_event",
		Schema:   map[string]any{"type": "object", "properties": map[string]any{"event_id": map[string]any{"type": "string"}}},
		RiskTier: tools.TierMutating,
		Fn:       func(context.Context, map[string]any) (any, error) { return "deleted", nil },
	}, tools.Template("Delete event {event_id}."), tools.AlwaysDeny))
	return reg
}

func pipeClient(t *testing.T, backend Backend) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = NewServer(backend).Serve(ctx, serverConn, serverConn)
		serverConn.Close()
	}()
	c := NewClient(clientConn)
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return c
}

func TestListAndCall(t *testing.T) {
	c := pipeClient(t, testRegistry())
	ctx := context.Background()

	defs, err := c.Definitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "delete_event", defs[0].Name)
	assert.Equal(t, tools.TierMutating, defs[0].Tier)
	assert.Equal(t, "get_time_zone", defs[2].Name)

	out, err := c.Dispatch(ctx, "get_time_zone", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"timezone": "America/New_York"}, out)
}

func TestErrorCodesMapToSentinels(t *testing.T) {
	c := pipeClient(t, testRegistry())
	ctx := context.Background()

	_, err := c.Dispatch(ctx, "nope", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)

	_, err = c.Dispatch(ctx, "events_on", map[string]any{})
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)

	_, err = c.Dispatch(ctx, "delete_event", map[string]any{"event_id": "1"})
	assert.ErrorIs(t, err, tools.ErrActionRejected)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, CodeActionRejected, remote.Code)
	assert.Contains(t, remote.Message, "Delete event 1.")
}

func TestMalformedLines(t *testing.T) {
	in := strings.NewReader("not json\n" +
		`{"id":"1","type":"res","op":"tools.list"}` + "\n" +
		`{"id":"2","type":"req","op":"tools.dance"}` + "\n" +
		`{"id":"3","type":"req","op":"tools.call","payload":"oops"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, NewServer(testRegistry()).Serve(context.Background(), in, &out))

	dec := json.NewDecoder(&out)
	for _, want := range []string{"", "1", "2", "3"} {
		var msg Message
		require.NoError(t, dec.Decode(&msg))
		assert.Equal(t, want, msg.ID)
		assert.Equal(t, TypeResponse, msg.Type)
		require.NotNil(t, msg.Error)
		assert.Equal(t, CodeBadRequest, msg.Error.Code)
	}
}

func TestCanceledCallDoesNotPoisonNextCall(t *testing.T) {
	c := pipeClient(t, testRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Dispatch(ctx, "events_on", map[string]any{"date": "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := c.Dispatch(context.Background(), "events_on", map[string]any{"date": "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out)
}

func TestClosedServer(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	c := NewClient(clientConn)
	serverConn.Close()

	_, err := c.Dispatch(context.Background(), "get_time_zone", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(testRegistry()).ServeListener(ctx, ln) }()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defs, err := c.Definitions(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 3)
	require.NoError(t, c.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestSpawnRejectsEmptyCommand(t *testing.T) {
	_, err := Spawn("   ")
	assert.Error(t, err)
}
