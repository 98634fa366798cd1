package toolrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/tools"
)

// ErrClosed is returned once the stream to the server is gone.
var ErrClosed = errors.New("toolrpc: connection closed")

// Client calls tools on a remote Server. It satisfies agent.Dispatcher.
// Requests on one client are serialized.
type Client struct {
	w      io.Writer
	closer func() error

	mu        sync.Mutex
	responses chan Message
	done      chan struct{}
	readErr   error
	seq       atomic.Uint64
	closeOnce sync.Once
}

// NewClient wraps an established stream.
func NewClient(rw io.ReadWriteCloser) *Client {
	return newClient(rw, rw, rw.Close)
}

// Dial connects to a server listening on a TCP address.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("toolrpc: dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// Spawn starts command (split on whitespace) and speaks the protocol over
// its stdin and stdout. The child's stderr is passed through.
func Spawn(command string) (*Client, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("toolrpc: empty tools command")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("toolrpc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("toolrpc: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("toolrpc: start %s: %w", fields[0], err)
	}
	closer := func() error {
		_ = stdin.Close()
		waitErr := make(chan error, 1)
		go func() { waitErr <- cmd.Wait() }()
		select {
		case err := <-waitErr:
			return err
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			return <-waitErr
		}
	}
	return newClient(stdout, stdin, closer), nil
}

func newClient(r io.Reader, w io.Writer, closer func() error) *Client {
	c := &Client{
		w:         w,
		closer:    closer,
		responses: make(chan Message, 16),
		done:      make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type != TypeResponse {
			continue
		}
		select {
		case c.responses <- msg:
		case <-c.done:
			return
		}
	}
	c.shutdown(scanner.Err())
}

// shutdown marks the stream dead. readErr is only written here, before done
// is closed.
func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.readErr = err
		close(c.done)
	})
}

// Definitions lists the remote tools.
func (c *Client) Definitions(ctx context.Context) ([]tools.Definition, error) {
	var out ListPayload
	if err := c.roundTrip(ctx, OpList, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Dispatch runs a remote tool. Remote failures come back as *RemoteError,
// which matches the tools sentinels with errors.Is.
func (c *Client) Dispatch(ctx context.Context, name string, params map[string]any) (any, error) {
	var out ResultPayload
	if err := c.roundTrip(ctx, OpCall, CallPayload{Name: name, Arguments: params}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Close ends the stream and, for spawned servers, waits for the child.
func (c *Client) Close() error {
	c.shutdown(nil)
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) roundTrip(ctx context.Context, op string, payload, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	id := "req_" + strconv.FormatUint(c.seq.Add(1), 10)
	req := Message{ID: id, Type: TypeRequest, Op: op}
	if payload != nil {
		req.Payload = MustRaw(payload)
	}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("toolrpc: encode request: %w", err)
	}
	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return c.closedErr()
		case resp := <-c.responses:
			if resp.ID != id {
				// Answer to a call whose caller gave up.
				continue
			}
			if resp.Error != nil {
				return &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			if out != nil && len(resp.Payload) > 0 {
				if err := json.Unmarshal(resp.Payload, out); err != nil {
					return fmt.Errorf("toolrpc: decode %s response: %w", op, err)
				}
			}
			return nil
		}
	}
}

func (c *Client) closedErr() error {
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}
