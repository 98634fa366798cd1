package toolrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/mirrorhub/mirrorhub/internal/tools"
)

const maxLineBytes = 4 << 20

// Backend is what the server exposes. *tools.Registry satisfies it.
type Backend interface {
	Definitions(ctx context.Context) ([]tools.Definition, error)
	Dispatch(ctx context.Context, name string, params map[string]any) (any, error)
}

// Server answers tool requests.
type Server struct {
	backend Backend
}

// NewServer creates a server over backend.
func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Serve handles requests from r until EOF or ctx is done, writing responses
// to w. Requests on one stream run one at a time, in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handle(ctx, line)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("toolrpc: write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("toolrpc: read request: %w", err)
	}
	return nil
}

// ServeListener accepts connections until ctx is done; each connection is
// served independently.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("toolrpc: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			defer conn.Close()
			slog.Debug("Tool RPC connection opened", "remote", conn.RemoteAddr())
			if err := s.Serve(ctx, conn, conn); err != nil && ctx.Err() == nil {
				slog.Warn("Tool RPC connection failed", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

func (s *Server) handle(ctx context.Context, line []byte) Message {
	var req Message
	if err := json.Unmarshal(line, &req); err != nil {
		return failure(Message{}, CodeBadRequest, "malformed message: "+err.Error())
	}
	if req.Type != TypeRequest {
		return failure(req, CodeBadRequest, fmt.Sprintf("unexpected message type %q", req.Type))
	}

	switch req.Op {
	case OpList:
		defs, err := s.backend.Definitions(ctx)
		if err != nil {
			return failure(req, CodeInternal, err.Error())
		}
		return success(req, ListPayload{Tools: defs})

	case OpCall:
		var call CallPayload
		if err := json.Unmarshal(req.Payload, &call); err != nil {
			return failure(req, CodeBadRequest, "malformed tools.call payload: "+err.Error())
		}
		result, err := s.backend.Dispatch(ctx, call.Name, call.Arguments)
		if err != nil {
			return failure(req, errorCode(err), err.Error())
		}
		return success(req, ResultPayload{Result: result})

	default:
		return failure(req, CodeBadRequest, fmt.Sprintf("unknown op %q", req.Op))
	}
}

func success(req Message, payload any) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		return failure(req, CodeInternal, "encode result: "+err.Error())
	}
	return Message{ID: req.ID, Type: TypeResponse, Op: req.Op, Payload: raw}
}

func failure(req Message, code, msg string) Message {
	return Message{ID: req.ID, Type: TypeResponse, Op: req.Op, Error: &ErrPayload{Code: code, Message: msg}}
}
