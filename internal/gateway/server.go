// Package gateway serves the confirmation gateway over HTTP: the endpoints
// tool servers use to request and poll confirmations, the endpoints the
// mirror UI and approval CLI use to decide them, the agent thought feed and
// an optional chat endpoint.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/session"
	webassets "github.com/mirrorhub/mirrorhub/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChatRunner runs one agent turn. *agent.Loop satisfies it.
type ChatRunner interface {
	RunTurn(ctx context.Context, sess *session.Session, text string) (string, error)
}

// Options configures a Server.
type Options struct {
	Store     approval.Store
	AuthToken string
	// Agent and Sessions enable the /chat endpoints when both are set.
	Agent    ChatRunner
	Sessions *session.Manager
	// Thoughts defaults to a ring of the last DefaultThoughtCapacity entries.
	Thoughts *ThoughtRing
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// Server is the confirmation gateway's HTTP front.
type Server struct {
	store     approval.Store
	authToken string
	agent     ChatRunner
	sessions  *session.Manager
	thoughts  *ThoughtRing
	router    *mux.Router
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		authToken: strings.TrimSpace(opts.AuthToken),
		agent:     opts.Agent,
		sessions:  opts.Sessions,
		thoughts:  opts.Thoughts,
	}
	if s.thoughts == nil {
		s.thoughts = NewThoughtRing(DefaultThoughtCapacity)
	}
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	// The approval page is static; its API calls carry the token.
	r.Handle("/", http.FileServer(http.FS(webassets.Files))).Methods(http.MethodGet)

	// Tool servers and the mirror UI address the gateway as .../api.
	s.mountAPI(r.PathPrefix("/api").Subrouter())
	s.mountAPI(r.NewRoute().Subrouter())

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router = r
	return s
}

func (s *Server) mountAPI(r *mux.Router) {
	r.Use(s.requireToken)
	r.HandleFunc("/request_confirmation", s.handleRequest).Methods(http.MethodPost)
	r.HandleFunc("/confirmation_status/{action_id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/submit_confirmation/{action_id}", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/pending_confirmations", s.handlePending).Methods(http.MethodGet)
	r.HandleFunc("/add_thought", s.handleAddThought).Methods(http.MethodPost)
	r.HandleFunc("/thoughts", s.handleThoughts).Methods(http.MethodGet)
	if s.agent != nil && s.sessions != nil {
		r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
		r.HandleFunc("/chat/{session_id}", s.handleEndChat).Methods(http.MethodDelete)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Thoughts returns the thought feed.
func (s *Server) Thoughts() *ThoughtRing { return s.thoughts }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		slog.Info("Gateway stopped")
		return nil
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chat": s.agent != nil && s.sessions != nil})
}

type confirmationRequest struct {
	ActionID    string         `json:"action_id"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req confirmationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ActionID) == "" {
		writeError(w, http.StatusBadRequest, "action_id is required")
		return
	}
	if req.Details == nil {
		req.Details = map[string]any{}
	}

	a, err := s.store.Request(r.Context(), req.ActionID, req.Description, req.Details)
	switch {
	case errors.Is(err, approval.ErrConflict):
		cur, _ := s.store.Status(r.Context(), req.ActionID)
		writeError(w, http.StatusConflict,
			fmt.Sprintf("Action ID '%s' already exists and has been processed. Status: %s", req.ActionID, cur.Status))
		return
	case errors.Is(err, approval.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Confirmation request failed", "action_id", req.ActionID, "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"action_id": a.ID,
		"status":    a.Status,
		"message":   "Confirmation request received and is pending.",
	})
}

type statusResponse struct {
	ActionID    string          `json:"action_id"`
	Status      approval.Status `json:"status"`
	Description string          `json:"description,omitempty"`
	Details     map[string]any  `json:"details,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["action_id"]
	a, err := s.store.Status(r.Context(), id)
	if err != nil {
		slog.Error("Confirmation status failed", "action_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ActionID:    id,
		Status:      a.Status,
		Description: a.Description,
		Details:     a.Details,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["action_id"]
	var req struct {
		Confirmed *bool `json:"confirmed"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Confirmed == nil {
		writeError(w, http.StatusBadRequest, "confirmed is required")
		return
	}

	a, err := s.store.Decide(r.Context(), id, *req.Confirmed)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Action ID '%s' not found.", id))
		return
	case err != nil:
		slog.Error("Confirmation decision failed", "action_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action_id": a.ID, "status": a.Status})
}

type pendingItem struct {
	ActionID    string         `json:"action_id"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	actions, err := s.store.Pending(r.Context())
	if err != nil {
		slog.Error("Pending confirmations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	out := make([]pendingItem, 0, len(actions))
	for _, a := range actions {
		details := a.Details
		if details == nil {
			details = map[string]any{}
		}
		out = append(out, pendingItem{ActionID: a.ID, Description: a.Description, Details: details, CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddThought(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Thought string `json:"thought"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Thought) == "" {
		writeError(w, http.StatusBadRequest, "thought is required")
		return
	}
	s.thoughts.Add(req.Thought)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleThoughts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"thoughts": s.thoughts.List()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty.")
		return
	}

	sess, created := s.sessions.GetOrCreate(req.SessionID)
	if created {
		slog.Info("Chat session started", "session", sess.Key)
	}
	resp, err := s.agent.RunTurn(r.Context(), sess, req.Message)
	if err != nil {
		slog.Error("Chat turn failed", "session", sess.Key, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("An internal error occurred: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.Key, "response": resp})
}

func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if !s.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	slog.Info("Chat session ended", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Response write failed", "error", err)
	}
}

// writeError uses the {"detail": ...} shape the mirror UI already parses.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
