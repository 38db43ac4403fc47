// Package remoteserver hosts agent.Loop instances behind an HTTP session
// registry (C11), fanning tokens out to clients over Server-Sent Events.
// The endpoint shapes and session bookkeeping are this runtime's own
// design; the structured logging around each request is grounded on the
// sibling telemetry-debugger agent's zap.Logger collaborator (used the same
// way by internal/executor.Executor in the retrieval pack).
package remoteserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quietloop/workshop/pkg/agent"
	"github.com/quietloop/workshop/pkg/apperr"
	"github.com/quietloop/workshop/pkg/event"
	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/sandbox"
	"github.com/quietloop/workshop/pkg/security"
	"github.com/quietloop/workshop/pkg/session"
	"github.com/quietloop/workshop/pkg/tool"
)

var invalidUserIDChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)

const maxUserIDLength = 64
const defaultUserID = "default"
const systemPrompt = "You are a helpful local-first assistant with access to sandboxed file, patch, web, and summarization tools."

// sanitizeUserID applies the identity rules from §4.11: keep
// [A-Za-z0-9_-], replace everything else with "_", truncate to 64 runes,
// and fall back to "default" when the result is blank.
func sanitizeUserID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultUserID
	}
	cleaned := invalidUserIDChar.ReplaceAllString(trimmed, "_")
	if len(cleaned) > maxUserIDLength {
		cleaned = cleaned[:maxUserIDLength]
	}
	if cleaned == "" {
		return defaultUserID
	}
	return cleaned
}

// record is one entry in the in-memory session registry.
type record struct {
	sess          *session.Session
	userID        string
	workspaceRoot string
}

// Server hosts the HTTP surface described in §4.11.
type Server struct {
	BaseDir     string
	Token       string
	AutoApprove bool
	Model       model.Model
	Tools       *tool.Registry
	Gate        *security.Gate
	AgentConfig agent.Config
	Logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*record
}

// New constructs a Server. A nil Logger is replaced with a no-op logger, the
// same default the sibling telemetry-debugger agent uses for an
// unconfigured collaborator.
func New(baseDir string, m model.Model, tools *tool.Registry, gate *security.Gate, agentCfg agent.Config, token string, autoApprove bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		BaseDir:     baseDir,
		Token:       token,
		AutoApprove: autoApprove,
		Model:       m,
		Tools:       tools,
		Gate:        gate,
		AgentConfig: agentCfg,
		Logger:      logger,
		sessions:    make(map[string]*record),
	}
}

// Handler builds the routed mux for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/session", s.withAuth(s.handleCreateSession))
	mux.HandleFunc("/reset", s.withAuth(s.handleReset))
	mux.HandleFunc("/chat", s.withAuth(s.handleChat))
	return mux
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type createSessionRequest struct {
	UserID string `json:"userId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	userID := sanitizeUserID(firstNonEmpty(req.UserID, r.Header.Get("X-User-Id")))

	rec, err := s.newRecord(userID)
	if err != nil {
		writeError(w, apperr.HTTPStatus(apperr.KindOf(err)), err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[rec.sess.ID()] = rec
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: rec.sess.ID()})
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	rec, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	rec.sess.Reset(systemPrompt)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	rec, isNew, err := s.recordFor(req)
	if err != nil {
		writeError(w, apperr.HTTPStatus(apperr.KindOf(err)), err.Error())
		return
	}

	if !rec.sess.TryAcquire() {
		writeError(w, http.StatusConflict, "session busy")
		return
	}
	defer rec.sess.Release()

	start := time.Now()
	s.Logger.Info("chat request received",
		zap.String("user", rec.userID),
		zap.String("sessionId", rec.sess.ID()),
		zap.Int("inputChars", len(req.Message)),
		zap.Int("estimatedTokens", estimateTokens(req.Message)),
		zap.String("preview", preview(req.Message, 200)),
	)

	stream := event.NewStream(w)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-r.Context().Done()
		cancel()
	}()

	// Events flow through a Bus onto a buffered channel that StreamEvents
	// drains, rather than writing the wire frames directly from the loop's
	// callbacks — this gives the SSE response its own idle heartbeat ticker
	// independent of how fast the model streams tokens.
	events := make(chan event.Event, 16)
	bus := event.NewBus(events)

	if isNew {
		if err := bus.Emit(event.NewSession(rec.sess.ID())); err != nil {
			s.Logger.Warn("failed to queue session event", zap.Error(err))
			close(events)
			return
		}
	}

	loopCfg := s.AgentConfig
	loopCfg.AutoApprove = s.AutoApprove
	loop := agent.New(s.Model, s.Tools, s.Gate, loopCfg).WithLogger(s.Logger)

	var outputChars int
	opts := agent.RunOptions{
		// No interactive channel exists over HTTP, so a writable tool call is
		// always denied unless the server runs with AutoApprove (§4.11).
		Confirm: func(string) bool { return false },
		OnToken: func(tok string) {
			outputChars += len(tok)
			_ = bus.Emit(event.NewToken(tok))
		},
		OnAgent: func(name, content string) {
			_ = bus.Emit(event.NewAgent(name, content))
		},
	}

	go func() {
		defer close(events)
		_, runErr := loop.Run(ctx, rec.sess, req.Message, opts)

		elapsed := time.Since(start)
		if runErr != nil {
			s.Logger.Warn("chat request failed",
				zap.String("sessionId", rec.sess.ID()),
				zap.Error(runErr),
				zap.Duration("elapsed", elapsed),
			)
			_ = bus.Emit(event.NewError(runErr))
			return
		}

		s.Logger.Info("chat request completed",
			zap.String("sessionId", rec.sess.ID()),
			zap.Int("outputChars", outputChars),
			zap.Int("estimatedOutputTokens", estimateTokens(strings.Repeat("x", outputChars))),
			zap.Duration("elapsed", elapsed),
		)
		_ = bus.Emit(event.NewDone())
	}()

	if err := stream.StreamEvents(ctx, events); err != nil {
		s.Logger.Warn("SSE stream ended early",
			zap.String("sessionId", rec.sess.ID()),
			zap.Error(err),
		)
	}
}

// recordFor resolves the session record a /chat call should use: reuse when
// sessionId names a known record, otherwise allocate a fresh one.
func (s *Server) recordFor(req chatRequest) (*record, bool, error) {
	if req.SessionID != "" {
		s.mu.Lock()
		rec, ok := s.sessions[req.SessionID]
		s.mu.Unlock()
		if ok {
			return rec, false, nil
		}
	}

	userID := sanitizeUserID(req.UserID)
	rec, err := s.newRecord(userID)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	s.sessions[rec.sess.ID()] = rec
	s.mu.Unlock()
	return rec, true, nil
}

func (s *Server) newRecord(userID string) (*record, error) {
	workspaceRoot := fmt.Sprintf("%s/workspaces/%s", strings.TrimRight(s.BaseDir, "/"), userID)
	root, err := sandbox.EnsureRoot(workspaceRoot)
	if err != nil {
		return nil, err
	}
	logger, err := session.NewLogger(root, time.Now())
	if err != nil {
		return nil, apperr.New(apperr.IO, "remoteserver.newRecord", err)
	}
	sess := session.New(uuid.NewString(), userID, root, systemPrompt, logger)
	return &record{sess: sess, userID: userID, workspaceRoot: root}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// estimateTokens is a rough chars/4 heuristic, adequate for the
// observability logging §4.11 calls for without depending on a tokenizer.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
