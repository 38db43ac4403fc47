package remoteserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quietloop/workshop/pkg/agent"
	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/security"
	"github.com/quietloop/workshop/pkg/tool"
)

// blockingModel lets a test hold a /chat call open until release() is
// called, so a second concurrent /chat against the same session can be
// observed hitting the busy guard.
type blockingModel struct {
	release chan struct{}
	text    string
}

func (m *blockingModel) Chat(ctx context.Context, req model.ChatRequest) (model.Completion, error) {
	if m.release != nil {
		<-m.release
	}
	return model.Completion{Choices: []model.Choice{{Message: model.TextMessage("assistant", m.text)}}}, nil
}

func (m *blockingModel) ChatStream(ctx context.Context, req model.ChatRequest, onChunk func(model.StreamChunk) error) error {
	c, err := m.Chat(ctx, req)
	if err != nil {
		return err
	}
	return onChunk(model.StreamChunk{Choices: []model.StreamChoice{{Delta: model.ChoiceDelta{Content: c.Choices[0].Message.Text()}}}})
}

type sseEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Message   string `json:"message"`
}

func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("invalid SSE payload: %v", err)
		}
		events = append(events, evt)
	}
	return events
}

func newTestServer(t *testing.T, m model.Model) *Server {
	t.Helper()
	return New(t.TempDir(), m, tool.NewRegistry(), security.NewGate(), agent.Config{MaxSteps: 3}, "", false, nil)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &blockingModel{text: "ok"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestChatEmitsSessionTokenThenDone(t *testing.T) {
	s := newTestServer(t, &blockingModel{text: "hi there"})
	body := strings.NewReader(`{"message":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	events := parseSSE(t, w.Body.Bytes())
	if len(events) < 2 {
		t.Fatalf("expected at least session+done events, got %+v", events)
	}
	if events[0].Type != "session" || events[0].SessionID == "" {
		t.Fatalf("expected leading session event, got %+v", events[0])
	}
	if events[len(events)-1].Type != "done" {
		t.Fatalf("expected trailing done event, got %+v", events[len(events)-1])
	}
}

func TestChatRejectsConcurrentUseOfSameSession(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, &blockingModel{text: "slow", release: release})

	create := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{}`))
	createW := httptest.NewRecorder()
	s.Handler().ServeHTTP(createW, create)
	var createResp createSessionResponse
	if err := json.Unmarshal(createW.Body.Bytes(), &createResp); err != nil {
		t.Fatalf("decode /session response: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		body := strings.NewReader(`{"message":"hello","sessionId":"` + createResp.SessionID + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/chat", body)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
	}()

	waitForBusy(t, s, createResp.SessionID)

	body := strings.NewReader(`{"message":"again","sessionId":"` + createResp.SessionID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for concurrent chat, got %d", w.Code)
	}

	close(release)
	wg.Wait()
}

func waitForBusy(t *testing.T, s *Server, sessionID string) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		s.mu.Lock()
		rec, ok := s.sessions[sessionID]
		s.mu.Unlock()
		if ok && rec.sess.Busy() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session %s never became busy", sessionID)
}

func TestAuthRejectsMismatchedToken(t *testing.T) {
	s := newTestServer(t, &blockingModel{text: "ok"})
	s.Token = "secret"
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestResetUnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t, &blockingModel{text: "ok"})
	req := httptest.NewRequest(http.MethodPost, "/reset", strings.NewReader(`{"sessionId":"missing"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSanitizeUserID(t *testing.T) {
	cases := map[string]string{
		"":              "default",
		"   ":           "default",
		"alice":         "alice",
		"alice smith!!": "alice_smith__",
		strings.Repeat("a", 100): strings.Repeat("a", 64),
	}
	for input, want := range cases {
		if got := sanitizeUserID(input); got != want {
			t.Errorf("sanitizeUserID(%q) = %q, want %q", input, got, want)
		}
	}
}
