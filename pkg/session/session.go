// Package session models a conversation plus the sandbox and logger it
// owns (§3's Session), generalized from the sibling agent SDK's
// mutex-guarded, clone-on-read transcript store into the exact shape the
// runtime's data model calls for: a single system-first conversation, a
// workspace root, a busy flag serializing turns, and a per-session logger.
package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/quietloop/workshop/pkg/model"
)

// ErrInvalidSessionID reports an empty or whitespace-only session id.
var ErrInvalidSessionID = errors.New("session: id is empty")

// Session is a conversation plus the sandbox and logger it owns. It is
// created on first chat, reset clears its conversation back to a single
// system message, and it carries no persistence beyond the append-only
// session log (Non-goals, §1).
type Session struct {
	mu            sync.Mutex
	id            string
	userID        string
	workspaceRoot string
	conversation  []model.Message
	busy          bool
	logger        *Logger
}

// New constructs a Session with a fresh single-entry system conversation.
// A blank id is replaced with a freshly generated uuid, matching how the
// remote server (C11) allocates session ids for new registry entries.
func New(id, userID, workspaceRoot, systemPrompt string, logger *Logger) *Session {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:            id,
		userID:        userID,
		workspaceRoot: workspaceRoot,
		conversation:  []model.Message{model.TextMessage("system", systemPrompt)},
		logger:        logger,
	}
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user's sanitized identifier.
func (s *Session) UserID() string { return s.userID }

// WorkspaceRoot returns the canonical sandbox root this session owns.
func (s *Session) WorkspaceRoot() string { return s.workspaceRoot }

// Logger returns the session's transcript logger, which may be nil.
func (s *Session) Logger() *Logger { return s.logger }

// TryAcquire sets busy=true and reports success, or reports false when the
// session is already busy. This is the registry's serialization guard
// (§4.11/§5): a record in use rejects new turns with Busy.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// Release clears busy unconditionally. Callers run this in a finally block
// regardless of how the turn ended (§9 design note (c)).
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports the current busy state.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Messages returns a snapshot copy of the conversation, safe for the caller
// to range over without racing appends from another goroutine.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// Append adds msg to the conversation. The loop is single-threaded per
// session (serialized by Busy), so this needs no ordering guarantee beyond
// mutual exclusion with concurrent Messages() reads.
func (s *Session) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, msg)
}

// Reset replaces the conversation with a fresh single-entry system prompt,
// per §3's Session lifecycle ("reset clears conversation").
func (s *Session) Reset(systemPrompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = []model.Message{model.TextMessage("system", systemPrompt)}
}
