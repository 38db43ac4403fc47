// Package event carries the small vocabulary of events the agent loop emits
// during a turn (session allocation, streamed tokens, specialist-agent
// notes, completion, and failure) out to observers — the CLI callback set or
// the remote server's SSE stream. The bus and stream shapes are adapted from
// the sibling agent SDK's event package, collapsed from its three
// progress/control/monitor channels to the single ordered channel this
// runtime's SSE contract calls for.
package event

import (
	"fmt"
	"time"
)

// EventType enumerates the wire-level SSE event names.
type EventType string

const (
	TypeSession EventType = "session"
	TypeToken   EventType = "token"
	TypeAgent   EventType = "agent"
	TypeDone    EventType = "done"
	TypeError   EventType = "error"
)

// Event is one emission on a session's event stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"-"`
	SessionID string    `json:"sessionId,omitempty"`
	Token     string    `json:"token,omitempty"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewSession builds a "session" event.
func NewSession(sessionID string) Event {
	return Event{Type: TypeSession, SessionID: sessionID}
}

// NewToken builds a "token" event.
func NewToken(token string) Event {
	return Event{Type: TypeToken, Token: token}
}

// NewAgent builds an "agent" event.
func NewAgent(name, content string) Event {
	return Event{Type: TypeAgent, Name: name, Content: content}
}

// NewDone builds a "done" event.
func NewDone() Event {
	return Event{Type: TypeDone}
}

// NewError builds an "error" event.
func NewError(err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: TypeError, Message: msg}
}

// Validate reports whether evt carries a recognized type and the fields that
// type requires.
func (e Event) Validate() error {
	switch e.Type {
	case TypeSession:
		if e.SessionID == "" {
			return fmt.Errorf("event: session event requires sessionId")
		}
	case TypeToken, TypeAgent, TypeDone, TypeError:
		// no additional required fields
	default:
		return fmt.Errorf("event: unknown type %q", e.Type)
	}
	return nil
}
