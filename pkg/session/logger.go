package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quietloop/workshop/pkg/middleware"
	"github.com/quietloop/workshop/pkg/model"
)

// Logger is the append-only structured event log per session (C7): one JSON
// object per line under <baseDir>/.workshop/sessions/<timestamp>.jsonl. It
// is fire-and-forget — write failures are swallowed in-band and only
// surfaced through the optional OnError side channel — because a broken
// transcript must never abort a turn.
type Logger struct {
	mu      sync.Mutex
	f       *os.File
	OnError func(error)
}

// NewLogger opens (creating if necessary) the JSONL transcript file for a
// session started at ts.
func NewLogger(baseDir string, ts time.Time) (*Logger, error) {
	dir := filepath.Join(baseDir, ".workshop", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session logger: create dir: %w", err)
	}
	name := ts.UTC().Format("20060102T150405.000000000Z") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session logger: open: %w", err)
	}
	return &Logger{f: f}, nil
}

// Close releases the underlying file handle.
func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

func (l *Logger) writeLine(fields map[string]any) {
	if l == nil {
		return
	}
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(fields)
	if err != nil {
		l.reportErr(fmt.Errorf("session logger: marshal: %w", err))
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	if _, err := l.f.Write(data); err != nil {
		l.reportErr(fmt.Errorf("session logger: write: %w", err))
	}
}

func (l *Logger) reportErr(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}

// LogMessage appends a "message" event.
func (l *Logger) LogMessage(msg model.Message) {
	fields := map[string]any{
		"type":    "message",
		"role":    msg.Role,
		"content": msg.Text(),
	}
	if len(msg.ToolCalls) > 0 {
		fields["tool_calls"] = msg.ToolCalls
	}
	l.writeLine(fields)
}

// LogToolCall appends a "tool_call" event. arguments may be the raw
// argumentsJson string or an already-decoded object; either is sanitized
// before being written.
func (l *Logger) LogToolCall(name string, arguments any) {
	l.writeLine(map[string]any{
		"type":      "tool_call",
		"name":      name,
		"arguments": middleware.Sanitize(arguments),
	})
}

// LogToolResult appends a "tool_result" event.
func (l *Logger) LogToolResult(name string, result any) {
	l.writeLine(map[string]any{
		"type":   "tool_result",
		"name":   name,
		"result": middleware.Sanitize(result),
	})
}

// LogAgent appends an "agent" event recording a specialist agent's output.
func (l *Logger) LogAgent(id, name, reason, content string) {
	l.writeLine(map[string]any{
		"type":    "agent",
		"id":      id,
		"name":    name,
		"reason":  reason,
		"content": content,
	})
}
