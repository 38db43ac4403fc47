package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quietloop/workshop/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestNewSessionStartsWithSystemMessage(t *testing.T) {
	s := New("", "user-1", "/tmp/ws", "you are helpful", nil)
	require.NotEmpty(t, s.ID())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "system", msgs[0].Role)
}

func TestResetReplacesConversation(t *testing.T) {
	s := New("sess", "user-1", "/tmp/ws", "sys", nil)
	s.Append(model.TextMessage("user", "hello"))
	require.Len(t, s.Messages(), 2)

	s.Reset("sys again")
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "sys again", msgs[0].Text())
}

func TestBusyGuardSerializesAcquisition(t *testing.T) {
	s := New("sess", "user-1", "/tmp/ws", "sys", nil)
	require.True(t, s.TryAcquire())
	require.False(t, s.TryAcquire(), "second acquire should fail while busy")
	s.Release()
	require.True(t, s.TryAcquire())
}

func TestLoggerWritesJSONLLines(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	logger, err := NewLogger(dir, ts)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogMessage(model.TextMessage("user", "hi"))
	logger.LogToolCall("fs_read", `{"path":"a.txt"}`)
	logger.LogToolResult("fs_read", map[string]any{"content": "hello"})
	logger.LogAgent("a1", "research", "matched research", "draft text")

	entries, err := os.ReadDir(filepath.Join(dir, ".workshop", "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, ".workshop", "sessions", entries[0].Name()))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	require.Equal(t, "message", decoded["type"])
}

func TestLoggerSwallowsErrorsAfterClose(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, time.Now())
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	var reported error
	logger.OnError = func(e error) { reported = e }
	logger.LogMessage(model.TextMessage("user", "after close"))
	require.Error(t, reported)
}
