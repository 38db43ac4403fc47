package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	modelpkg "github.com/quietloop/workshop/pkg/model"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) (*Model, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Model{
		client:  srv.Client(),
		baseURL: srv.URL,
		model:   "test-model",
		headers: map[string]string{"Authorization": "Bearer key"},
	}, srv
}

func TestChatUnaryDecodesToolCalls(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "test-model", body.Model)
		require.False(t, body.Stream)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "abc",
			"choices": [{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant",
				"content":null,
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"fs_read","arguments":"{\"path\":\"a.txt\"}"}}]
			}}],
			"usage": {"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
		}`))
	})

	resp, err := m.Chat(context.Background(), modelpkg.ChatRequest{
		Messages: []modelpkg.Message{modelpkg.TextMessage("user", "read a.txt")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	require.Equal(t, "assistant", msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	require.Equal(t, "fs_read", msg.ToolCalls[0].Name)
	require.Equal(t, `{"path":"a.txt"}`, msg.ToolCalls[0].ArgumentsJSON)
	require.NotNil(t, resp.Usage)
	require.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChatOmitsToolsWhenEmpty(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasTools := raw["tools"]
		require.False(t, hasTools, "empty tool list must be omitted from the request body")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}]}`))
	})

	_, err := m.Chat(context.Background(), modelpkg.ChatRequest{
		Messages: []modelpkg.Message{modelpkg.TextMessage("user", "hi")},
	})
	require.NoError(t, err)
}

func TestChatStreamMergesDeltasInOrder(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		lines := []string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			_, _ = w.Write([]byte(l + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})

	var content string
	var finished bool
	err := m.ChatStream(context.Background(), modelpkg.ChatRequest{
		Messages: []modelpkg.Message{modelpkg.TextMessage("user", "hi")},
	}, func(chunk modelpkg.StreamChunk) error {
		for _, c := range chunk.Choices {
			content += c.Delta.Content
			if c.FinishReason == "stop" {
				finished = true
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hello", content)
	require.True(t, finished)
}

func TestChatStreamDropsMalformedLines(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: not-json\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})

	var content string
	err := m.ChatStream(context.Background(), modelpkg.ChatRequest{
		Messages: []modelpkg.Message{modelpkg.TextMessage("user", "hi")},
	}, func(chunk modelpkg.StreamChunk) error {
		for _, c := range chunk.Choices {
			content += c.Delta.Content
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", content)
}

func TestChatStreamToolCallDeltaCarriesIndex(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"fs_read","arguments":"{"}}]}}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"path\":\"a\"}"}}]}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})

	var deltas []modelpkg.ToolCallDelta
	err := m.ChatStream(context.Background(), modelpkg.ChatRequest{
		Messages: []modelpkg.Message{modelpkg.TextMessage("user", "hi")},
	}, func(chunk modelpkg.StreamChunk) error {
		for _, c := range chunk.Choices {
			deltas = append(deltas, c.Delta.ToolCalls...)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	require.Equal(t, 0, *deltas[0].Index)
	require.Equal(t, "call_1", deltas[0].ID)
	require.Equal(t, "fs_read", deltas[0].Name)
	require.Equal(t, 0, *deltas[1].Index)
	require.Equal(t, `"path":"a"}`, deltas[1].ArgumentsChunk)
}
