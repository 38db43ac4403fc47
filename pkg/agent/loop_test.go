package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/security"
	"github.com/quietloop/workshop/pkg/session"
	"github.com/quietloop/workshop/pkg/tool"
	"github.com/quietloop/workshop/pkg/workflow"
)

// recordingMiddleware appends the step name to a shared slice on both
// boundaries, so a test can assert ordering.
type recordingMiddleware struct {
	events *[]string
}

func (m recordingMiddleware) BeforeStep(name string) error {
	*m.events = append(*m.events, "before:"+name)
	return nil
}

func (m recordingMiddleware) AfterStep(name string) error {
	*m.events = append(*m.events, "after:"+name)
	return nil
}

// stubModel replays a fixed sequence of Completions, one per Chat call, so
// tests can script a multi-step reason/act exchange without a real provider.
type stubModel struct {
	completions []model.Completion
	calls       int
}

func (s *stubModel) Chat(ctx context.Context, req model.ChatRequest) (model.Completion, error) {
	if s.calls >= len(s.completions) {
		return model.Completion{}, nil
	}
	c := s.completions[s.calls]
	s.calls++
	return c, nil
}

func (s *stubModel) ChatStream(ctx context.Context, req model.ChatRequest, onChunk func(model.StreamChunk) error) error {
	c, err := s.Chat(ctx, req)
	if err != nil {
		return err
	}
	if len(c.Choices) == 0 {
		return nil
	}
	return onChunk(model.StreamChunk{Choices: []model.StreamChoice{{
		Delta: model.ChoiceDelta{Content: c.Choices[0].Message.Text()},
	}}})
}

func assistantText(text string) model.Completion {
	return model.Completion{Choices: []model.Choice{{Message: model.TextMessage("assistant", text)}}}
}

func assistantToolCall(id, name, argsJSON string) model.Completion {
	return model.Completion{Choices: []model.Choice{{Message: model.Message{
		Role:      "assistant",
		ToolCalls: []model.ToolCall{{ID: id, Name: name, ArgumentsJSON: argsJSON}},
	}}}}
}

func newTestSession(root string) *session.Session {
	return session.New("s1", "u1", root, "You are a helpful assistant.", nil)
}

func echoTool(name string, writable bool) tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{Name: name, Description: "echo"},
		Fn: func(ctx context.Context, params map[string]interface{}) (any, error) {
			return map[string]any{"ok": true, "params": params}, nil
		},
	}
}

func TestLoopReturnsTextWithoutTools(t *testing.T) {
	m := &stubModel{completions: []model.Completion{assistantText("hello there")}}
	l := New(m, tool.NewRegistry(), security.NewGate(), Config{MaxSteps: 3})
	sess := newTestSession(t.TempDir())

	out, err := l.Run(context.Background(), sess, "hi", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello there" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoopExecutesToolThenAnswers(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool("fs_list", false)); err != nil {
		t.Fatalf("register: %v", err)
	}
	m := &stubModel{completions: []model.Completion{
		assistantToolCall("call_1", "fs_list", `{"path":"."}`),
		assistantText("done"),
	}}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 5})
	sess := newTestSession(t.TempDir())

	out, err := l.Run(context.Background(), sess, "list files", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected output: %q", out)
	}

	msgs := sess.Messages()
	var sawToolResult bool
	for _, msg := range msgs {
		if msg.Role == "tool" && msg.ToolCallID == "call_1" {
			sawToolResult = true
			var decoded map[string]any
			if err := json.Unmarshal([]byte(msg.Text()), &decoded); err != nil {
				t.Fatalf("tool result not valid json: %v", err)
			}
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool-role message correlated by ToolCallID")
	}
}

func TestLoopStopsAtMaxSteps(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool("fs_list", false)); err != nil {
		t.Fatalf("register: %v", err)
	}
	completions := make([]model.Completion, 0, 10)
	for i := 0; i < 10; i++ {
		completions = append(completions, assistantToolCall("call_x", "fs_list", `{}`))
	}
	m := &stubModel{completions: completions}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 3})
	sess := newTestSession(t.TempDir())

	out, err := l.Run(context.Background(), sess, "loop forever", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Reached max steps (3) without final response."
	if out != want {
		t.Fatalf("expected sentinel %q, got %q", want, out)
	}
}

func TestLoopDeclinesWritableToolWithoutConfirmation(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool("fs_write", true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	m := &stubModel{completions: []model.Completion{
		assistantToolCall("call_w", "fs_write", `{"path":"a.txt","content":"x"}`),
		assistantText("wrote it"),
	}}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 5})
	sess := newTestSession(t.TempDir())

	confirmCalls := 0
	_, err := l.Run(context.Background(), sess, "write a file", RunOptions{
		Confirm: func(question string) bool {
			confirmCalls++
			return false
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmCalls != 1 {
		t.Fatalf("expected confirm to be consulted once, got %d", confirmCalls)
	}

	var sawDecline bool
	for _, msg := range sess.Messages() {
		if msg.Role == "tool" && msg.ToolCallID == "call_w" {
			if msg.Text() == `{"error":"User declined write operation"}` {
				sawDecline = true
			}
		}
	}
	if !sawDecline {
		t.Fatalf("expected declined write result in conversation")
	}
}

func TestLoopAutoApproveSkipsConfirmation(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool("fs_write", true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	m := &stubModel{completions: []model.Completion{
		assistantToolCall("call_w", "fs_write", `{"path":"a.txt","content":"x"}`),
		assistantText("wrote it"),
	}}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 5, AutoApprove: true})
	sess := newTestSession(t.TempDir())

	out, err := l.Run(context.Background(), sess, "write a file", RunOptions{
		Confirm: func(string) bool { t.Fatalf("confirm should not be called under AutoApprove"); return false },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "wrote it" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoopStreamsTokens(t *testing.T) {
	m := &stubModel{completions: []model.Completion{assistantText("streamed answer")}}
	l := New(m, tool.NewRegistry(), security.NewGate(), Config{MaxSteps: 3})
	sess := newTestSession(t.TempDir())

	var tokens []string
	out, err := l.Run(context.Background(), sess, "hi", RunOptions{
		OnToken: func(tok string) { tokens = append(tokens, tok) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "streamed answer" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(tokens) == 0 {
		t.Fatalf("expected at least one streamed token")
	}
}

func TestLoopRoutesToSpecialistBeforeMainLoop(t *testing.T) {
	registry := tool.NewRegistry()
	m := &stubModel{completions: []model.Completion{
		assistantText("Research plan: ..."), // specialist call
		assistantText("Here's your research summary."),
	}}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 5})
	sess := newTestSession(t.TempDir())

	var agentName, agentContent string
	out, err := l.Run(context.Background(), sess, "please research battery tech", RunOptions{
		OnAgent: func(name, content string) { agentName, agentContent = name, content },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Here's your research summary." {
		t.Fatalf("unexpected output: %q", out)
	}
	if agentName != "research" {
		t.Fatalf("expected research specialist to run, got %q", agentName)
	}
	if agentContent == "" {
		t.Fatalf("expected specialist content to be reported")
	}

	var sawNote bool
	for _, msg := range sess.Messages() {
		if msg.Role == "system" && msg.ToolCallID == "" && msg.Text() != "You are a helpful assistant." {
			sawNote = true
		}
	}
	if !sawNote {
		t.Fatalf("expected a synthesized specialist note in the conversation")
	}
}

func TestLoopRunsMiddlewareAroundChatAndToolSteps(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool("fs_list", false)); err != nil {
		t.Fatalf("register: %v", err)
	}
	m := &stubModel{completions: []model.Completion{
		assistantToolCall("call_1", "fs_list", `{}`),
		assistantText("done"),
	}}
	l := New(m, registry, security.NewGate(), Config{MaxSteps: 5})
	sess := newTestSession(t.TempDir())

	var events []string
	_, err := l.Run(context.Background(), sess, "list", RunOptions{
		Middleware: workflow.Chain{recordingMiddleware{events: &events}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"before:chat", "after:chat", "before:tool:fs_list", "after:tool:fs_list", "before:chat", "after:chat"}
	if len(events) != len(want) {
		t.Fatalf("unexpected event sequence: %v", events)
	}
	for i, w := range want {
		if events[i] != w {
			t.Fatalf("event %d: expected %q, got %q (full: %v)", i, w, events[i], events)
		}
	}
}
