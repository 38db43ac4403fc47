package model

import (
	"context"

	"github.com/quietloop/workshop/pkg/tool"
)

// ToolDefinition is the wire-level tool description carried on a chat
// request, reusing the same JSONSchema shape the tool registry advertises so
// there is a single definition of "what a tool looks like" in the module.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema *tool.JSONSchema
}

// ToolChoice mirrors the two modes the design calls for; providers reject
// requests carrying an empty tool list alongside a non-"none" choice, so
// callers building a ChatRequest should leave Tools nil when there is
// nothing to offer.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest is the unified request shape for both Chat and ChatStream.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	Temperature float64
}

// Choice wraps one completion candidate. Providers in this design return a
// single choice, but the field stays a slice to match the wire shape.
type Choice struct {
	Message Message
}

// Usage reports token accounting when the provider includes it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the unary chat-completion result.
type Completion struct {
	Choices []Choice
	Usage   *Usage
}

// ChoiceDelta is one streamed fragment of an assistant message.
type ChoiceDelta struct {
	Role      string
	Content   string
	ToolCalls []ToolCallDelta
}

// StreamChoice wraps one streamed choice's delta.
type StreamChoice struct {
	Delta        ChoiceDelta
	FinishReason string
}

// StreamChunk is one event yielded by ChatStream.
type StreamChunk struct {
	Choices []StreamChoice
}

// Model is a concrete chat-completion backend: a single provider/model pair
// already carrying its credentials and endpoint.
type Model interface {
	// Chat performs a single blocking completion call.
	Chat(ctx context.Context, req ChatRequest) (Completion, error)

	// ChatStream performs a streaming completion call, invoking onChunk for
	// every decoded chunk in arrival order. Cancelling ctx aborts the
	// underlying request; chunks already delivered to onChunk remain valid,
	// and ChatStream returns ctx.Err().
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) error
}
