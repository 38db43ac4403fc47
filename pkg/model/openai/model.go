package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	modelpkg "github.com/quietloop/workshop/pkg/model"
)

var _ modelpkg.Model = (*Model)(nil)

// Model is a concrete OpenAI-compatible chat-completion backend, already
// carrying its credentials, base URL, and model name.
type Model struct {
	client  *http.Client
	baseURL string
	model   string
	headers map[string]string
	opts    modelOptions
}

// Chat performs a single blocking chat-completion call.
func (m *Model) Chat(ctx context.Context, req modelpkg.ChatRequest) (modelpkg.Completion, error) {
	payload := m.buildPayload(req, false)
	resp, err := m.doRequest(ctx, payload)
	if err != nil {
		return modelpkg.Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return modelpkg.Completion{}, readAPIError(resp)
	}

	var parsed ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return modelpkg.Completion{}, fmt.Errorf("decode chat completion response: %w", err)
	}

	completion := modelpkg.Completion{}
	for _, c := range parsed.Choices {
		completion.Choices = append(completion.Choices, modelpkg.Choice{Message: convertResponseMessage(c.Message)})
	}
	if parsed.Usage != nil {
		completion.Usage = &modelpkg.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return completion, nil
}

// ChatStream performs a streaming chat-completion call, decoding each
// "data:" line and relaying it to onChunk in arrival order. A malformed
// JSON line is implementation chatter, not an error, and is dropped
// silently; the terminating "[DONE]" sentinel ends the sequence cleanly.
func (m *Model) ChatStream(ctx context.Context, req modelpkg.ChatRequest, onChunk func(modelpkg.StreamChunk) error) error {
	if onChunk == nil {
		return fmt.Errorf("chat stream callback is required")
	}

	payload := m.buildPayload(req, true)
	resp, err := m.doRequest(ctx, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return readAPIError(resp)
	}

	streamErr := consumeSSE(ctx, resp.Body, func(data string) error {
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		return onChunk(convertStreamChunk(chunk))
	})

	if streamErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return streamErr
	}
	return nil
}

func (m *Model) buildPayload(req modelpkg.ChatRequest, stream bool) ChatCompletionRequest {
	payload := ChatCompletionRequest{
		Model:    m.model,
		Messages: toRequestMessages(req.Messages),
		Stream:   stream,
	}

	if req.Temperature > 0 {
		t := req.Temperature
		payload.Temperature = &t
	} else if m.opts.Temperature != nil {
		payload.Temperature = m.opts.Temperature
	}

	// Some providers reject an empty tools array outright, so it is only
	// ever set when there is something to advertise.
	if len(req.Tools) > 0 {
		payload.Tools = toRequestTools(req.Tools)
		if req.ToolChoice != "" {
			payload.ToolChoice = string(req.ToolChoice)
		}
	}

	return payload
}

func toRequestTools(defs []modelpkg.ToolDefinition) []ToolSpec {
	out := make([]ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolSpec{
			Type: "function",
			Function: FunctionSpec{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.ParametersSchema,
			},
		})
	}
	return out
}

func toRequestMessages(messages []modelpkg.Message) []MessageParam {
	out := make([]MessageParam, 0, len(messages))
	for _, msg := range messages {
		p := MessageParam{Role: msg.Role, ToolCallID: msg.ToolCallID}
		if msg.Content != nil {
			p.Content = msg.Content
		}
		for _, call := range msg.ToolCalls {
			p.ToolCalls = append(p.ToolCalls, ToolCallParam{
				ID:   call.ID,
				Type: "function",
				Function: FunctionCallBody{
					Name:      call.Name,
					Arguments: call.ArgumentsJSON,
				},
			})
		}
		out = append(out, p)
	}
	return out
}

func convertResponseMessage(msg ResponseMessage) modelpkg.Message {
	out := modelpkg.Message{Role: msg.Role, Content: msg.Content}
	if out.Role == "" {
		out.Role = "assistant"
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, modelpkg.ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	return out
}

func convertStreamChunk(chunk StreamChunk) modelpkg.StreamChunk {
	out := modelpkg.StreamChunk{}
	for _, c := range chunk.Choices {
		delta := modelpkg.ChoiceDelta{Role: c.Delta.Role, Content: c.Delta.Content}
		for _, tc := range c.Delta.ToolCalls {
			d := modelpkg.ToolCallDelta{ID: tc.ID}
			idx := tc.Index
			d.Index = &idx
			if tc.Function != nil {
				d.Name = tc.Function.Name
				d.ArgumentsChunk = tc.Function.Arguments
			}
			delta.ToolCalls = append(delta.ToolCalls, d)
		}
		sc := modelpkg.StreamChoice{Delta: delta}
		if c.FinishReason != nil {
			sc.FinishReason = *c.FinishReason
		}
		out.Choices = append(out.Choices, sc)
	}
	return out
}

func (m *Model) doRequest(ctx context.Context, payload ChatCompletionRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode chat completion request: %w", err)
	}

	endpoint := m.baseURL + chatCompletionPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create chat completion request: %w", err)
	}

	for k, v := range m.headers {
		if v == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	if payload.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return m.client.Do(httpReq)
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai-compatible api status %d: %w", resp.StatusCode, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return APIError{StatusCode: resp.StatusCode, Type: apiErr.Error.Type, Message: apiErr.Error.Message}
	}

	return APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
