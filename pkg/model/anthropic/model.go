package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	modelpkg "github.com/quietloop/workshop/pkg/model"
)

// Ensure AnthropicModel implements the Model interface.
var _ modelpkg.Model = (*AnthropicModel)(nil)

// AnthropicModel is a concrete model backed by Anthropic's Messages API. It
// is an optional second Model implementation alongside the OpenAI-style
// adapter the runtime is specified against; the reason/act loop is
// oblivious to which one it is talking to.
type AnthropicModel struct {
	client  *http.Client
	baseURL string
	model   string
	headers map[string]string
	opts    modelOptions
}

// Chat performs a single blocking Anthropic Messages API call.
func (m *AnthropicModel) Chat(ctx context.Context, req modelpkg.ChatRequest) (modelpkg.Completion, error) {
	payload := m.buildPayload(req, false)
	resp, err := m.doRequest(ctx, payload)
	if err != nil {
		return modelpkg.Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return modelpkg.Completion{}, readAPIError(resp)
	}

	var msgResp MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return modelpkg.Completion{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	return modelpkg.Completion{Choices: []modelpkg.Choice{{Message: convertResponse(msgResp)}}}, nil
}

// ChatStream invokes the Anthropic streaming endpoint (SSE) and relays
// incremental chunks to onChunk.
func (m *AnthropicModel) ChatStream(ctx context.Context, req modelpkg.ChatRequest, onChunk func(modelpkg.StreamChunk) error) error {
	if onChunk == nil {
		return fmt.Errorf("anthropic chat stream callback is required")
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

	streamErr := consumeSSE(ctx, resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" {
			return nil
		}

		var envelope StreamEventEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			// Implementation chatter, not a protocol error: drop it.
			return nil
		}

		switch envelope.Type {
		case "content_block_delta":
			var delta ContentBlockDeltaEvent
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				return nil
			}
			if delta.Delta.Text == "" {
				return nil
			}
			return onChunk(modelpkg.StreamChunk{Choices: []modelpkg.StreamChoice{{
				Delta: modelpkg.ChoiceDelta{Role: "assistant", Content: delta.Delta.Text},
			}}})
		case "message_stop":
			return onChunk(modelpkg.StreamChunk{Choices: []modelpkg.StreamChoice{{FinishReason: "stop"}}})
		default:
			return nil
		}
	})

	if streamErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return streamErr
	}
	return nil
}

func (m *AnthropicModel) buildPayload(req modelpkg.ChatRequest, stream bool) MessageRequest {
	systemText, chatMessages := toAnthropicMessages(req.Messages)
	if m.opts.System != "" {
		if systemText != "" {
			systemText = systemText + "\n\n" + m.opts.System
		} else {
			systemText = m.opts.System
		}
	}

	payload := MessageRequest{
		Model:     m.model,
		Messages:  chatMessages,
		MaxTokens: m.opts.MaxTokens,
		Stream:    stream,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}

	if systemText != "" {
		payload.System = systemText
	}
	if m.opts.Metadata != nil {
		payload.Metadata = cloneMetadata(m.opts.Metadata)
	}
	if req.Temperature > 0 {
		t := req.Temperature
		payload.Temperature = &t
	} else if m.opts.Temperature != nil {
		payload.Temperature = m.opts.Temperature
	}
	if m.opts.TopP != nil {
		payload.TopP = m.opts.TopP
	}
	if m.opts.TopK != nil {
		payload.TopK = m.opts.TopK
	}
	if len(req.Tools) > 0 && req.ToolChoice != modelpkg.ToolChoiceNone {
		payload.Tools = toAnthropicTools(req.Tools)
	}

	return payload
}

func toAnthropicTools(defs []modelpkg.ToolDefinition) []ToolSpec {
	out := make([]ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolSpec{Name: d.Name, Description: d.Description, InputSchema: d.ParametersSchema})
	}
	return out
}

func (m *AnthropicModel) doRequest(ctx context.Context, payload MessageRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode anthropic request: %w", err)
	}

	endpoint := m.baseURL + messagesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}

	for k, v := range m.headers {
		if v == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	return m.client.Do(httpReq)
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic api status %d: %w", resp.StatusCode, err)
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

func convertResponse(resp MessageResponse) modelpkg.Message {
	msg := modelpkg.Message{Role: resp.Role}
	var text strings.Builder
	var toolCalls []modelpkg.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, modelpkg.ToolCall{
				ID:            block.ID,
				Name:          block.Name,
				ArgumentsJSON: string(argsJSON),
			})
		}
	}
	content := text.String()
	msg.Content = &content
	msg.ToolCalls = toolCalls
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return msg
}

func toAnthropicMessages(messages []modelpkg.Message) (string, []MessageParam) {
	var systemParts []string
	out := make([]MessageParam, 0, len(messages))
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "system" {
			if msg.Text() != "" {
				systemParts = append(systemParts, msg.Text())
			}
			continue
		}
		if role == "tool" {
			var result any = msg.Text()
			blocks := []ContentBlock{{Type: "tool_result", ToolUseID: msg.ToolCallID, Text: fmt.Sprint(result)}}
			out = append(out, MessageParam{Role: "user", Content: blocks})
			continue
		}

		blocks := make([]ContentBlock, 0, 1+len(msg.ToolCalls))
		if msg.Text() != "" {
			blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Text()})
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal([]byte(call.ArgumentsJSON), &input)
			blocks = append(blocks, ContentBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: input,
			})
		}
		if len(blocks) == 0 {
			blocks = append(blocks, ContentBlock{Type: "text", Text: ""})
		}

		out = append(out, MessageParam{Role: normalizeRole(role), Content: blocks})
	}

	if len(out) == 0 {
		out = append(out, MessageParam{
			Role:    "user",
			Content: []ContentBlock{{Type: "text", Text: ""}},
		})
	}
	return strings.Join(systemParts, "\n\n"), out
}

func normalizeRole(role string) string {
	switch role {
	case "assistant", "model":
		return "assistant"
	default:
		return "user"
	}
}
