// Package agent implements the bounded reason/act loop (C10) that drives one
// turn of a session: it appends the user's message, optionally hands the
// request off to a specialist agent (C9) chosen by the router (C8), then
// alternates model calls with tool execution until the model answers in
// text or the step bound is reached.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quietloop/workshop/pkg/apperr"
	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/router"
	"github.com/quietloop/workshop/pkg/security"
	"github.com/quietloop/workshop/pkg/session"
	"github.com/quietloop/workshop/pkg/tool"
	"github.com/quietloop/workshop/pkg/workflow"
)

const noResponseSentinel = "No response from model."

// Loop wires the collaborators the reason/act cycle needs: a chat model, the
// tool catalog it may call, the writable-tool confirmation gate, and the
// bounds/flags from Config.
type Loop struct {
	Model    model.Model
	Registry *tool.Registry
	Gate     *security.Gate
	Config   Config
	// Logger receives operational events (turn start, specialist dispatch,
	// step-bound exhaustion, cancellation) — distinct from the per-session
	// JSONL transcript a Hook writes.
	Logger *zap.Logger
}

// New constructs a Loop from its collaborators. A nil zap logger is
// replaced with a no-op logger.
func New(m model.Model, registry *tool.Registry, gate *security.Gate, cfg Config) *Loop {
	return &Loop{Model: m, Registry: registry, Gate: gate, Config: cfg, Logger: zap.NewNop()}
}

// WithLogger attaches an operational logger, following the sibling
// telemetry-debugger agent's Config.Logger pattern of an optional,
// explicitly-injected *zap.Logger collaborator.
func (l *Loop) WithLogger(logger *zap.Logger) *Loop {
	if logger != nil {
		l.Logger = logger
	}
	return l
}

func (l *Loop) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Run executes one turn: append the user message, optionally consult a
// specialist agent, then iterate the reason/act cycle up to Config.MaxSteps
// times. It returns the assistant's final text, or one of the sentinel
// strings the design calls for when the model never produces one.
func (l *Loop) Run(ctx context.Context, sess *session.Session, input string, opts RunOptions) (string, error) {
	hooks := l.hooksFor(sess, opts)

	l.logger().Info("agent turn started",
		zap.String("sessionId", sess.ID()),
		zap.Int("inputChars", len(input)),
	)

	userMsg := model.TextMessage("user", input)
	sess.Append(userMsg)
	fireMessage(hooks, userMsg)

	if match := router.Route(input); match != nil {
		l.logger().Info("routed to specialist agent",
			zap.String("sessionId", sess.ID()),
			zap.String("agent", match.Agent.Name),
			zap.String("reason", match.Reason),
		)
		if err := l.runSpecialistTurn(ctx, sess, match, opts, hooks); err != nil {
			return "", err
		}
	}

	defs := l.Registry.Definitions()
	tools := toolDefinitions(defs)

	for step := 0; step < l.Config.maxSteps(); step++ {
		if err := ctx.Err(); err != nil {
			l.logger().Warn("agent turn cancelled",
				zap.String("sessionId", sess.ID()),
				zap.Int("step", step),
				zap.Error(err),
			)
			return "", apperr.New(apperr.Cancelled, "agent.Run", err)
		}

		req := model.ChatRequest{Messages: sess.Messages()}
		if len(tools) > 0 {
			req.Tools = tools
			req.ToolChoice = model.ToolChoiceAuto
		}

		stepName := workflow.StepName(step)
		if err := opts.Middleware.Before(stepName); err != nil {
			return "", apperr.New(apperr.ProviderError, "agent.Run", err)
		}

		assistantMsg, err := l.reason(ctx, req, opts)
		if err != nil {
			if ctx.Err() != nil {
				return "", apperr.New(apperr.Cancelled, "agent.Run", ctx.Err())
			}
			return "", apperr.New(apperr.ProviderError, "agent.Run", err)
		}

		if err := opts.Middleware.After(stepName); err != nil {
			return "", apperr.New(apperr.ProviderError, "agent.Run", err)
		}

		sess.Append(assistantMsg)
		fireMessage(hooks, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			text := strings.TrimSpace(assistantMsg.Text())
			if text == "" {
				continue
			}
			return text, nil
		}

		l.executeToolCalls(ctx, sess, assistantMsg.ToolCalls, opts, hooks)
	}

	l.logger().Warn("agent turn exhausted step budget",
		zap.String("sessionId", sess.ID()),
		zap.Int("maxSteps", l.Config.maxSteps()),
	)
	return fmt.Sprintf("Reached max steps (%d) without final response.", l.Config.maxSteps()), nil
}

// runSpecialistTurn invokes the routed specialist agent and injects its
// output as a synthesized system note ahead of the main reasoning loop
// (§4.9).
func (l *Loop) runSpecialistTurn(ctx context.Context, sess *session.Session, match *router.Match, opts RunOptions, hooks []Hook) error {
	text, err := runSpecialist(ctx, l.Model, match.Agent, sess.Messages()[len(sess.Messages())-1].Text())
	if err != nil {
		return apperr.New(apperr.ProviderError, "agent.runSpecialistTurn", err)
	}
	if opts.OnAgent != nil {
		opts.OnAgent(match.Agent.Name, text)
	}
	fireAgent(hooks, match.Agent.ID, match.Agent.Name, match.Reason, text)

	note := model.TextMessage("system", specialistNote(match.Agent.Name, text))
	sess.Append(note)
	fireMessage(hooks, note)
	return nil
}

// reason performs a single model call, streaming when opts.OnToken is set
// and assembling tool-call deltas with an Assembler (S5), or a plain unary
// call otherwise.
func (l *Loop) reason(ctx context.Context, req model.ChatRequest, opts RunOptions) (model.Message, error) {
	if opts.OnToken == nil {
		completion, err := l.Model.Chat(ctx, req)
		if err != nil {
			return model.Message{}, err
		}
		if len(completion.Choices) == 0 {
			return model.TextMessage("assistant", noResponseSentinel), nil
		}
		return completion.Choices[0].Message, nil
	}

	var content strings.Builder
	assembler := NewAssembler()
	err := l.Model.ChatStream(ctx, req, func(chunk model.StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				opts.OnToken(choice.Delta.Content)
			}
			for _, delta := range choice.Delta.ToolCalls {
				assembler.Merge(delta)
			}
		}
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}

	msg := model.Message{Role: "assistant"}
	if assembler.Empty() {
		text := content.String()
		msg.Content = &text
		if strings.TrimSpace(text) == "" {
			return model.TextMessage("assistant", noResponseSentinel), nil
		}
		return msg, nil
	}
	if content.Len() > 0 {
		text := content.String()
		msg.Content = &text
	}
	msg.ToolCalls = assembler.ToolCalls()
	return msg, nil
}

// executeToolCalls runs each requested tool call in order, gating writable
// tools behind confirmation, and appends the corresponding tool-role
// messages to the session.
func (l *Loop) executeToolCalls(ctx context.Context, sess *session.Session, calls []model.ToolCall, opts RunOptions, hooks []Hook) {
	for _, call := range calls {
		stepName := workflow.ToolStepName(call.Name)
		var result any
		if err := opts.Middleware.Before(stepName); err != nil {
			result = map[string]string{"error": err.Error()}
		} else {
			result = l.executeOne(ctx, sess.ID(), call, opts, hooks)
			if err := opts.Middleware.After(stepName); err != nil {
				result = map[string]string{"error": err.Error()}
			}
		}
		msg := toolResultMessage(call, result)
		sess.Append(msg)
		fireMessage(hooks, msg)
	}
}

func (l *Loop) executeOne(ctx context.Context, sessionID string, call model.ToolCall, opts RunOptions, hooks []Hook) any {
	fireToolCall(hooks, call.Name, call.ArgumentsJSON)

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(call.ArgumentsJSON), &params); err != nil {
		l.logger().Warn("invalid tool arguments",
			zap.String("sessionId", sessionID),
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		result := map[string]string{"error": fmt.Sprintf("Invalid tool arguments for %s", call.Name)}
		fireToolResult(hooks, call.Name, result)
		return result
	}

	if tool.WritableNames[call.Name] && !l.Config.AutoApprove {
		question := fmt.Sprintf("Allow %s to run with arguments %s?", call.Name, call.ArgumentsJSON)
		decision := l.Gate.Evaluate(sessionID, call.Name, question, l.Config.WhitelistTTL, security.Confirm(opts.Confirm))
		if !decision.Approved {
			result := map[string]string{"error": "User declined write operation"}
			fireToolResult(hooks, call.Name, result)
			return result
		}
	}

	out, err := l.Registry.Execute(ctx, call.Name, params)
	if err != nil {
		l.logger().Warn("tool execution failed",
			zap.String("sessionId", sessionID),
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		result := map[string]string{"error": err.Error()}
		fireToolResult(hooks, call.Name, result)
		return result
	}
	fireToolResult(hooks, call.Name, out)
	return out
}

// hooksFor returns opts.Hooks with the session's own logger appended when
// present, so the transcript logger observes every event the same way any
// other registered hook does — no separate logging path.
func (l *Loop) hooksFor(sess *session.Session, opts RunOptions) []Hook {
	hooks := opts.Hooks
	if logger := sess.Logger(); logger != nil {
		hooks = append(append([]Hook{}, hooks...), logger)
	}
	return hooks
}

// toolResultMessage renders a tool execution result into the tool-role
// message the model expects in the next turn.
func toolResultMessage(call model.ToolCall, result any) model.Message {
	text, err := json.Marshal(result)
	if err != nil {
		text = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	content := string(text)
	return model.Message{Role: "tool", Content: &content, ToolCallID: call.ID}
}

func toolDefinitions(defs []tool.Definition) []model.ToolDefinition {
	out := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.ToolDefinition{
			Name:             d.Name,
			Description:      d.Description,
			ParametersSchema: d.Parameters,
		})
	}
	return out
}
