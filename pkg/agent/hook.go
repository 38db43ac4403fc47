package agent

import "github.com/quietloop/workshop/pkg/model"

// Hook lets a collaborator observe every event the loop would otherwise
// only hand to the session's transcript logger, generalized from the
// sibling agent SDK's PreRun/PostRun/PreToolCall/PostToolCall lifecycle
// interface (pkg/agent/lifecycle.go in the retrieval pack) into the exact
// four log event shapes the session logger (C7) defines. *session.Logger
// satisfies this interface directly — "the logger registers itself as a
// hook" (§12) needs no adapter type.
type Hook interface {
	LogMessage(msg model.Message)
	LogToolCall(name string, arguments any)
	LogToolResult(name string, result any)
	LogAgent(id, name, reason, content string)
}

func fireMessage(hooks []Hook, msg model.Message) {
	for _, h := range hooks {
		if h != nil {
			h.LogMessage(msg)
		}
	}
}

func fireToolCall(hooks []Hook, name string, arguments any) {
	for _, h := range hooks {
		if h != nil {
			h.LogToolCall(name, arguments)
		}
	}
}

func fireToolResult(hooks []Hook, name string, result any) {
	for _, h := range hooks {
		if h != nil {
			h.LogToolResult(name, result)
		}
	}
}

func fireAgent(hooks []Hook, id, name, reason, content string) {
	for _, h := range hooks {
		if h != nil {
			h.LogAgent(id, name, reason, content)
		}
	}
}
