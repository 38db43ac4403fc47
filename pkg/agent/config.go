package agent

import (
	"time"

	"github.com/quietloop/workshop/pkg/workflow"
)

const defaultMaxSteps = 12

// Config carries the bounded reason/act loop's construction-time settings.
type Config struct {
	// MaxSteps bounds the number of assistant turns a single Run may issue
	// before the loop returns the max-steps sentinel (§3 invariant, §7).
	MaxSteps int
	// AutoApprove disables the writable-tool confirmation gate entirely,
	// matching the remote server's autoApprove=true session mode (§4.11).
	AutoApprove bool
	// WhitelistTTL, when > 0, grants a session an auto-approve window after
	// the first accepted write confirmation (§12 supplemented feature).
	WhitelistTTL time.Duration
}

func (c Config) maxSteps() int {
	if c.MaxSteps <= 0 {
		return defaultMaxSteps
	}
	return c.MaxSteps
}

// RunOptions carries the per-turn observers and collaborators the loop
// consults while executing a single Run call.
type RunOptions struct {
	// OnToken, when non-nil, switches the reasoning call to streaming mode
	// (§4.10 step 3a) and receives each emitted content token in order.
	OnToken func(token string)
	// OnAgent is notified when a specialist agent profile is invoked (§4.9).
	OnAgent func(name, content string)
	// Confirm is consulted before a writable tool executes unless the loop
	// is configured with AutoApprove or the session is currently
	// whitelisted (§4.10, §12).
	Confirm func(question string) bool
	// Hooks receive every logged event alongside the session's own logger,
	// generalizing the sibling agent SDK's lifecycle hook interface (§12).
	Hooks []Hook
	// Middleware wraps each reasoning call and each tool execution in a
	// Before/After boundary; an error around a reasoning call aborts the
	// turn, while an error around a tool execution only turns that call's
	// result into {"error": ...}.
	Middleware workflow.Chain
}
