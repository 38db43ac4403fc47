// Package workflow adapts the agent loop's per-step boundaries to a small
// interception interface, generalized from the sibling agent SDK's
// step-oriented Middleware into named steps the loop core (C10) actually
// has: one "chat" step per reasoning call and one "tool:<name>" step per
// executed tool call.
package workflow

// Middleware allows step interception around the agent loop's reasoning and
// tool-execution steps.
type Middleware interface {
	BeforeStep(name string) error
	AfterStep(name string) error
}

// Chain runs a slice of Middleware in order, stopping at the first error.
type Chain []Middleware

// Before runs every middleware's BeforeStep for the named step.
func (c Chain) Before(name string) error {
	for _, m := range c {
		if err := m.BeforeStep(name); err != nil {
			return err
		}
	}
	return nil
}

// After runs every middleware's AfterStep for the named step, in reverse
// registration order, mirroring how deferred cleanup usually unwinds.
func (c Chain) After(name string) error {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].AfterStep(name); err != nil {
			return err
		}
	}
	return nil
}

// StepName builds the canonical step name for the Nth chat call.
func StepName(step int) string {
	return "chat"
}

// ToolStepName builds the canonical step name for a tool execution.
func ToolStepName(toolName string) string {
	return "tool:" + toolName
}
