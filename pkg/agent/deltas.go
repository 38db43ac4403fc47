package agent

import (
	"fmt"
	"time"

	"github.com/quietloop/workshop/pkg/model"
)

// slotState is one in-progress tool call being assembled from streamed
// deltas.
type slotState struct {
	id        string
	name      string
	arguments string
}

// Assembler incrementally builds a slice of model.ToolCall from streamed
// model.ToolCallDelta fragments, implementing the slot-resolution rule
// named in the design notes (§4.10, §9): index when present, else id match,
// else append; ids are synthesized for delta-less slots so every finished
// call carries a stable identifier before it is dispatched.
type Assembler struct {
	slots []slotState
	now   func() time.Time
}

// NewAssembler constructs an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// Merge folds one streamed delta into the accumulating slots.
func (a *Assembler) Merge(delta model.ToolCallDelta) {
	idx := a.resolveSlot(delta)
	if idx == -1 {
		id := delta.ID
		if id == "" {
			id = a.synthesizeID(len(a.slots))
		}
		a.slots = append(a.slots, slotState{id: id, name: delta.Name, arguments: delta.ArgumentsChunk})
		return
	}
	slot := &a.slots[idx]
	if delta.ID != "" {
		slot.id = delta.ID
	}
	if delta.Name != "" {
		slot.name = delta.Name
	}
	slot.arguments += delta.ArgumentsChunk
}

// resolveSlot finds the slot index the delta belongs to, or -1 for a new
// slot: an explicit index always wins; otherwise an id match against an
// existing slot; otherwise the delta starts a new slot.
func (a *Assembler) resolveSlot(delta model.ToolCallDelta) int {
	if delta.Index != nil {
		idx := *delta.Index
		for len(a.slots) <= idx {
			a.slots = append(a.slots, slotState{})
		}
		if a.slots[idx].id == "" && delta.ID == "" {
			a.slots[idx].id = a.synthesizeID(idx)
		}
		return idx
	}
	if delta.ID != "" {
		for i, s := range a.slots {
			if s.id == delta.ID {
				return i
			}
		}
	}
	return -1
}

func (a *Assembler) synthesizeID(index int) string {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	return fmt.Sprintf("call_%d_%d", now().UnixNano(), index)
}

// ToolCalls returns the fully assembled calls in slot order, skipping any
// slot that received neither a name nor arguments (a gap left by an index
// that was pre-allocated but never actually filled).
func (a *Assembler) ToolCalls() []model.ToolCall {
	out := make([]model.ToolCall, 0, len(a.slots))
	for _, s := range a.slots {
		if s.name == "" && s.arguments == "" {
			continue
		}
		out = append(out, model.ToolCall{ID: s.id, Name: s.name, ArgumentsJSON: s.arguments})
	}
	return out
}

// Empty reports whether no tool call fragments have been merged yet.
func (a *Assembler) Empty() bool {
	return len(a.slots) == 0
}
