package tool

import (
	"context"
	"fmt"
	"sync"
)

// Registry keeps the mapping between tool names and implementations.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator Validator
}

// NewRegistry creates a registry backed by the default validator.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		validator: DefaultValidator{},
	}
}

// Register inserts a tool when its name is not already in use.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return t, nil
}

// Definitions produces the wire-level tool catalog for the chat provider.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// SetValidator swaps the validator used before execution.
func (r *Registry) SetValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// Execute validates params against the tool's schema (if any) and invokes
// it.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	def := t.Definition()
	if def.Parameters != nil {
		r.mu.RLock()
		validator := r.validator
		r.mu.RUnlock()
		if validator != nil {
			if err := validator.Validate(params, def.Parameters); err != nil {
				return nil, fmt.Errorf("tool %s validation failed: %w", name, err)
			}
		}
	}
	return t.Execute(ctx, params)
}
