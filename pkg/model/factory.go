package model

import (
	"context"
	"fmt"
	"sync"
)

// Factory holds the registered Provider implementations and creates models
// on demand. defaultProvider lets a caller configure this runtime's LLM
// section with an empty "provider" field and still get a working model,
// which cmd/workshopd relies on so a bare config file with just an API key
// starts up against OpenAI without every operator having to spell out
// "provider: openai".
type Factory struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// NewFactory constructs a factory seeded with the provided providers.
func NewFactory(providers ...Provider) *Factory {
	f := &Factory{
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		f.providers[p.Name()] = p
	}
	return f
}

// Register attaches or replaces a Provider implementation.
func (f *Factory) Register(p Provider) {
	if p == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.providers == nil {
		f.providers = map[string]Provider{}
	}
	f.providers[p.Name()] = p
}

// SetDefaultProvider names the provider NewModel falls back to when cfg.
// Provider is empty. The name does not need to be registered yet.
func (f *Factory) SetDefaultProvider(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultProvider = name
}

// Providers lists the names currently registered, for startup diagnostics.
func (f *Factory) Providers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	return names
}

// NewModel builds a model instance through the provider declared in cfg,
// falling back to the factory's default provider when cfg.Provider is empty.
func (f *Factory) NewModel(ctx context.Context, cfg ModelConfig) (Model, error) {
	f.mu.RLock()
	providerName := cfg.Provider
	if providerName == "" {
		providerName = f.defaultProvider
	}
	provider := f.providers[providerName]
	f.mu.RUnlock()

	if providerName == "" {
		return nil, fmt.Errorf("model provider not specified")
	}
	if provider == nil {
		return nil, fmt.Errorf("model provider %q is not registered", providerName)
	}

	return provider.NewModel(ctx, cfg)
}
