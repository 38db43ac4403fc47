// Package openai implements the chat provider adapter (C6): unary and
// streaming chat-completion calls over an OpenAI-compatible endpoint,
// structured the way the sibling agent SDK structures its Anthropic
// adapter (client.go/model.go/options.go/streaming.go/types.go), with the
// request/response shapes and streaming delta semantics swapped for the
// OpenAI wire format this runtime is specified against.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	modelpkg "github.com/quietloop/workshop/pkg/model"
)

var _ modelpkg.Provider = (*Provider)(nil)

// Provider wires OpenAI-compatible model implementations into the factory.
type Provider struct {
	HTTPClient *http.Client
}

// NewProvider builds a Provider with the supplied HTTP client. When client
// is nil, a default client with a sane timeout is used.
func NewProvider(client *http.Client) *Provider {
	return &Provider{HTTPClient: client}
}

// Name advertises the provider identifier used by the factory.
func (p *Provider) Name() string { return "openai" }

// NewModel materializes a Model configured according to cfg.
func (p *Provider) NewModel(ctx context.Context, cfg modelpkg.ModelConfig) (modelpkg.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = strings.TrimSpace(cfg.Name)
	}
	if modelName == "" {
		return nil, errors.New("openai model name is required")
	}

	baseURL := sanitizeBaseURL(cfg.BaseURL)
	headers := buildDefaultHeaders(apiKey)
	for k, v := range cfg.Headers {
		if strings.TrimSpace(k) == "" || v == "" {
			continue
		}
		headers[k] = v
	}

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Duration(defaultHTTPTimeout) * time.Second}
	}

	return &Model{
		client:  client,
		baseURL: baseURL,
		model:   modelName,
		headers: headers,
		opts:    parseModelOptions(cfg.Extra),
	}, nil
}

func sanitizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return defaultBaseURL
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if trimmed == "" {
		return defaultBaseURL
	}
	return trimmed
}

func buildDefaultHeaders(apiKey string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Content-Type":  "application/json",
		"User-Agent":    userAgent,
	}
}
