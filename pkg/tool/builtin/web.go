package toolbuiltin

import (
	"context"
	"fmt"

	"github.com/quietloop/workshop/pkg/tool"
	"github.com/quietloop/workshop/pkg/web"
)

// WebTools bundles the search and fetch tools over a shared web.Client.
type WebTools struct {
	client *web.Client
}

// NewWebTools constructs the web-tool set.
func NewWebTools(client *web.Client) *WebTools {
	return &WebTools{client: client}
}

// Search returns the web_search tool.
func (w *WebTools) Search() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "web_search",
			Description: "Search the web and optionally fetch the readable text of the top results.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query":      map[string]interface{}{"type": "string", "description": "Search query."},
					"count":      map[string]interface{}{"type": "integer", "description": "Number of results to return. Defaults to 5."},
					"fetch":      map[string]interface{}{"type": "boolean", "description": "Whether to fetch the top results' pages. Defaults to true."},
					"fetchCount": map[string]interface{}{"type": "integer", "description": "How many top results to fetch. Defaults to min(3, count)."},
					"maxChars":   map[string]interface{}{"type": "integer", "description": "Character cap per fetched page. Defaults to 20000."},
				},
				Required: []string{"query"},
			},
		},
		Fn: w.search,
	}
}

// Fetch returns the web_fetch tool.
func (w *WebTools) Fetch() tool.Tool {
	return tool.HandlerFunc{
		Def: tool.Definition{
			Name:        "web_fetch",
			Description: "Fetch a URL and extract its readable text.",
			Parameters: &tool.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"url":      map[string]interface{}{"type": "string", "description": "URL to fetch."},
					"maxChars": map[string]interface{}{"type": "integer", "description": "Character cap. Defaults to 20000."},
				},
				Required: []string{"url"},
			},
		},
		Fn: w.fetch,
	}
}

func (w *WebTools) search(ctx context.Context, params map[string]interface{}) (any, error) {
	query, _ := params["query"].(string)
	opts := web.SearchOptions{Fetch: true}
	if v, ok := params["count"]; ok {
		opts.Count = toInt(v)
	}
	if v, ok := params["fetch"].(bool); ok {
		opts.Fetch = v
	}
	if v, ok := params["fetchCount"]; ok {
		opts.FetchCount = toInt(v)
	}
	if v, ok := params["maxChars"]; ok {
		opts.MaxChars = toInt(v)
	}
	return w.client.Search(ctx, query, opts)
}

func (w *WebTools) fetch(ctx context.Context, params map[string]interface{}) (any, error) {
	url, _ := params["url"].(string)
	maxChars := 0
	if v, ok := params["maxChars"]; ok {
		maxChars = toInt(v)
	}
	return w.client.Fetch(ctx, url, maxChars)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		var out int
		_, _ = fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
