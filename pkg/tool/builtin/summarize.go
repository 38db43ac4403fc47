package toolbuiltin

import (
	"context"

	"github.com/quietloop/workshop/pkg/summarize"
	"github.com/quietloop/workshop/pkg/tool"
)

// SummarizeTool wraps the document summarizer as a callable tool.
type SummarizeTool struct {
	summarizer *summarize.Summarizer
}

// NewSummarizeTool constructs the summarize_document tool.
func NewSummarizeTool(s *summarize.Summarizer) *SummarizeTool {
	return &SummarizeTool{summarizer: s}
}

func (t *SummarizeTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        "summarize_document",
		Description: "Summarize a document from a workspace-relative file path or a URL.",
		Parameters: &tool.JSONSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source":   map[string]interface{}{"type": "string", "description": "File path relative to the workspace root, or an http(s) URL."},
				"style":    map[string]interface{}{"type": "string", "enum": []string{"brief", "detailed", "bullets"}, "description": "Summary style. Defaults to brief."},
				"focus":    map[string]interface{}{"type": "string", "description": "Optional focus instruction."},
				"maxChars": map[string]interface{}{"type": "integer", "description": "Character cap on the loaded source text. Defaults to 60000."},
			},
			Required: []string{"source"},
		},
	}
}

func (t *SummarizeTool) Execute(ctx context.Context, params map[string]interface{}) (any, error) {
	req := summarize.Request{}
	if v, ok := params["source"].(string); ok {
		req.Source = v
	}
	if v, ok := params["style"].(string); ok {
		req.Style = summarize.Style(v)
	}
	if v, ok := params["focus"].(string); ok {
		req.Focus = v
	}
	if v, ok := params["maxChars"]; ok {
		req.MaxChars = toInt(v)
	}
	return t.summarizer.Summarize(ctx, req), nil
}
