package openai

import (
	"encoding/json"
	"strconv"
	"strings"
)

type modelOptions struct {
	Temperature *float64
}

func parseModelOptions(extra map[string]any) modelOptions {
	var opts modelOptions
	for key, val := range extra {
		if strings.ToLower(key) == "temperature" {
			if v, ok := toFloat(val); ok {
				opts.Temperature = &v
			}
		}
	}
	return opts
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
