// Package middleware sanitizes arbitrary tool-call arguments and results
// before they cross a logging or event boundary, generalized from the
// sibling agent SDK's trace-event payload cleanup into the shape the
// session logger (C7) needs: tool_call arguments arrive as either a raw
// string or an already-decoded object, and tool_result outputs can carry
// errors or non-serializable values that must not blow up json.Marshal.
package middleware

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// decodeJSONMap decodes raw into a fresh map[string]any for logging. Empty
// input yields nil. Invalid JSON is not an error here — it is echoed back
// under a "raw" key so the log line still records what was seen.
func decodeJSONMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return out
}

// cloneMap returns a shallow copy of src with every value passed through
// sanitizePayload, so the returned map never aliases src's storage and never
// holds a value json.Marshal would choke on.
func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = sanitizePayload(v)
	}
	return dst
}

// valueErrorString extracts an error message from v when v is an error, or
// a struct/pointer-to-struct carrying a non-nil "Err" field. Anything else
// returns "".
func valueErrorString(v any) string {
	if v == nil {
		return ""
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ""
	}
	field := rv.FieldByName("Err")
	if !field.IsValid() || field.IsNil() {
		return ""
	}
	if err, ok := field.Interface().(error); ok {
		return err.Error()
	}
	return ""
}

// sanitizePayload converts v into something safe to hand to json.Marshal
// for a log line or SSE frame: raw JSON is defensively copied, byte slices
// and errors become strings, and channels/functions become a descriptive
// placeholder instead of failing to encode.
func sanitizePayload(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	case []byte:
		if json.Valid(val) {
			cp := make(json.RawMessage, len(val))
			copy(cp, val)
			return cp
		}
		return string(val)
	case error:
		return val.Error()
	}

	if msg := valueErrorString(v); msg != "" {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("<non-serializable:%s>", rv.Type())
	}

	if _, err := json.Marshal(v); err != nil {
		return reflect.TypeOf(v).String()
	}
	return v
}

// Sanitize is the exported entry point the session logger (C7) calls before
// writing a tool_call/tool_result payload to the JSONL transcript.
func Sanitize(v any) any { return sanitizePayload(v) }

// SanitizeMap is the exported entry point for sanitizing an entire
// arguments/metadata map at once.
func SanitizeMap(src map[string]any) map[string]any { return cloneMap(src) }

// DecodeArguments decodes a tool call's raw JSON arguments into a loggable
// map, falling back to an echoed "raw" field on invalid JSON.
func DecodeArguments(raw json.RawMessage) map[string]any { return decodeJSONMap(raw) }
