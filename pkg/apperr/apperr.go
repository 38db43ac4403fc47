// Package apperr defines the small set of error kinds surfaced by the
// workshop core so that collaborators (the remote server, tool handlers) can
// branch on them without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories named in the runtime's error design.
type Kind string

const (
	InvalidInput          Kind = "invalid_input"
	Escape                Kind = "escape"
	NotFound              Kind = "not_found"
	Exists                Kind = "exists"
	ProviderError         Kind = "provider_error"
	ToolArgumentsInvalid  Kind = "tool_arguments_invalid"
	ToolExecutionError    Kind = "tool_execution_error"
	Unauthorized          Kind = "unauthorized"
	Busy                  Kind = "busy"
	Cancelled             Kind = "cancelled"

	// IO covers filesystem failures surfaced by the sandbox path resolver
	// that are neither an invalid input nor an escape attempt (disk full,
	// permission denied, and similar).
	IO Kind = "io"
)

// Error wraps an underlying cause with a Kind so call sites can branch with
// errors.As without parsing message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op, wrapping err. A nil err yields a new error
// built from msg-less Kind text.
func New(kind Kind, op string, err error) *Error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to "" when err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to the status code the remote server should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, ToolArgumentsInvalid:
		return 400
	case Unauthorized:
		return 401
	case NotFound:
		return 404
	case Busy:
		return 409
	default:
		return 500
	}
}
