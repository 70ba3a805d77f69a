// Package fibererr provides structured error types for tool invocation
// failures within the engine. ToolError preserves error chains and supports
// errors.Is/As while remaining serialization-friendly across process
// boundaries (e.g. when a tool result crosses a durable-execution activity
// boundary). Adapted from the teacher's toolerrors package.
package fibererr

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure that preserves message and
// causal context while still implementing the standard error interface.
// Tool errors may be nested via Cause to retain diagnostics across retries.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// NewToolError constructs a ToolError with the provided message.
func NewToolError(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewToolErrorWithCause constructs a ToolError that wraps an underlying
// error, converting the cause into a ToolError chain so metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewToolErrorWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: ToolErrorFromError(cause)}
}

// ToolErrorFromError converts an arbitrary error into a ToolError chain.
func ToolErrorFromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: ToolErrorFromError(errors.Unwrap(err))}
}

// ToolErrorf formats according to a format specifier and returns the result
// as a ToolError.
func ToolErrorf(format string, args ...any) *ToolError {
	return NewToolError(fmt.Sprintf(format, args...))
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
