// Package ids centralizes identifier generation for the engine so that PIDs,
// trace IDs, and tool-call IDs are all drawn from the same well-tested source.
package ids

import "github.com/google/uuid"

// NewPID returns a fresh unique identifier for an execution handle.
func NewPID() string {
	return "pid_" + uuid.NewString()
}

// NewTraceID returns a fresh unique identifier for correlating telemetry
// across a forked execution tree.
func NewTraceID() string {
	return uuid.NewString()
}

// NewToolCallID returns a fresh unique identifier for a tool invocation that
// the model did not itself supply one for.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// NewSectionID returns a fresh unique identifier suitable for a COM section
// that the caller does not want to name explicitly.
func NewSectionID() string {
	return "sec_" + uuid.NewString()
}

// NewEventID returns a fresh unique identifier for a stream event.
// Uniqueness, not ordering, is the only guarantee.
func NewEventID() string {
	return "evt_" + uuid.NewString()
}
