// Package stream defines the client-facing streaming event contract (§6):
// the bit-exact event kind names and payload shapes a tick orchestrator
// emits as a tick progresses, and the Sink interface a transport
// implements to deliver them. Stream events are a thin, stable wire
// projection of tick-orchestrator progress; they are not the same as COM
// events (com.Event), which are internal and synchronous.
package stream

import "context"

// Sink delivers streaming updates to clients over a transport (SSE,
// WebSocket, a message bus). tick.Session calls Send from the goroutine
// running the tick and runs tools one after another, so it does not call
// Send concurrently.
type Sink interface {
	// Send publishes one event. tick.Session discards the returned error
	// and keeps sending later events to the same sink.
	Send(ctx context.Context, event Event) error

	// Close releases sink resources. Idempotent.
	Close(ctx context.Context) error
}

// Kind is the bit-exact stream event discriminator external consumers
// match on (§6).
type Kind string

const (
	KindExecutionStart          Kind = "execution_start"
	KindExecutionEnd            Kind = "execution_end"
	KindTickStart                Kind = "tick_start"
	KindTickEnd                  Kind = "tick_end"
	KindMessageStart             Kind = "message_start"
	KindMessageEnd               Kind = "message_end"
	KindContentStart             Kind = "content_start"
	KindContentDelta             Kind = "content_delta"
	KindContentEnd               Kind = "content_end"
	KindReasoningStart           Kind = "reasoning_start"
	KindReasoningDelta           Kind = "reasoning_delta"
	KindReasoningEnd             Kind = "reasoning_end"
	KindToolCall                 Kind = "tool_call"
	KindToolResult               Kind = "tool_result"
	KindToolConfirmationRequired Kind = "tool_confirmation_required"
	KindToolConfirmationResult   Kind = "tool_confirmation_result"
	KindError                    Kind = "error"
	KindEngineError              Kind = "engine_error"
)

// Event is one streamed update. Every event carries id/tick/timestamp plus
// kind-specific fields in Data.
type Event struct {
	Kind      Kind
	ID        string
	PID       string
	Tick      int
	Timestamp int64
	Data      any
}

func (e Event) Type() Kind { return e.Kind }

// ExecutionStartData is KindExecutionStart's payload.
type ExecutionStartData struct {
	RootPID string
}

// ExecutionEndData is KindExecutionEnd's payload.
type ExecutionEndData struct {
	Reason string
}

// TickStartData is KindTickStart's payload.
type TickStartData struct {
	TickNumber int
}

// TickEndData is KindTickEnd's payload.
type TickEndData struct {
	TickNumber int
	StopReason string
}

// MessageStartData/MessageEndData bracket a timeline message as it is
// produced.
type MessageStartData struct {
	MessageID string
	Role      string
}

type MessageEndData struct {
	MessageID string
}

// ContentStartData/ContentDeltaData/ContentEndData bracket one content
// block's incremental production within a message.
type ContentStartData struct {
	BlockIndex int
	BlockType  string
}

type ContentDeltaData struct {
	BlockIndex int
	Text       string
}

type ContentEndData struct {
	BlockIndex int
}

// ReasoningStartData/ReasoningDeltaData/ReasoningEndData mirror the
// content triad for reasoning blocks specifically, so UIs can render
// chain-of-thought separately from user-facing text.
type ReasoningStartData struct {
	BlockIndex int
}

type ReasoningDeltaData struct {
	BlockIndex int
	Text       string
}

type ReasoningEndData struct {
	BlockIndex int
}

// ToolCallData is KindToolCall's payload: the model requested this tool
// invocation.
type ToolCallData struct {
	ToolCallID string
	ToolName   string
	Input      any
}

// ToolResultData is KindToolResult's payload.
type ToolResultData struct {
	ToolCallID string
	Result     any
	IsError    bool
}

// ToolConfirmationRequiredData is KindToolConfirmationRequired's payload.
type ToolConfirmationRequiredData struct {
	ToolCallID string
	ToolName   string
	Input      any
}

// ToolConfirmationResultData is KindToolConfirmationResult's payload.
type ToolConfirmationResultData struct {
	ToolCallID string
	Approved   bool
	Reason     string
}

// ErrorData is KindError's payload: a recoverable, tool/application-level
// error surfaced to the client.
type ErrorData struct {
	Message  string
	Category string
}

// EngineErrorData is KindEngineError's payload: an unrecoverable engine
// fault that ends the execution.
type EngineErrorData struct {
	Message  string
	Category string
}
