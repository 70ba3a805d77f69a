package model

import "context"

// TokenUsage reports token accounting for a single model call.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// StopReason explains why the model stopped generating.
type StopReason struct {
	Reason      string
	Description string
}

// ToolCall is a tool invocation requested by the model that the engine must
// execute (as opposed to one the provider already executed itself).
type ToolCall struct {
	ID    string
	Name  string
	Input any
}

// ExecutedToolResult is a tool result the provider already produced on its
// own (provider-executed tools, e.g. hosted retrieval), passed through for
// ingestion without engine-side execution.
type ExecutedToolResult struct {
	ToolCallID string
	Result     []Block
	IsError    bool
}

// EngineResponse is what an Adapter's ToEngineState call produces from a raw
// provider response: new timeline content, section updates, tool calls for
// the engine to execute, results the provider already executed, and the
// continue/stop decision for this tick.
type EngineResponse struct {
	NewTimelineEntries []Message
	UpdatedSections     []SectionUpdate
	ToolCalls           []ToolCall
	ExecutedToolResults []ExecutedToolResult
	ShouldStop          bool
	StopReason          *StopReason
	Usage               *TokenUsage
}

// SectionUpdate describes a section mutation emitted by the model/provider
// turn (e.g. a provider that rewrites a running summary section).
type SectionUpdate struct {
	ID      string
	Title   string
	Content any
}

// DelimiterPair brackets ephemeral/event content for providers that render
// the formatted input as flat text (e.g. "<event>...</event>").
type DelimiterPair struct {
	Open  string
	Close string
}

// Options carries optional generation parameters and role-mapping
// instructions threaded from COM.ModelOptions through to an Adapter.
type Options struct {
	Temperature       *float64
	MaxTokens         *int
	RoleMapping       map[Role]string
	EventDelimiters   DelimiterPair
	EphemeralDelimiters DelimiterPair
	PreferredRenderer string
}

// Capabilities declares what an Adapter supports so callers (and the tick
// orchestrator) can decide whether to stream, whether message
// transformation is required, etc.
type Capabilities struct {
	Streaming                bool
	MessageTransformPolicy   string
}

// Metadata identifies an Adapter instance.
type Metadata struct {
	ID           string
	Provider     string
	Capabilities Capabilities
}

// Chunk is one piece of a streamed model response.
type Chunk struct {
	Kind string // "content_delta", "reasoning_delta", "tool_call", "usage", ...
	Data any
}

// Adapter is the external model contract (§6 of the engine spec). The
// engine never talks to a concrete provider SDK directly; it always goes
// through this interface. Concrete instances live in model/anthropicadapter,
// model/openaiadapter, and model/bedrockadapter.
type Adapter interface {
	// Metadata describes the adapter instance.
	Metadata() Metadata

	// FromEngineState converts the engine's formatted input (produced by the
	// structure renderer) into a provider-specific request payload.
	FromEngineState(ctx context.Context, formatted FormattedInput) (any, error)

	// ToEngineState converts a provider response (the output of Generate or
	// ProcessStream) into an EngineResponse the tick orchestrator can ingest.
	ToEngineState(ctx context.Context, modelOutput any) (EngineResponse, error)

	// Generate performs a single non-streaming model call.
	Generate(ctx context.Context, modelInput any) (any, error)

	// Stream performs a streaming model call. Adapters that do not support
	// streaming return an error; callers should check Capabilities.Streaming
	// first.
	Stream(ctx context.Context, modelInput any) (<-chan Chunk, error)

	// ProcessStream folds a channel of chunks (as produced by Stream) into
	// the same shape Generate would have returned, so ToEngineState can be
	// reused for both call styles.
	ProcessStream(ctx context.Context, chunks <-chan Chunk) (any, error)
}

// FormattedInput is the final shape handed to an Adapter: formatted
// timeline entries, the (already-consolidated) system message, tool
// definitions, and generation options.
type FormattedInput struct {
	SystemMessage *Message
	Timeline      []Message
	Tools         []ToolDefinition
	Options       Options
}

// ToolDefinition is the provider-facing description of a tool: name,
// description, and JSON-Schema input shape. It mirrors toolspec.Tool's
// Metadata but avoids a dependency cycle between model and toolspec.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Type        string
}
