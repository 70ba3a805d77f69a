// Package model defines the provider-agnostic message, content-block, and
// adapter contracts consumed by the Context Object Model and the tick
// orchestrator. Concrete provider adapters (model/anthropicadapter,
// model/openaiadapter, model/bedrockadapter) implement the Adapter
// interface declared here; the core engine only ever depends on this
// package, never on a concrete provider SDK.
package model

// BlockType discriminates the kind of content carried by a Block.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockImage       BlockType = "image"
	BlockDocument    BlockType = "document"
	BlockAudio       BlockType = "audio"
	BlockVideo       BlockType = "video"
	BlockCode        BlockType = "code"
	BlockJSON        BlockType = "json"
	BlockToolUse     BlockType = "tool_use"
	BlockToolResult  BlockType = "tool_result"
	BlockReasoning   BlockType = "reasoning"
	BlockUserAction  BlockType = "user_action"
	BlockSystemEvent BlockType = "system_event"
	BlockStateChange BlockType = "state_change"
)

// Block is a single semantic unit of message content. Exactly the fields
// relevant to Type are expected to be populated; the others are zero.
// Native content (Image/Audio/Video/Code) is intentionally passed through
// renderers unformatted, per §4.3 of the engine spec.
type Block struct {
	Type BlockType

	// Text carries plain prose for BlockText, BlockReasoning, and
	// BlockSystemEvent blocks.
	Text string

	// Language annotates BlockCode content (e.g. "go", "python").
	Language string

	// MimeType annotates binary blocks (BlockImage/BlockDocument/BlockAudio/BlockVideo).
	MimeType string

	// Bytes carries raw binary content for BlockImage/BlockDocument/BlockAudio/BlockVideo.
	Bytes []byte

	// URI locates binary content externally instead of inlining Bytes.
	URI string

	// JSON carries a JSON-compatible value for BlockJSON and BlockStateChange.
	JSON any

	// ToolUseID/ToolName/ToolInput populate BlockToolUse.
	ToolUseID string
	ToolName  string
	ToolInput any

	// ToolResultFor correlates a BlockToolResult back to the ToolUseID that
	// requested it. IsError marks the result as a tool failure.
	ToolResultFor string
	IsError       bool

	// Metadata carries block-specific auxiliary data (citations, redaction
	// markers, provider signatures) that callers may use but the engine
	// treats opaquely.
	Metadata map[string]any
}

// Text constructs a plain-text Block.
func Text(s string) Block { return Block{Type: BlockText, Text: s} }

// ToolUse constructs a Block declaring a tool invocation.
func ToolUse(id, name string, input any) Block {
	return Block{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResult constructs a Block carrying the result of a tool invocation.
func ToolResult(toolUseID string, blocks []Block, isError bool) Block {
	return Block{Type: BlockToolResult, ToolResultFor: toolUseID, IsError: isError, Metadata: map[string]any{"content": blocks}}
}

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleEvent     Role = "event"
)

// Message is one entry in a conversation exchanged with a model.
type Message struct {
	Role      Role
	Content   []Block
	ID        string
	Metadata  map[string]any
	CreatedAt int64
	UpdatedAt int64
}
