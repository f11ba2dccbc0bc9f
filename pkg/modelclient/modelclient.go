// Package modelclient is the L1 abstraction (§2, §9): a streaming contract
// over an external LLM provider. Generate returns a channel of Chunk values
// (text, thinking, tool call, usage, error, complete) that the caller
// drains; there is no callback registration interface. Grounded on the teacher's
// pkg/agent/llm_client.go, with the gRPC transport replaced by a plain
// streaming HTTP client (see DESIGN.md for why ent/grpc couldn't be kept).
package modelclient

import "context"

// Role is a conversation message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationMessage is one turn in a model session.
type ConversationMessage struct {
	Role    Role
	Content string
	// ToolCallID links a RoleTool message back to the ToolCall it answers.
	ToolCallID string
}

// ToolDefinition describes one tool a model may choose to call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// GenerateInput is everything needed to start or continue a streamed
// generation.
type GenerateInput struct {
	SessionID   string
	ExecutionID string
	Messages    []ConversationMessage
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// Chunk is a unit of streamed model output. The concrete types below form
// a closed set; callers switch on the dynamic type (or use the As* helpers).
type Chunk interface{ chunkType() string }

// TextChunk is a fragment of the model's visible text response.
type TextChunk struct{ Text string }

func (TextChunk) chunkType() string { return "text" }

// ThinkingChunk is a fragment of the model's internal reasoning trace.
type ThinkingChunk struct{ Text string }

func (ThinkingChunk) chunkType() string { return "thinking" }

// ToolCallChunk announces a tool the model wants invoked.
type ToolCallChunk struct{ Call ToolCall }

func (ToolCallChunk) chunkType() string { return "tool_call" }

// UsageChunk reports token accounting for the just-completed turn.
type UsageChunk struct {
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	ThinkingTokens int
}

func (UsageChunk) chunkType() string { return "usage" }

// ErrorChunk terminates a stream with a model-side failure.
type ErrorChunk struct{ Err error }

func (ErrorChunk) chunkType() string { return "error" }

// CompleteChunk signals the stream is finished with no further chunks.
type CompleteChunk struct{}

func (CompleteChunk) chunkType() string { return "complete" }

// Client is the L1 Model Client abstraction. Generate returns a channel the
// caller drains until a CompleteChunk or ErrorChunk arrives; cancelling ctx
// closes the stream (§9: "cancellation is by closing the stream handle").
type Client interface {
	Generate(ctx context.Context, in GenerateInput) (<-chan Chunk, error)
	Close() error
}
