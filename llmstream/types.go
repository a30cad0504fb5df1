// Package llmstream provides a streaming chat-completions client with
// pluggable provider adapters.
package llmstream

import "strings"

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FunctionCall is the function portion of a completed tool call.
// Arguments is the raw JSON string exactly as assembled from the stream.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a completed, model-initiated tool invocation as it appears
// on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"` // "function"
	Function FunctionCall `json:"function"`
}

// Message is the fundamental unit of conversation. The shape matches the
// chat-completions wire format so histories can be replayed verbatim.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message with text content only.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// AssistantToolCallMessage creates an assistant Message that carries the
// text produced so far plus one tool call.
func AssistantToolCallMessage(text string, call ToolCall) Message {
	if call.Type == "" {
		call.Type = "function"
	}
	return Message{Role: RoleAssistant, Content: text, ToolCalls: []ToolCall{call}}
}

// ToolResultMessage creates a tool result Message tagged with the call it
// answers.
func ToolResultMessage(toolCallID string, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolDefinition describes a tool the model can call. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is the input to a streaming completion call.
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	ToolDefs    []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Provider    string           `json:"-"` // routing hint, not serialized
}

// Usage tracks token consumption, using the provider's field names.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FunctionDelta is one increment of a streamed function call.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallDelta is one increment of a streamed tool call. Index correlates
// increments belonging to the same logical call within one stream; ID and
// Name may arrive on any increment, Arguments arrive as ordered fragments.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function FunctionDelta `json:"function"`
}

// Delta is the incremental payload of one chunk choice.
type Delta struct {
	Role      Role            `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ChunkChoice is one choice within a streamed chunk.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Chunk is a single fragment of a streaming response. A non-nil Err marks
// a transport failure mid-stream; no further chunks follow it.
type Chunk struct {
	ID      string        `json:"id,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
	Err     error         `json:"-"`
}

// TextDelta returns the concatenated text increments across all choices
// of the chunk.
func (c Chunk) TextDelta() string {
	var sb strings.Builder
	for _, choice := range c.Choices {
		sb.WriteString(choice.Delta.Content)
	}
	return sb.String()
}

// TextChunk builds a chunk carrying a single text increment. Providers
// that synthesize streams use it; tests do too.
func TextChunk(text string) Chunk {
	return Chunk{Choices: []ChunkChoice{{Delta: Delta{Content: text}}}}
}

// ToolCallChunk builds a chunk carrying a single tool-call increment.
func ToolCallChunk(delta ToolCallDelta) Chunk {
	return Chunk{Choices: []ChunkChoice{{Delta: Delta{ToolCalls: []ToolCallDelta{delta}}}}}
}
