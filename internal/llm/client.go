package llm

import (
	"context"
	"encoding/json"
)

// Roles used in Message.Role
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool carries tool results back to the model. Content, when set, is
	// appended after the results as plain text (the wrap-up directive).
	RoleTool = "tool"
)

// Chunk types emitted on a stream
const (
	ChunkText     = "text"
	ChunkThinking = "thinking"
	ChunkToolCall = "tool_call"
	ChunkUsage    = "usage"
	ChunkDone     = "done"
	ChunkError    = "error"
)

// Message represents a conversation message
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall   // assistant turns that requested tools
	ToolResults []ToolResult // RoleTool messages
}

// ToolCall represents a tool call from the model
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is the answer to one ToolCall. Content is JSON.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Usage is the token count reported for one model request
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add returns the sum of two usages
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Total is input plus output tokens
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StreamChunk represents a chunk of streamed response
type StreamChunk struct {
	Type     string // ChunkText, ChunkThinking, ChunkToolCall, ChunkUsage, ChunkDone, ChunkError
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
	Error    error
}

// ToolDefinition defines a tool for the model
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Client is one model endpoint that can stream a single request/response.
// The channel is closed after a ChunkDone or ChunkError.
type Client interface {
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk
	Model() string
}

// NewToolResult encodes a tool's result map as a ToolResult. A result with an
// "error" key is flagged as an error.
func NewToolResult(call ToolCall, result map[string]any) ToolResult {
	_, isErr := result["error"]
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte(`{"error":"unencodable tool result"}`)
		isErr = true
	}
	return ToolResult{CallID: call.ID, Name: call.Name, Content: string(data), IsError: isErr}
}

// DecodeResult parses a ToolResult's JSON back into a map, wrapping
// non-object payloads as {"output": ...}.
func DecodeResult(r ToolResult) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(r.Content), &m); err != nil || m == nil {
		return map[string]any{"output": r.Content}
	}
	return m
}

func parseToolInput(jsonStr string) (map[string]any, error) {
	if jsonStr == "" || jsonStr == "{}" {
		return map[string]any{}, nil
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, err
	}
	return result, nil
}
