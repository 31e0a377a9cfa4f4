package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-initiated tool invocation extracted from a response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultRef carries a tool execution result back to the provider on
// the next request, keyed by the originating call ID.
type ToolResultRef struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolResults []ToolResultRef `json:"tool_results,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage creates a tool-role Message carrying one result.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Role: RoleTool,
		ToolResults: []ToolResultRef{
			{ToolCallID: toolCallID, Content: content, IsError: isError},
		},
	}
}

// ToolDefinition describes a tool the model may call. Parameters is a
// JSON-Schema-like object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice controls whether and how the model uses tools.
type ToolChoice struct {
	Mode     string `json:"mode"` // "auto", "none", "required", "named"
	ToolName string `json:"tool_name,omitempty"`
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Request is the input to Client.Complete.
type Request struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Provider    string            `json:"provider,omitempty"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice  *ToolChoice       `json:"tool_choice,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Response is the output of Client.Complete. Text holds the assistant's
// free text; ToolCalls holds any structured tool invocations the
// provider surfaced natively.
type Response struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "tool_calls", "length", "error"
	Usage        Usage      `json:"usage"`
}

// HasToolCalls reports whether the provider surfaced structured tool
// invocations in this response.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolCallNames returns the names of all structured tool calls, in order.
func (r *Response) ToolCallNames() []string {
	if len(r.ToolCalls) == 0 {
		return nil
	}
	names := make([]string, len(r.ToolCalls))
	for i, tc := range r.ToolCalls {
		names[i] = tc.Name
	}
	return names
}

// Summary returns a short single-line description of the response,
// used in diagnostics.
func (r *Response) Summary() string {
	if r.HasToolCalls() {
		return "tool calls: " + strings.Join(r.ToolCallNames(), ", ")
	}
	text := r.Text
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return text
}
