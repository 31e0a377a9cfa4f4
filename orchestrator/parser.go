package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelab/agentrun/llm"
)

// Parsed is the normalized form of a model reply: a thought plus zero or
// more proposed tool calls. Parallel defaults to false when the model
// does not request concurrent execution.
type Parsed struct {
	Thought   string
	ToolCalls []ToolCall
	Parallel  bool
}

// ParseResponse normalizes a completion into a Parsed decision. It tries,
// in order:
//
//  1. Structured tool calls surfaced natively by the provider.
//  2. The response's free text, sliced to its outermost {...} and decoded
//     as {"thought": ..., "tool_calls": [...], "parallel": ...}.
//
// It never retries; a *ResponseParseError carries the original text back
// to the caller.
func ParseResponse(resp *llm.Response) (*Parsed, error) {
	if resp.HasToolCalls() {
		return parseStructured(resp)
	}
	return ParseText(resp.Text)
}

// parseStructured maps provider-native tool calls directly.
func parseStructured(resp *llm.Response) (*Parsed, error) {
	calls := make([]ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		params := map[string]any{}
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &params); err != nil {
				return nil, &ResponseParseError{
					Reason: fmt.Sprintf("tool call %s has undecodable arguments: %v", tc.Name, err),
					Raw:    string(tc.Arguments),
				}
			}
		}
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		calls = append(calls, ToolCall{ID: id, Tool: tc.Name, Params: params})
	}

	thought := strings.TrimSpace(resp.Text)
	if thought == "" {
		thought = "Calling tool(s): " + strings.Join(resp.ToolCallNames(), ", ")
	}

	return &Parsed{Thought: thought, ToolCalls: calls}, nil
}

// wireDecision is the JSON reply contract the system prompt asks the
// model to follow. Aliases tolerate the field names models commonly
// substitute.
type wireDecision struct {
	Thought   json.RawMessage `json:"thought"`
	ToolCalls []wireCall      `json:"tool_calls"`
	Parallel  bool            `json:"parallel"`
}

type wireCall struct {
	Tool       string         `json:"tool"`
	Name       string         `json:"name"` // alias for tool
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"` // alias for parameters
}

// ParseText decodes a raw textual reply. Models frequently wrap their
// JSON in prose or code fences, so the text is sliced from the first '{'
// to the last '}' before decoding.
func ParseText(text string) (*Parsed, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, &ResponseParseError{
			Reason: "no JSON object found in reply",
			Raw:    text,
		}
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return nil, &ResponseParseError{
			Reason: fmt.Sprintf("reply is not a valid decision object: %v", err),
			Raw:    text,
		}
	}

	calls := make([]ToolCall, 0, len(wire.ToolCalls))
	for i, wc := range wire.ToolCalls {
		name := wc.Tool
		if name == "" {
			name = wc.Name
		}
		if name == "" {
			return nil, &ResponseParseError{
				Reason: fmt.Sprintf("tool call %d has no tool name", i+1),
				Raw:    text,
			}
		}
		params := wc.Parameters
		if params == nil {
			params = wc.Arguments
		}
		if params == nil {
			params = map[string]any{}
		}
		calls = append(calls, ToolCall{ID: newCallID(), Tool: name, Params: params})
	}

	return &Parsed{
		Thought:   decodeThought(wire.Thought),
		ToolCalls: calls,
		Parallel:  wire.Parallel,
	}, nil
}

// decodeThought accepts a thought of any JSON type, rendering non-strings
// back to their JSON text.
func decodeThought(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func newCallID() string {
	return "call_" + uuid.New().String()[:8]
}
