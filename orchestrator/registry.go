package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kestrelab/agentrun/llm"
)

// FinishToolName is the distinguished tool the model calls to signal the
// goal is complete. It has no handler; the orchestrator intercepts it.
const FinishToolName = "finish"

// ToolCall is a tool invocation proposed by the model, not yet validated.
type ToolCall struct {
	ID     string         `json:"id,omitempty"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"parameters"`
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"parameters,omitempty"`
	Output  string         `json:"output,omitempty"`
	Err     string         `json:"error,omitempty"`
	Success bool           `json:"success"`
}

// ParamSchema is the JSON-Schema subset used to describe tool parameters:
// type, per-property definitions, and the required-parameter list.
type ParamSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// asMap renders the schema as a generic map for LLM requests.
func (s ParamSchema) asMap() map[string]any {
	m := map[string]any{"type": s.Type}
	if s.Type == "" {
		m["type"] = "object"
	}
	if len(s.Properties) > 0 {
		m["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

// RequiresParam reports whether name is in the schema's required list.
func (s ParamSchema) RequiresParam(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Handler executes a tool with validated parameters.
type Handler func(ctx context.Context, params map[string]any) (string, error)

// Definition is the serializable description of a tool: its name,
// human-readable description, and parameter schema. It is sent to the
// model verbatim.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  ParamSchema `json:"parameters"`
}

// RegisteredTool pairs a definition with its handler. A nil handler is
// allowed only for tools the orchestrator intercepts (finish).
type RegisteredTool struct {
	Definition Definition
	Handler    Handler
}

// Registry maps tool names to registered tools. It is populated at
// orchestrator construction and immutable during a run.
type Registry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*RegisteredTool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Get returns a registered tool by name, or nil.
func (r *Registry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// LLMToolDefs converts the registry's definitions into the llm package's
// request type.
func (r *Registry) LLMToolDefs() []llm.ToolDefinition {
	defs := r.Definitions()
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters.asMap(),
		}
	}
	return out
}

// Parameter access helpers for handler authors.

// GetString extracts a string parameter.
func GetString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt extracts an integer parameter, tolerating the float64 and
// json.Number forms JSON decoding produces.
func GetInt(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBool extracts a boolean parameter.
func GetBool(params map[string]any, key string) (bool, bool) {
	v, ok := params[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
