package orchestrator

import (
	"fmt"
	"strings"
)

// FlowResolver is the external registry of named sub-workflows consulted
// for flow-referencing tool calls.
type FlowResolver interface {
	Has(name string) bool
	Names() []string
}

// Validator checks proposed tool calls against the registry's schemas.
// Validation is pure: it never executes a tool.
type Validator struct {
	registry *Registry
	flows    FlowResolver // may be nil
}

// NewValidator creates a Validator over the given registry and optional
// flow resolver.
func NewValidator(registry *Registry, flows FlowResolver) *Validator {
	return &Validator{registry: registry, flows: flows}
}

// Validate returns "" for a valid call, or a violation description.
func (v *Validator) Validate(call ToolCall) string {
	tool := v.registry.Get(call.Tool)
	if tool == nil {
		return fmt.Sprintf("unknown tool %q; registered tools: %s",
			call.Tool, strings.Join(v.registry.Names(), ", "))
	}

	if call.Tool == FinishToolName {
		if out, present := call.Params["output"]; !present || out == nil {
			return fmt.Sprintf("tool %q requires a non-empty %q parameter", FinishToolName, "output")
		}
		return ""
	}

	schema := tool.Definition.Parameters

	// Tools whose schema requires a "flow" parameter reference a named
	// sub-workflow; the name must resolve in the flow registry.
	if schema.RequiresParam("flow") {
		if violation := v.validateFlowRef(call); violation != "" {
			return violation
		}
	}

	for _, required := range schema.Required {
		val, present := call.Params[required]
		if !present || val == nil {
			return fmt.Sprintf("tool %q is missing required parameter %q", call.Tool, required)
		}
	}

	// Extra parameters are tolerated: models hallucinate optional fields
	// and rejecting them would stall otherwise valid calls.
	return ""
}

func (v *Validator) validateFlowRef(call ToolCall) string {
	name, ok := GetString(call.Params, "flow")
	if !ok || name == "" {
		return fmt.Sprintf("tool %q requires a %q parameter naming a registered flow", call.Tool, "flow")
	}
	if v.flows == nil {
		return fmt.Sprintf("tool %q was called but no flow registry is configured", call.Tool)
	}
	if !v.flows.Has(name) {
		return fmt.Sprintf("unknown flow %q; registered flows: %s",
			name, strings.Join(v.flows.Names(), ", "))
	}
	return ""
}

// ValidateAll validates a batch and returns every violation found. An
// empty result means the whole batch may execute; a non-empty result
// means none of it does.
func (v *Validator) ValidateAll(calls []ToolCall) []string {
	var violations []string
	for _, call := range calls {
		if violation := v.Validate(call); violation != "" {
			violations = append(violations, violation)
		}
	}
	return violations
}
