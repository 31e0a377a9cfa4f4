package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelab/agentrun/flow"
)

// Flow-invoking tools. Both require a "flow" parameter, which makes the
// validator resolve the name against the flow registry before execution.

const (
	RunFlowToolName     = "run_flow"
	IterateFlowToolName = "iterate_flow"
)

// itemPlaceholder in a flow step's params is replaced with the current
// iteration item.
const itemPlaceholder = "{{item}}"

// RegisterFlowTools adds run_flow and iterate_flow to the registry.
// Flow steps execute sequentially through the same registry; a failing
// step is recorded and the flow continues, mirroring sequential tool
// execution.
func RegisterFlowTools(reg *Registry, flows *flow.Registry) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:        RunFlowToolName,
			Description: "Run a predefined flow: a fixed sequence of tool invocations executed in order.",
			Parameters: ParamSchema{
				Type: "object",
				Properties: map[string]any{
					"flow": map[string]any{
						"type":        "string",
						"description": "Name of the flow to run.",
					},
				},
				Required: []string{"flow"},
			},
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			name, _ := GetString(params, "flow")
			f, ok := flows.Resolve(name)
			if !ok {
				return "", fmt.Errorf("unknown flow %q", name)
			}
			return runFlowSteps(ctx, reg, f, nil)
		},
	})

	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:        IterateFlowToolName,
			Description: "Run a predefined flow once per item in a list. Step parameters containing \"{{item}}\" receive the current item.",
			Parameters: ParamSchema{
				Type: "object",
				Properties: map[string]any{
					"flow": map[string]any{
						"type":        "string",
						"description": "Name of the flow to iterate.",
					},
					"items": map[string]any{
						"type":        "array",
						"description": "Items to iterate over.",
					},
				},
				Required: []string{"flow", "items"},
			},
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			name, _ := GetString(params, "flow")
			f, ok := flows.Resolve(name)
			if !ok {
				return "", fmt.Errorf("unknown flow %q", name)
			}
			items, ok := params["items"].([]any)
			if !ok {
				return "", fmt.Errorf("iterate_flow requires %q to be a list", "items")
			}

			var sb strings.Builder
			for i, item := range items {
				out, err := runFlowSteps(ctx, reg, f, item)
				if err != nil {
					fmt.Fprintf(&sb, "=== item %d (%v): flow error: %v\n", i+1, item, err)
					continue
				}
				fmt.Fprintf(&sb, "=== item %d (%v):\n%s\n", i+1, item, out)
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	})
}

// runFlowSteps executes a flow's steps one at a time, capturing per-step
// failures in the transcript instead of aborting.
func runFlowSteps(ctx context.Context, reg *Registry, f flow.Flow, item any) (string, error) {
	var sb strings.Builder
	for i, step := range f.Steps {
		tool := reg.Get(step.Tool)
		if tool == nil || tool.Handler == nil {
			fmt.Fprintf(&sb, "step %d (%s): no handler registered\n", i+1, step.Tool)
			continue
		}

		params := bindStepParams(step.Params, item)
		out, err := tool.Handler(ctx, params)
		if err != nil {
			fmt.Fprintf(&sb, "step %d (%s) failed: %v\n", i+1, step.Tool, err)
			continue
		}
		fmt.Fprintf(&sb, "step %d (%s):\n%s\n", i+1, step.Tool, out)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// bindStepParams substitutes the iteration item into a step's parameters.
func bindStepParams(params map[string]any, item any) map[string]any {
	bound := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok && strings.Contains(s, itemPlaceholder) {
			bound[k] = strings.ReplaceAll(s, itemPlaceholder, fmt.Sprintf("%v", item))
			continue
		}
		bound[k] = v
	}
	return bound
}
