package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// phaseFraming is the third seeded history entry. It frames how the
// model should move through a run.
const phaseFraming = `Work in phases: first understand the goal, then act through tools, ` +
	`then call "finish" with your result. Each of your replies is one step; ` +
	`prefer making progress with tool calls over restating your plan.`

// replyContract documents the JSON decision object the parser expects
// when the provider does not surface native tool calls.
const replyContract = `Reply with a single JSON object and nothing else:

{
  "thought": "<your reasoning for this step>",
  "tool_calls": [
    {"tool": "<tool name>", "parameters": { ... }}
  ],
  "parallel": false
}

Rules:
- "tool_calls" may be empty only when you need input from the user.
- Set "parallel": true only when the calls are independent of each other.
- Call the "finish" tool with an "output" parameter when the goal is met.`

// BuildSystemPrompt constructs the system prompt for a run. Tool
// parameter schemas are embedded verbatim so the model sees exactly what
// the validator will enforce.
func BuildSystemPrompt(registry *Registry, flows FlowResolver) string {
	var sb strings.Builder

	sb.WriteString("You are an autonomous agent. You accomplish the user's goal by ")
	sb.WriteString("calling tools, reading their results, and iterating until the goal is met.\n\n")

	sb.WriteString("# Reply format\n\n")
	sb.WriteString(replyContract)
	sb.WriteString("\n\n# Tools\n\n")

	for _, def := range registry.Definitions() {
		schema, err := json.MarshalIndent(def.Parameters.asMap(), "", "  ")
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&sb, "## %s\n%s\nParameters schema:\n%s\n\n", def.Name, def.Description, schema)
	}

	if flows != nil {
		names := flows.Names()
		if len(names) > 0 {
			sb.WriteString("# Flows\n\n")
			sb.WriteString("Predefined flows available to run_flow and iterate_flow: ")
			sb.WriteString(strings.Join(names, ", "))
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
