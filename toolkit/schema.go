package toolkit

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/kestrelab/agentrun/orchestrator"
)

// schemaFor reflects a parameter struct into the registry's schema form.
// Fields without omitempty become required; jsonschema struct tags carry
// the per-property descriptions the model sees.
func schemaFor(v any) orchestrator.ParamSchema {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	reflected := reflector.Reflect(v)

	data, err := json.Marshal(reflected)
	if err != nil {
		return orchestrator.ParamSchema{Type: "object"}
	}

	var raw struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return orchestrator.ParamSchema{Type: "object"}
	}

	schema := orchestrator.ParamSchema{
		Type:       raw.Type,
		Properties: raw.Properties,
		Required:   raw.Required,
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}
