// Package flow holds named sub-workflows: fixed sequences of tool
// invocations the model can trigger as a unit. Flows are defined in a
// YAML file and resolved by name at validation time.
package flow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Step is one tool invocation within a flow. Params may reference the
// current iteration item as the literal string "{{item}}".
type Step struct {
	Tool   string         `yaml:"tool"`
	Params map[string]any `yaml:"params"`
}

// Flow is a named sequence of steps.
type Flow struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Registry maps flow names to their definitions. It is populated once
// and read-only afterwards.
type Registry struct {
	flows map[string]Flow
}

// NewRegistry creates a Registry from the given flows.
func NewRegistry(flows ...Flow) (*Registry, error) {
	r := &Registry{flows: make(map[string]Flow, len(flows))}
	for _, f := range flows {
		if err := validateFlow(f); err != nil {
			return nil, err
		}
		if _, dup := r.flows[f.Name]; dup {
			return nil, fmt.Errorf("duplicate flow name %q", f.Name)
		}
		r.flows[f.Name] = f
	}
	return r, nil
}

// Load reads a YAML flow definition file.
//
// File format:
//
//	flows:
//	  - name: lint-and-test
//	    description: Run the linter, then the test suite.
//	    steps:
//	      - tool: shell
//	        params: {command: "golangci-lint run ./..."}
//	      - tool: shell
//	        params: {command: "go test ./..."}
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}

	var doc struct {
		Flows []Flow `yaml:"flows"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse flow file %s: %w", path, err)
	}

	return NewRegistry(doc.Flows...)
}

func validateFlow(f Flow) error {
	if f.Name == "" {
		return fmt.Errorf("flow with empty name")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", f.Name)
	}
	for i, s := range f.Steps {
		if s.Tool == "" {
			return fmt.Errorf("flow %q step %d has no tool", f.Name, i+1)
		}
	}
	return nil
}

// Resolve returns the flow with the given name.
func (r *Registry) Resolve(name string) (Flow, bool) {
	f, ok := r.flows[name]
	return f, ok
}

// Has reports whether a flow with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.flows[name]
	return ok
}

// Names returns all flow names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered flows.
func (r *Registry) Count() int {
	return len(r.flows)
}
