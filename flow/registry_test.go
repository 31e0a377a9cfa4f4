package flow

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleYAML = `
flows:
  - name: lint-and-test
    description: Run the linter, then the test suite.
    steps:
      - tool: shell
        params: {command: "golangci-lint run ./..."}
      - tool: shell
        params: {command: "go test ./..."}
  - name: inspect
    description: Read a file.
    steps:
      - tool: read_file
        params: {path: "{{item}}"}
`

func writeFlowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write flow file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	r, err := Load(writeFlowFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 flows, got %d", r.Count())
	}

	f, ok := r.Resolve("lint-and-test")
	if !ok {
		t.Fatal("lint-and-test not resolved")
	}
	if len(f.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(f.Steps))
	}
	if f.Steps[0].Tool != "shell" {
		t.Errorf("expected shell, got %q", f.Steps[0].Tool)
	}
	if cmd, _ := f.Steps[1].Params["command"].(string); cmd != "go test ./..." {
		t.Errorf("unexpected step params: %v", f.Steps[1].Params)
	}

	if got := r.Names(); !reflect.DeepEqual(got, []string{"inspect", "lint-and-test"}) {
		t.Errorf("unexpected names: %v", got)
	}
}

func TestResolveUnknown(t *testing.T) {
	r, err := NewRegistry(Flow{Name: "a", Steps: []Step{{Tool: "shell"}}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if r.Has("missing") {
		t.Error("Has should be false for unknown flow")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("Resolve should fail for unknown flow")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty name", "flows:\n  - name: \"\"\n    steps:\n      - tool: shell\n"},
		{"no steps", "flows:\n  - name: empty\n    steps: []\n"},
		{"step without tool", "flows:\n  - name: broken\n    steps:\n      - params: {x: 1}\n"},
		{"duplicate names", "flows:\n  - name: dup\n    steps:\n      - tool: shell\n  - name: dup\n    steps:\n      - tool: shell\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFlowFile(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
