package toolkit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCapResultLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"no cap", "a\nb\nc\n", 0, "a\nb\nc\n"},
		{"under cap", "a\nb\n", 5, "a\nb\n"},
		{"over cap", "a\nb\nc\nd\n", 2, "a\nb\n"},
		{"empty", "", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := capResultLines(tt.in, tt.max); got != tt.want {
				t.Errorf("capResultLines(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestGrepMaxResultsBoundsTotalMatches(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalEnv(dir)

	// Spread matches across files so a per-file cap alone cannot satisfy
	// the bound.
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		content := strings.Repeat("needle in this line\n", 5)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := env.Grep(context.Background(), "needle", "", GrepOptions{MaxResults: 4})
	if err != nil {
		t.Fatalf("Grep error = %v", err)
	}

	matches := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "needle") {
			matches++
		}
	}
	if matches == 0 {
		t.Fatal("grep found no matches")
	}
	if matches > 4 {
		t.Errorf("matches = %d, want at most MaxResults (4)", matches)
	}
}

func TestExecCommandFiltersSensitiveEnv(t *testing.T) {
	t.Setenv("AGENTRUN_TEST_API_KEY", "supersecret")
	env := NewLocalEnv(t.TempDir())

	result, err := env.ExecCommand(context.Background(), "env", 0, "")
	if err != nil {
		t.Fatalf("ExecCommand error = %v", err)
	}
	if strings.Contains(result.Stdout, "supersecret") {
		t.Error("sensitive environment variable leaked into the command environment")
	}
}
