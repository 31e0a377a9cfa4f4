package toolkit

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimit(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("under-limit output was modified: %q", out)
	}
}

func TestTruncateOutputHeadTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 100, TruncateHeadTail)

	if !strings.HasPrefix(out, strings.Repeat("a", 50)) {
		t.Error("head was not preserved")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 50)) {
		t.Error("tail was not preserved")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("missing truncation warning")
	}
}

func TestTruncateOutputTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)

	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail was not preserved")
	}
	if strings.HasSuffix(out, "a") {
		t.Error("head survived tail truncation")
	}
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	out := TruncateLines(strings.Join(lines, "\n"), 10)

	if !strings.Contains(out, "90 lines omitted") {
		t.Errorf("output = %q", out)
	}
	if got := len(strings.Split(out, "\n")); got > 12 {
		t.Errorf("truncated output still has %d lines", got)
	}
}

func TestTruncateToolOutputPerToolLimits(t *testing.T) {
	// write_file has a 1000 char limit.
	out := truncateToolOutput(strings.Repeat("x", 5000), "write_file")
	if len(out) >= 5000 {
		t.Error("write_file output was not truncated")
	}

	// Unknown tools fall back to the 30000 default.
	out = truncateToolOutput(strings.Repeat("x", 10000), "custom_tool")
	if out != strings.Repeat("x", 10000) {
		t.Error("under-default output was modified for an unknown tool")
	}
}
