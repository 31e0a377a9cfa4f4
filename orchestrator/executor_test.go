package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubSummarizer struct {
	summary string
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

func executorRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(RegisteredTool{
		Definition: Definition{Name: "ok", Parameters: ParamSchema{Type: "object"}},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			id, _ := GetString(params, "id")
			return "result-" + id, nil
		},
	})
	reg.Register(RegisteredTool{
		Definition: Definition{Name: "fail", Parameters: ParamSchema{Type: "object"}},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			return "", fmt.Errorf("boom")
		},
	})
	reg.Register(RegisteredTool{
		Definition: Definition{Name: "panics", Parameters: ParamSchema{Type: "object"}},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			panic("handler blew up")
		},
	})
	reg.Register(RegisteredTool{
		Definition: Definition{Name: "slow", Parameters: ParamSchema{Type: "object"}},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			time.Sleep(10 * time.Millisecond)
			id, _ := GetString(params, "id")
			return "slow-" + id, nil
		},
	})
	return reg
}

func TestExecuteSequentialOrderAndIsolation(t *testing.T) {
	x := NewExecutor(executorRegistry(), nil, 0, nil)
	calls := []ToolCall{
		{Tool: "ok", Params: map[string]any{"id": "a"}},
		{Tool: "fail", Params: map[string]any{}},
		{Tool: "ok", Params: map[string]any{"id": "b"}},
	}

	results := x.Execute(context.Background(), calls, false)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !results[0].Success || results[0].Output != "result-a" {
		t.Errorf("result[0] = %+v", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Err, "boom") {
		t.Errorf("result[1] = %+v", results[1])
	}
	if !results[2].Success || results[2].Output != "result-b" {
		t.Errorf("failing sibling prevented result[2]: %+v", results[2])
	}
}

func TestExecuteParallelPreservesOrder(t *testing.T) {
	x := NewExecutor(executorRegistry(), nil, 0, nil)
	calls := []ToolCall{
		{Tool: "slow", Params: map[string]any{"id": "1"}},
		{Tool: "fail", Params: map[string]any{}},
		{Tool: "ok", Params: map[string]any{"id": "3"}},
	}

	results := x.Execute(context.Background(), calls, true)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Output != "slow-1" {
		t.Errorf("result[0] = %+v, order not preserved", results[0])
	}
	if results[1].Success {
		t.Errorf("result[1] = %+v, want failure", results[1])
	}
	if results[2].Output != "result-3" {
		t.Errorf("result[2] = %+v, order not preserved", results[2])
	}
}

func TestExecutePanicBecomesFailedResult(t *testing.T) {
	x := NewExecutor(executorRegistry(), nil, 0, nil)

	results := x.Execute(context.Background(), []ToolCall{{Tool: "panics", Params: map[string]any{}}}, false)
	if results[0].Success {
		t.Fatal("panicking handler reported success")
	}
	if !strings.Contains(results[0].Err, "panicked") {
		t.Errorf("err = %q", results[0].Err)
	}
}

func TestExecuteMissingHandlerFails(t *testing.T) {
	x := NewExecutor(executorRegistry(), nil, 0, nil)

	results := x.Execute(context.Background(), []ToolCall{{Tool: "ghost", Params: map[string]any{}}}, false)
	if results[0].Success || !strings.Contains(results[0].Err, "no handler") {
		t.Errorf("result = %+v", results[0])
	}
}

func TestCompactOutputSummarizesOversized(t *testing.T) {
	sum := &stubSummarizer{summary: "short version"}
	x := NewExecutor(executorRegistry(), sum, 50, nil)
	long := strings.Repeat("x", 200)

	out := x.compactOutput(context.Background(), "ok", long)
	if !strings.Contains(out, "short version") {
		t.Errorf("output = %q, want the summary", out)
	}
	if sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", sum.calls)
	}

	small := x.compactOutput(context.Background(), "ok", "tiny")
	if small != "tiny" {
		t.Errorf("under-threshold output was modified: %q", small)
	}
}

func TestCompactOutputFailureKeepsFullOutput(t *testing.T) {
	sum := &stubSummarizer{err: fmt.Errorf("summarizer down")}
	x := NewExecutor(executorRegistry(), sum, 50, nil)
	long := strings.Repeat("y", 200)

	out := x.compactOutput(context.Background(), "ok", long)
	if !strings.Contains(out, long) {
		t.Error("full output was dropped on summarization failure")
	}
	if !strings.Contains(out, "warning") {
		t.Errorf("output = %q, want a warning prefix", out[:80])
	}
}

func TestFormatObservation(t *testing.T) {
	obs := FormatObservation([]ToolResult{
		{Tool: "ok", Success: true, Output: "hello"},
		{Tool: "fail", Success: false, Err: "boom"},
	})
	for _, want := range []string{"Observation:", "[1] ok succeeded", "hello", "[2] fail failed: boom"} {
		if !strings.Contains(obs, want) {
			t.Errorf("observation missing %q:\n%s", want, obs)
		}
	}
}
