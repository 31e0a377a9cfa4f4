package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kestrelab/agentrun/llm"
)

// scriptedAdapter replays canned responses in order and records every
// request it receives.
type scriptedAdapter struct {
	responses []*llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	a.requests = append(a.requests, req)
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i < len(a.responses) {
		return a.responses[i], nil
	}
	return textResponse(`{"thought": "idle", "tool_calls": []}`), nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Text: text, FinishReason: "stop"}
}

func newTestOrchestrator(t *testing.T, adapter *scriptedAdapter, cfg Config) *Orchestrator {
	t.Helper()
	client := llm.NewClient(llm.WithProvider("scripted", adapter))
	o := New(client, NewRegistry(), cfg)
	o.SetTokenCounter(HeuristicCounter{})
	return o
}

// scriptedConfirmer returns canned replies to confirmation prompts.
type scriptedConfirmer struct {
	replies []string
	calls   int
}

func (c *scriptedConfirmer) Prompt(ctx context.Context, text string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "yes", nil
}

func registerEchoTool(o *Orchestrator, executions *atomic.Int32) {
	o.Registry().Register(RegisteredTool{
		Definition: Definition{
			Name:        "echo",
			Description: "Echoes its input.",
			Parameters: ParamSchema{
				Type:       "object",
				Properties: map[string]any{"text": map[string]any{"type": "string"}},
				Required:   []string{"text"},
			},
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			if executions != nil {
				executions.Add(1)
			}
			text, _ := GetString(params, "text")
			return "echo: " + text, nil
		},
	})
}

func TestRunFinishApproved(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "all done"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	out, err := o.Run(context.Background(), "say done")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "all done" {
		t.Errorf("output = %q, want %q", out, "all done")
	}
	if adapter.calls != 1 {
		t.Errorf("model calls = %d, want 1", adapter.calls)
	}
}

func TestRunToolThenFinish(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "look around", "tool_calls": [{"tool": "echo", "parameters": {"text": "hi"}}]}`),
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "finished"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	var executions atomic.Int32
	registerEchoTool(o, &executions)

	out, err := o.Run(context.Background(), "echo hi then finish")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "finished" {
		t.Errorf("output = %q, want %q", out, "finished")
	}
	if executions.Load() != 1 {
		t.Errorf("tool executions = %d, want 1", executions.Load())
	}

	// The second request must carry the first step's observation.
	second := adapter.requests[1]
	found := false
	for _, m := range second.Messages {
		if strings.Contains(m.Content, "echo: hi") {
			found = true
		}
	}
	if !found {
		t.Error("second request is missing the echo observation")
	}
}

func TestRunRejectionReinjectsResponseVerbatim(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "v1"}}]}`),
		textResponse(`{"thought": "retry", "tool_calls": [{"tool": "finish", "parameters": {"output": "v2"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	rejection := "no, also check main.go"
	o.SetConfirmer(&scriptedConfirmer{replies: []string{rejection, "yes"}})

	out, err := o.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "v2" {
		t.Errorf("output = %q, want %q", out, "v2")
	}

	second := adapter.requests[1]
	found := false
	for _, m := range second.Messages {
		if strings.Contains(m.Content, rejection) {
			found = true
		}
	}
	if !found {
		t.Errorf("rejection text %q not present verbatim in the next request", rejection)
	}
}

func TestRunMaxStepsSynthesizesOutput(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "step", "tool_calls": [{"tool": "echo", "parameters": {"text": "partial result"}}]}`),
		textResponse(`{"thought": "step", "tool_calls": [{"tool": "echo", "parameters": {"text": "partial result"}}]}`),
		textResponse(`{"thought": "step", "tool_calls": [{"tool": "echo", "parameters": {"text": "partial result"}}]}`),
	}}
	cfg := DefaultConfig()
	cfg.MaxSteps = 3
	o := newTestOrchestrator(t, adapter, cfg)
	registerEchoTool(o, nil)

	out, err := o.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil on max-steps exit", err)
	}
	if adapter.calls != 3 {
		t.Errorf("model calls = %d, want exactly 3", adapter.calls)
	}
	if out == "" {
		t.Fatal("synthesized output is empty")
	}
	if !strings.Contains(out, "partial result") {
		t.Errorf("output %q does not carry the last observation", out)
	}
}

func TestRunParseFailureInjectsCorrective(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse("I think we should just talk about it."),
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "ok"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	var executions atomic.Int32
	registerEchoTool(o, &executions)

	out, err := o.Run(context.Background(), "test parse recovery")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q, want %q", out, "ok")
	}
	if executions.Load() != 0 {
		t.Errorf("tool executions = %d, want 0 after a parse failure", executions.Load())
	}

	second := adapter.requests[1]
	correctives := 0
	for _, m := range second.Messages {
		if strings.Contains(m.Content, "could not be parsed") {
			correctives++
		}
	}
	if correctives != 1 {
		t.Errorf("corrective messages = %d, want exactly 1", correctives)
	}
}

func TestRunValidationFailureBlocksWholeBatch(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "mixed batch", "tool_calls": [
			{"tool": "echo", "parameters": {"text": "valid"}},
			{"tool": "no_such_tool", "parameters": {}}
		]}`),
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "ok"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	var executions atomic.Int32
	registerEchoTool(o, &executions)

	if _, err := o.Run(context.Background(), "validate batch"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if executions.Load() != 0 {
		t.Errorf("tool executions = %d, want 0 when any call in the batch is invalid", executions.Load())
	}

	second := adapter.requests[1]
	found := false
	for _, m := range second.Messages {
		if strings.Contains(m.Content, "unknown tool") && strings.Contains(m.Content, "no_such_tool") {
			found = true
		}
	}
	if !found {
		t.Error("validation corrective naming the unknown tool not found in the next request")
	}
}

func TestRunEmptyToolCallsNudges(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "hmm, let me think", "tool_calls": []}`),
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "ok"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	if _, err := o.Run(context.Background(), "nudge test"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	second := adapter.requests[1]
	found := false
	for _, m := range second.Messages {
		if strings.Contains(m.Content, "no tool calls") {
			found = true
		}
	}
	if !found {
		t.Error("empty tool-call nudge not found in the next request")
	}
}

func TestRunLLMErrorInjectsCorrective(t *testing.T) {
	adapter := &scriptedAdapter{
		errs: []error{fmt.Errorf("transport exploded")},
		responses: []*llm.Response{
			nil,
			textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "ok"}}]}`),
		},
	}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	out, err := o.Run(context.Background(), "recover from transport")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q, want %q", out, "ok")
	}
	if adapter.calls != 2 {
		t.Errorf("model calls = %d, want 2", adapter.calls)
	}
}

func TestRunContextCancellationAborts(t *testing.T) {
	adapter := &scriptedAdapter{}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, "never starts")
	if err == nil {
		t.Fatal("Run() error = nil, want RunAbortedError")
	}
	if _, ok := err.(*RunAbortedError); !ok {
		t.Errorf("Run() error = %T, want *RunAbortedError", err)
	}
	if adapter.calls != 0 {
		t.Errorf("model calls = %d, want 0 after pre-step cancellation", adapter.calls)
	}
}

func TestRunIsNotReentrant(t *testing.T) {
	adapter := &scriptedAdapter{}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	o.running.Store(true)

	_, err := o.Run(context.Background(), "second run")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("Run() error = %v, want already-running abort", err)
	}
}

func TestRunFinishSiblingsNeverExecute(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "finish plus extra", "tool_calls": [
			{"tool": "finish", "parameters": {"output": "done"}},
			{"tool": "echo", "parameters": {"text": "should not run"}}
		]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())
	var executions atomic.Int32
	registerEchoTool(o, &executions)

	out, err := o.Run(context.Background(), "finish with siblings")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "done" {
		t.Errorf("output = %q, want %q", out, "done")
	}
	if executions.Load() != 0 {
		t.Errorf("sibling executions = %d, want 0", executions.Load())
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "ok"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	if _, err := o.Run(context.Background(), "events"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	o.Close()

	seen := map[EventKind]bool{}
	for ev := range o.Events() {
		seen[ev.Kind] = true
	}
	for _, kind := range []EventKind{EventRunStart, EventStepStart, EventThought, EventConfirmRequest, EventFinished} {
		if !seen[kind] {
			t.Errorf("event %q was not emitted", kind)
		}
	}
}

func TestSequentialRunsBothEmitEvents(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "one"}}]}`),
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": "two"}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	first, err := o.Run(context.Background(), "first goal")
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := o.Run(context.Background(), "second goal")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first != "one" || second != "two" {
		t.Errorf("outputs = %q, %q", first, second)
	}
	o.Close()

	starts, finishes := 0, 0
	for ev := range o.Events() {
		switch ev.Kind {
		case EventRunStart:
			starts++
		case EventFinished:
			finishes++
		}
	}
	if starts != 2 {
		t.Errorf("run_start events = %d, want one per run", starts)
	}
	if finishes != 2 {
		t.Errorf("finished events = %d, want one per run", finishes)
	}
}

func TestRunFinishNonStringOutput(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		textResponse(`{"thought": "done", "tool_calls": [{"tool": "finish", "parameters": {"output": {"answer": 42}}}]}`),
	}}
	o := newTestOrchestrator(t, adapter, DefaultConfig())

	out, err := o.Run(context.Background(), "structured result")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out == "" {
		t.Fatal("structured finish output came back empty")
	}
	if !strings.Contains(out, "42") {
		t.Errorf("output = %q, want the rendered structured value", out)
	}
}

func TestBuildSystemPromptEmbedsSchemas(t *testing.T) {
	reg := NewRegistry()
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:        "read_file",
			Description: "Reads a file.",
			Parameters: ParamSchema{
				Type:       "object",
				Properties: map[string]any{"path": map[string]any{"type": "string"}},
				Required:   []string{"path"},
			},
		},
	})

	prompt := BuildSystemPrompt(reg, nil)
	for _, want := range []string{"read_file", `"required"`, `"path"`, "tool_calls"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}
