package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultOutputCompactionThreshold is the output size in characters above
// which tool output is summarized before entering the observation.
const DefaultOutputCompactionThreshold = 1000

// Executor runs validated tool calls against their registered handlers.
type Executor struct {
	registry         *Registry
	summarizer       Summarizer // optional
	compactThreshold int
	emitter          *Emitter // optional
}

// NewExecutor creates an Executor. summarizer may be nil, in which case
// oversized outputs pass through unchanged.
func NewExecutor(registry *Registry, summarizer Summarizer, compactThreshold int, emitter *Emitter) *Executor {
	if compactThreshold <= 0 {
		compactThreshold = DefaultOutputCompactionThreshold
	}
	return &Executor{
		registry:         registry,
		summarizer:       summarizer,
		compactThreshold: compactThreshold,
		emitter:          emitter,
	}
}

// Execute runs the calls and returns one ToolResult per call, in input
// order. A failing call never prevents its siblings from running.
func (x *Executor) Execute(ctx context.Context, calls []ToolCall, parallel bool) []ToolResult {
	if parallel && len(calls) > 1 {
		return x.executeParallel(ctx, calls)
	}
	return x.executeSequential(ctx, calls)
}

func (x *Executor) executeSequential(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		results[i] = x.executeOne(ctx, call)
	}
	return results
}

func (x *Executor) executeParallel(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c ToolCall) {
			defer wg.Done()
			results[idx] = x.executeOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeOne runs a single call: lookup, execute, compact oversized
// output. Handler errors and panics become failed results, never
// escaping to the loop.
func (x *Executor) executeOne(ctx context.Context, call ToolCall) (result ToolResult) {
	result = ToolResult{Tool: call.Tool, Params: call.Params}

	defer func() {
		if r := recover(); r != nil {
			execErr := &ToolExecutionError{Tool: call.Tool, Cause: fmt.Errorf("handler panicked: %v", r)}
			result.Success = false
			result.Err = execErr.Error()
			result.Output = ""
			x.emit(EventToolCallEnd, map[string]any{"tool": call.Tool, "call_id": call.ID, "error": result.Err})
		}
	}()

	x.emit(EventToolCallStart, map[string]any{"tool": call.Tool, "call_id": call.ID})

	registered := x.registry.Get(call.Tool)
	if registered == nil || registered.Handler == nil {
		result.Err = fmt.Sprintf("no handler registered for tool %q", call.Tool)
		x.emit(EventToolCallEnd, map[string]any{"tool": call.Tool, "call_id": call.ID, "error": result.Err})
		return result
	}

	output, err := registered.Handler(ctx, call.Params)
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Tool, Cause: err}
		result.Err = execErr.Error()
		x.emit(EventToolCallEnd, map[string]any{"tool": call.Tool, "call_id": call.ID, "error": result.Err})
		return result
	}

	result.Success = true
	result.Output = x.compactOutput(ctx, call.Tool, output)
	// The event carries the full output; only the observation is compacted.
	x.emit(EventToolCallEnd, map[string]any{"tool": call.Tool, "call_id": call.ID, "output": output})
	return result
}

// compactOutput passes oversized textual output through the summarizer.
// Summarization failure falls back to the full output plus a warning;
// data is never silently dropped.
func (x *Executor) compactOutput(ctx context.Context, toolName, output string) string {
	if x.summarizer == nil || len(output) <= x.compactThreshold {
		return output
	}
	summary, err := x.summarizer.Summarize(ctx, output)
	if err != nil {
		x.emit(EventWarning, map[string]any{
			"message": fmt.Sprintf("summarization of %s output failed: %v", toolName, err),
		})
		return fmt.Sprintf("[warning: output summarization failed (%v); full output follows]\n%s", err, output)
	}
	return fmt.Sprintf("[summarized from %d chars] %s", len(output), strings.TrimSpace(summary))
}

func (x *Executor) emit(kind EventKind, data map[string]any) {
	if x.emitter != nil {
		x.emitter.Emit(kind, 0, data)
	}
}

// FormatObservation serializes a batch of results into the single
// observation message appended to history.
func FormatObservation(results []ToolResult) string {
	var sb strings.Builder
	sb.WriteString("Observation:\n")
	for i, r := range results {
		if r.Success {
			fmt.Fprintf(&sb, "[%d] %s succeeded:\n%s\n", i+1, r.Tool, r.Output)
		} else {
			fmt.Fprintf(&sb, "[%d] %s failed: %s\n", i+1, r.Tool, r.Err)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
