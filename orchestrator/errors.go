package orchestrator

import (
	"fmt"
	"strings"
)

// The step loop classifies failures into six kinds. The first five are
// recovered locally: they become corrective messages in the conversation
// so the model can self-correct on its next step. Only RunAbortedError
// terminates a run without a final output.

// LLMRequestError wraps a failure reported by the LLM client (transport
// failure, API status, or malformed payload).
type LLMRequestError struct {
	Cause error
}

func (e *LLMRequestError) Error() string {
	return fmt.Sprintf("llm request failed: %v", e.Cause)
}

func (e *LLMRequestError) Unwrap() error { return e.Cause }

// ResponseParseError is a model reply that could not be normalized into
// a thought plus tool calls. Raw preserves the original text.
type ResponseParseError struct {
	Reason string
	Raw    string
}

func (e *ResponseParseError) Error() string {
	return "response parse failed: " + e.Reason
}

// ToolValidationError aggregates every schema violation found in one
// batch of proposed tool calls.
type ToolValidationError struct {
	Violations []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool validation failed: %s", strings.Join(e.Violations, "; "))
}

// ToolExecutionError is a tool handler that returned an error or panicked.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// MaxStepsExceededError marks a run that hit its step bound without an
// approved finish. The run still produces a synthesized final output.
type MaxStepsExceededError struct {
	Steps int
}

func (e *MaxStepsExceededError) Error() string {
	return fmt.Sprintf("run reached the maximum of %d steps without finishing", e.Steps)
}

// RunAbortedError is any failure that escapes the step body: a panic in
// the loop itself or context cancellation. It ends the run without a
// final output.
type RunAbortedError struct {
	Cause error
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("run aborted: %v", e.Cause)
}

func (e *RunAbortedError) Unwrap() error { return e.Cause }
