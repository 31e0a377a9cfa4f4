// Package orchestrator implements the autonomous agent loop: it sends
// the conversation to an LLM, parses the reply into a thought plus tool
// calls, validates the calls against registered schemas, executes them
// sequentially or in parallel, folds the results back into history, and
// repeats until the model's finish is approved or the step bound is hit.
//
// The orchestrator owns the conversation exclusively; all model calls
// are serialized and only tool execution fans out within a step.
package orchestrator
