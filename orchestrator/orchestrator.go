package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kestrelab/agentrun/llm"
)

// DefaultMaxSteps bounds the number of model round-trips per run. It is
// the only hard limit; tool executions within a step are not counted.
const DefaultMaxSteps = 70

// DefaultHistoryBudget is the token budget for conversation compaction.
const DefaultHistoryBudget = 24000

// Config holds per-orchestrator tuning.
type Config struct {
	Provider                  string
	Model                     string
	MaxSteps                  int
	HistoryBudget             int
	OutputCompactionThreshold int
	EventBufferSize           int
	SkipConfirmation          bool
}

// DefaultConfig returns a Config with the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxSteps:                  DefaultMaxSteps,
		HistoryBudget:             DefaultHistoryBudget,
		OutputCompactionThreshold: DefaultOutputCompactionThreshold,
	}
}

func (c *Config) normalize() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.HistoryBudget < 0 {
		c.HistoryBudget = 0
	}
	if c.OutputCompactionThreshold <= 0 {
		c.OutputCompactionThreshold = DefaultOutputCompactionThreshold
	}
}

// Orchestrator drives the think/act/observe loop for one goal at a time.
// It owns the conversation history and serializes all model calls; tool
// execution may fan out within a step, but steps never overlap.
type Orchestrator struct {
	client     *llm.Client
	registry   *Registry
	flows      FlowResolver
	gate       *Gate
	summarizer Summarizer
	counter    TokenCounter
	emitter    *Emitter
	config     Config

	running atomic.Bool
}

// New creates an Orchestrator over an LLM client and a tool registry.
// The finish tool is registered automatically; it has no handler because
// the loop intercepts it.
func New(client *llm.Client, registry *Registry, config Config) *Orchestrator {
	config.normalize()
	if registry == nil {
		registry = NewRegistry()
	}
	registry.Register(RegisteredTool{
		Definition: Definition{
			Name:        FinishToolName,
			Description: "Declare the goal complete. The output parameter is the final result delivered to the user.",
			Parameters: ParamSchema{
				Type: "object",
				Properties: map[string]any{
					"output": map[string]any{
						"type":        "string",
						"description": "The final answer or result for the goal.",
					},
				},
				Required: []string{"output"},
			},
		},
	})
	return &Orchestrator{
		client:   client,
		registry: registry,
		gate:     NewGate(nil),
		config:   config,
		emitter:  NewEmitter(uuid.New().String(), config.EventBufferSize),
	}
}

// SetFlows attaches a flow resolver consulted by flow-referencing tools.
func (o *Orchestrator) SetFlows(flows FlowResolver) { o.flows = flows }

// SetConfirmer attaches the human confirmation channel. A nil confirmer
// leaves every finish auto-approved.
func (o *Orchestrator) SetConfirmer(c Confirmer) { o.gate = NewGate(c) }

// SetSummarizer attaches the summarizer used for history compaction and
// oversized tool output.
func (o *Orchestrator) SetSummarizer(s Summarizer) { o.summarizer = s }

// SetTokenCounter overrides the token counter used for history budgeting.
func (o *Orchestrator) SetTokenCounter(c TokenCounter) { o.counter = c }

// Events returns the channel of run lifecycle events. The channel stays
// open across sequential runs; it is closed by Close, not by Run.
func (o *Orchestrator) Events() <-chan Event { return o.emitter.Events() }

// Close ends the event stream. Call it after the orchestrator's final
// run; consumers ranging over Events unblock when the channel closes.
// Safe to call multiple times.
func (o *Orchestrator) Close() { o.emitter.Close() }

// Registry returns the orchestrator's tool registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Run executes the loop for one goal until the model's finish is
// approved, the step bound is hit, or the run aborts. A run that hits
// the step bound still returns a best-effort output synthesized from the
// last observation, with a nil error.
//
// Run is not reentrant; a second concurrent call fails immediately.
func (o *Orchestrator) Run(ctx context.Context, goal string) (output string, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", &RunAbortedError{Cause: fmt.Errorf("orchestrator is already running")}
	}
	defer o.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = &RunAbortedError{Cause: fmt.Errorf("panic in step loop: %v", r)}
			o.emitter.Emit(EventError, 0, map[string]any{"error": err.Error()})
		}
	}()

	gate := o.gate
	if o.config.SkipConfirmation {
		gate = NewGate(nil)
	}

	validator := NewValidator(o.registry, o.flows)
	executor := NewExecutor(o.registry, o.summarizer, o.config.OutputCompactionThreshold, o.emitter)
	history := NewHistory(HistoryConfig{
		Budget:     o.config.HistoryBudget,
		Counter:    o.counter,
		Summarizer: o.summarizer,
		OnWarning: func(msg string) {
			o.emitter.Emit(EventWarning, 0, map[string]any{"message": msg})
		},
	}, BuildSystemPrompt(o.registry, o.flows), goal)

	o.emitter.Emit(EventRunStart, 0, map[string]any{"goal": goal, "max_steps": o.config.MaxSteps})

	for step := 1; step <= o.config.MaxSteps; step++ {
		if ctx.Err() != nil {
			abort := &RunAbortedError{Cause: ctx.Err()}
			o.emitter.Emit(EventError, step, map[string]any{"error": abort.Error()})
			return "", abort
		}

		history.Compact(ctx)
		o.emitter.Emit(EventStepStart, step, nil)

		resp, err := o.complete(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				abort := &RunAbortedError{Cause: ctx.Err()}
				o.emitter.Emit(EventError, step, map[string]any{"error": abort.Error()})
				return "", abort
			}
			reqErr := &LLMRequestError{Cause: err}
			o.emitter.Emit(EventError, step, map[string]any{"error": reqErr.Error()})
			history.Append(Entry{
				Kind: EntryInstruction, Role: llm.RoleUser,
				Content: "Your previous request could not be completed: " + reqErr.Error() + ". Continue working toward the goal.",
			})
			continue
		}

		parsed, perr := ParseResponse(resp)
		if perr != nil {
			o.emitter.Emit(EventError, step, map[string]any{"error": perr.Error()})
			history.Append(Entry{Kind: EntryAssistant, Role: llm.RoleAssistant, Content: resp.Text})
			history.Append(Entry{
				Kind: EntryInstruction, Role: llm.RoleUser,
				Content: "Your reply could not be parsed (" + perr.Error() + "). " +
					"Reply with a single JSON object: {\"thought\": ..., \"tool_calls\": [...], \"parallel\": false}.",
			})
			continue
		}

		o.emitter.Emit(EventThought, step, map[string]any{
			"thought": parsed.Thought,
			"tools":   toolNames(parsed.ToolCalls),
		})
		history.Append(Entry{Kind: EntryAssistant, Role: llm.RoleAssistant, Content: renderDecision(parsed)})

		if len(parsed.ToolCalls) == 0 {
			history.Append(Entry{
				Kind: EntryInstruction, Role: llm.RoleUser,
				Content: "You proposed no tool calls. Either make progress with a tool call or call \"finish\" with your result.",
			})
			continue
		}

		if violations := validator.ValidateAll(parsed.ToolCalls); len(violations) > 0 {
			valErr := &ToolValidationError{Violations: violations}
			o.emitter.Emit(EventError, step, map[string]any{"error": valErr.Error()})
			history.Append(Entry{
				Kind: EntryInstruction, Role: llm.RoleUser,
				Content: "Your tool calls were rejected:\n- " + strings.Join(violations, "\n- ") +
					"\nCorrect the calls and try again.",
			})
			continue
		}

		// A finish call preempts its siblings: nothing else in the batch
		// executes, approved or not.
		if finish := findFinish(parsed.ToolCalls); finish != nil {
			proposed := renderFinishOutput(finish.Params["output"])
			o.emitter.Emit(EventConfirmRequest, step, map[string]any{"output": proposed})

			approved, response, cerr := gate.Confirm(ctx, proposed)
			if cerr != nil {
				abort := &RunAbortedError{Cause: fmt.Errorf("confirmation failed: %w", cerr)}
				o.emitter.Emit(EventError, step, map[string]any{"error": abort.Error()})
				return "", abort
			}
			o.emitter.Emit(EventConfirmResponse, step, map[string]any{"approved": approved, "response": response})

			if approved {
				o.emitter.Emit(EventFinished, step, map[string]any{"output": proposed, "steps": step})
				return proposed, nil
			}
			history.Append(Entry{
				Kind: EntryInstruction, Role: llm.RoleUser,
				Content: "Your finish was not approved. The reviewer said:\n" + response +
					"\nAddress this and continue working toward the goal.",
			})
			continue
		}

		results := executor.Execute(ctx, parsed.ToolCalls, parsed.Parallel)
		observation := FormatObservation(results)
		o.emitter.Emit(EventObservation, step, map[string]any{"observation": observation})
		history.Append(Entry{Kind: EntryObservation, Role: llm.RoleUser, Content: observation})
	}

	// Step bound reached. Synthesize a degraded final output rather than
	// discarding the run's work.
	maxErr := &MaxStepsExceededError{Steps: o.config.MaxSteps}
	synthesized := o.synthesizeOutput(ctx, history, maxErr)
	o.emitter.Emit(EventFinished, o.config.MaxSteps, map[string]any{
		"output":   synthesized,
		"steps":    o.config.MaxSteps,
		"degraded": true,
		"reason":   maxErr.Error(),
	})
	return synthesized, nil
}

// complete issues one model request over the full conversation.
func (o *Orchestrator) complete(ctx context.Context, history *History) (*llm.Response, error) {
	return o.client.Complete(ctx, llm.Request{
		Model:      o.config.Model,
		Provider:   o.config.Provider,
		Messages:   history.Messages(),
		Tools:      o.registry.LLMToolDefs(),
		ToolChoice: &llm.ToolChoice{Mode: "auto"},
	})
}

// synthesizeOutput builds the degraded final output for a run that ran
// out of steps: the last observation, summarized when a summarizer is
// available.
func (o *Orchestrator) synthesizeOutput(ctx context.Context, history *History, maxErr *MaxStepsExceededError) string {
	last := history.LastObservation()
	if last == "" {
		return maxErr.Error()
	}
	if o.summarizer != nil {
		if summary, err := o.summarizer.Summarize(ctx, last); err == nil {
			return fmt.Sprintf("%s Partial result:\n%s", maxErr.Error(), summary)
		}
	}
	return fmt.Sprintf("%s Partial result:\n%s", maxErr.Error(), last)
}

// renderDecision serializes the model's decision back into the history
// entry recording this step.
func renderDecision(p *Parsed) string {
	var sb strings.Builder
	sb.WriteString(p.Thought)
	for _, call := range p.ToolCalls {
		fmt.Fprintf(&sb, "\n-> %s(%s)", call.Tool, renderParams(call.Params))
	}
	return sb.String()
}

func renderParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, 0, len(params))
	for k, v := range params {
		s := fmt.Sprintf("%v", v)
		if len(s) > 60 {
			s = s[:60] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, s))
	}
	return strings.Join(parts, ", ")
}

// renderFinishOutput accepts a finish output of any JSON type,
// rendering non-strings back to JSON text so the final output is never
// silently empty.
func renderFinishOutput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func findFinish(calls []ToolCall) *ToolCall {
	for i := range calls {
		if calls[i].Tool == FinishToolName {
			return &calls[i]
		}
	}
	return nil
}

func toolNames(calls []ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Tool
	}
	return names
}
