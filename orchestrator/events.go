package orchestrator

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart        EventKind = "run_start"
	EventStepStart       EventKind = "step_start"
	EventThought         EventKind = "thought"
	EventToolCallStart   EventKind = "tool_call_start"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventObservation     EventKind = "observation"
	EventConfirmRequest  EventKind = "confirm_request"
	EventConfirmResponse EventKind = "confirm_response"
	EventWarning         EventKind = "warning"
	EventError           EventKind = "error"
	EventFinished        EventKind = "finished"
)

// Event is a typed lifecycle event emitted by the orchestrator.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Step      int            `json:"step,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter delivers typed events to the host application via a buffered
// channel. Emission is fire-and-forget: when the channel is full the
// event is dropped rather than blocking the step loop.
type Emitter struct {
	runID  string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with a buffered channel.
func NewEmitter(runID string, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		runID: runID,
		ch:    make(chan Event, bufferSize),
	}
}

// Emit sends an event. If the emitter is closed the event is silently
// dropped.
func (e *Emitter) Emit(kind EventKind, step int, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		RunID:     e.runID,
		Step:      step,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the loop.
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
