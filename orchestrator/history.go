package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelab/agentrun/llm"
)

// EntryKind discriminates conversation entries for compaction purposes.
type EntryKind string

const (
	EntrySystem      EntryKind = "system"
	EntryGoal        EntryKind = "goal"
	EntryInstruction EntryKind = "instruction" // framing, nudges, correctives, rejections
	EntryAssistant   EntryKind = "assistant"
	EntryObservation EntryKind = "observation"
)

// Entry is one message in the conversation history.
type Entry struct {
	Kind       EntryKind `json:"kind"`
	Role       llm.Role  `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Summarized bool      `json:"summarized,omitempty"`
}

// Summarizer condenses text. Both history compaction and oversized tool
// output flow through this interface.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// TokenCounter measures serialized history size.
type TokenCounter interface {
	Count(text string) int
}

// historyFloor protects the system prompt and the goal restatement from
// compaction.
const historyFloor = 2

// HistoryConfig configures a History.
type HistoryConfig struct {
	Budget     int          // token budget; <= 0 disables compaction
	Counter    TokenCounter // defaults to the chars/4 heuristic
	Summarizer Summarizer   // nil disables compaction (one-time warning)
	OnWarning  func(msg string)
}

// History is the ordered conversation for one run. It is owned
// exclusively by the orchestrator; no locking is needed because history
// mutation happens only between steps on a single goroutine.
type History struct {
	entries []Entry
	cfg     HistoryConfig
	warned  bool
}

// NewHistory seeds a conversation with the system prompt, the restated
// goal, and the phase-framing instruction. The first two entries are
// never compacted away.
func NewHistory(cfg HistoryConfig, systemPrompt, goal string) *History {
	if cfg.Counter == nil {
		cfg.Counter = HeuristicCounter{}
	}
	h := &History{cfg: cfg}
	h.Append(Entry{Kind: EntrySystem, Role: llm.RoleSystem, Content: systemPrompt})
	h.Append(Entry{Kind: EntryGoal, Role: llm.RoleUser, Content: "Your goal:\n" + goal})
	h.Append(Entry{Kind: EntryInstruction, Role: llm.RoleUser, Content: phaseFraming})
	return h
}

// Append adds an entry to the end of the conversation.
func (h *History) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.entries = append(h.entries, e)
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the conversation.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Messages serializes the conversation for an LLM request.
func (h *History) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(h.entries))
	for _, e := range h.entries {
		switch e.Role {
		case llm.RoleSystem:
			msgs = append(msgs, llm.SystemMessage(e.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, llm.AssistantMessage(e.Content))
		default:
			msgs = append(msgs, llm.UserMessage(e.Content))
		}
	}
	return msgs
}

// LastObservation returns the content of the most recent observation
// entry, or "".
func (h *History) LastObservation() string {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Kind == EntryObservation {
			return h.entries[i].Content
		}
	}
	return ""
}

// size returns the token count of the serialized conversation.
func (h *History) size() int {
	total := 0
	for _, e := range h.entries {
		total += h.cfg.Counter.Count(e.Content)
	}
	return total
}

// Compact reduces the conversation until it fits the token budget or
// only the protected floor remains. Compaction is lossy: the floor
// anchors the goal and the most recent entries survive last.
//
// The oldest compactable entry is handled by kind: observations are
// summarized in place (dropped if the summarizer fails or the entry was
// already summarized once), everything else is dropped outright.
func (h *History) Compact(ctx context.Context) {
	if h.cfg.Budget <= 0 {
		return
	}
	if h.cfg.Summarizer == nil {
		if h.size() > h.cfg.Budget && !h.warned {
			h.warned = true
			if h.cfg.OnWarning != nil {
				h.cfg.OnWarning("history exceeds its budget and no summarizer is configured; history will grow unbounded")
			}
		}
		return
	}

	for h.size() > h.cfg.Budget && len(h.entries) > historyFloor {
		oldest := &h.entries[historyFloor]
		if oldest.Kind == EntryObservation && !oldest.Summarized {
			summary, err := h.cfg.Summarizer.Summarize(ctx, oldest.Content)
			if err != nil {
				h.drop(historyFloor)
				continue
			}
			oldest.Content = "[summary of earlier observation] " + summary
			oldest.Summarized = true
			continue
		}
		h.drop(historyFloor)
	}
}

func (h *History) drop(idx int) {
	h.entries = append(h.entries[:idx], h.entries[idx+1:]...)
}

// HeuristicCounter approximates tokens as one per four characters.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
