package orchestrator

import (
	"context"
	"strings"
)

// Confirmer is the external human-input channel consulted before a run
// finishes. Prompt blocks until a response arrives.
type Confirmer interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// affirmatives are the tokens accepted as approval. Anything else is a
// rejection whose full text becomes the next round's instructions.
var affirmatives = map[string]bool{
	"y":        true,
	"yes":      true,
	"ok":       true,
	"okay":     true,
	"approve":  true,
	"approved": true,
}

// Gate intercepts finish requests and requires external approval. A nil
// channel means the gate is disabled and every finish is approved
// immediately (fully automated configurations).
type Gate struct {
	channel Confirmer
}

// NewGate creates a confirmation gate over the given channel.
func NewGate(channel Confirmer) *Gate {
	return &Gate{channel: channel}
}

// Enabled reports whether the gate actually consults a channel.
func (g *Gate) Enabled() bool {
	return g != nil && g.channel != nil
}

// Confirm presents the proposed final output and awaits a response.
// It returns the approval decision and, on rejection, the full response
// text (which may contain new instructions, not just "no").
func (g *Gate) Confirm(ctx context.Context, proposedOutput string) (approved bool, response string, err error) {
	if !g.Enabled() {
		return true, "", nil
	}

	prompt := "The agent proposes to finish with the following output:\n\n" +
		proposedOutput +
		"\n\nApprove? (yes/no — anything else is treated as new instructions)"

	reply, err := g.channel.Prompt(ctx, prompt)
	if err != nil {
		return false, "", err
	}

	if affirmatives[strings.ToLower(strings.TrimSpace(reply))] {
		return true, "", nil
	}
	return false, reply, nil
}
