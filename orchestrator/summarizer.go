package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelab/agentrun/llm"
)

// LLMSummarizer condenses text by asking the configured LLM client. It
// serves both history compaction and oversized tool output.
type LLMSummarizer struct {
	Client   *llm.Client
	Model    string
	Provider string
}

const summarizerSystemPrompt = "You condense agent working context. " +
	"Summarize the given text into a short paragraph that preserves key facts, " +
	"file paths, identifiers, numbers, and error messages. Reply with the summary only."

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	maxTokens := 300
	resp, err := s.Client.Complete(ctx, llm.Request{
		Model:    s.Model,
		Provider: s.Provider,
		Messages: []llm.Message{
			llm.SystemMessage(summarizerSystemPrompt),
			llm.UserMessage("Summarize:\n\n" + text),
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return summary, nil
}
