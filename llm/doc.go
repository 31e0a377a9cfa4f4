// Package llm provides a small provider-agnostic client for chat-style
// language models, built on top of gollm (github.com/teilomillet/gollm).
//
// The package exposes three layers:
//
//   - ProviderAdapter: the interface every provider backend implements.
//   - Client: provider routing over registered adapters.
//   - Retry: an opt-in exponential-backoff helper driven by the error
//     taxonomy's retryability classification.
//
// Failures are reported as typed errors so callers can distinguish
// transport failures (TransportError), non-2xx API statuses (APIError
// and its subtypes), and undecodable payloads (MalformedResponseError).
//
// Quick start:
//
//	adapter, _ := llm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := llm.NewClient(llm.WithProvider("openai", adapter))
//
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "gpt-4o-mini",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
package llm
