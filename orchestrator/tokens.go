package orchestrator

import "github.com/pkoukk/tiktoken-go"

// tiktokenCounter measures text with a real BPE encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns a TokenCounter backed by the named tiktoken
// encoding (e.g. "cl100k_base"). tiktoken fetches BPE tables on first
// use; when the encoding cannot be loaded it falls back to the chars/4
// heuristic so token budgeting keeps working offline.
func NewTokenCounter(encoding string) TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return HeuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}
