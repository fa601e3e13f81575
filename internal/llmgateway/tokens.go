package llmgateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter wraps a single cl100k_base tiktoken encoding, shared across
// providers since both OpenAI and Anthropic prompt budgets are estimated
// against it (the cost of exact per-provider tokenizers is not worth the
// accuracy gain for budget enforcement).
type TokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns the estimated token count of text. tiktoken-go's encoder is
// not documented as goroutine-safe, so calls are serialized.
func (t *TokenCounter) Count(text string) int {
	if t == nil || t.enc == nil {
		return len(text) / 4
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}
