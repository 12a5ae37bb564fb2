package tokens

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter reports how many tokens a text occupies.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding, e.g. "cl100k_base".
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate counts tokens through langchaingo's model-aware estimator, which
// falls back to a character heuristic for unknown models.
type Estimate struct {
	Model string
}

func (e Estimate) Count(text string) int {
	if text == "" {
		return 0
	}
	return llms.CountTokens(e.Model, text)
}

// NewCounter returns a tiktoken counter, or an Estimate for model when the
// encoding cannot be loaded (it is fetched on first use and may be offline).
func NewCounter(encoding, model string, logger *slog.Logger) Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	c, err := NewTiktoken(encoding)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Falling back to estimated token counts", "encoding", encoding, "error", err)
		return Estimate{Model: model}
	}
	return c
}
