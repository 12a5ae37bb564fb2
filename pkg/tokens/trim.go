package tokens

import (
	"github.com/wdndev/tiny-deep-research/pkg/splitter"
)

const (
	// MinChunkSize is the smallest character budget the trimmer re-chunks
	// with; below it text is cut directly.
	MinChunkSize = 140

	// charsPerToken estimates how many characters one overflow token costs.
	charsPerToken = 3
)

// Trimmer forces text under a token budget.
type Trimmer struct {
	Counter      Counter
	MinChunkSize int
}

// NewTrimmer creates a trimmer counting with counter.
func NewTrimmer(counter Counter) *Trimmer {
	return &Trimmer{Counter: counter, MinChunkSize: MinChunkSize}
}

// Trim returns text unchanged when it fits in maxTokens. Otherwise it keeps
// the first chunk of a re-split sized from the token overflow, or cuts the
// text outright when splitting makes no progress, and repeats. Every step
// strictly shortens the text, so it terminates; the empty string is the
// floor. A negative maxTokens is treated as zero.
func (t *Trimmer) Trim(text string, maxTokens int) string {
	if maxTokens < 0 {
		maxTokens = 0
	}
	for {
		if text == "" {
			return text
		}
		count := t.Counter.Count(text)
		if count <= maxTokens {
			return text
		}
		text = t.shrink(text, count-maxTokens)
	}
}

func (t *Trimmer) shrink(text string, overflow int) string {
	runes := []rune(text)
	size := len(runes)

	minSize := t.MinChunkSize
	if minSize <= 0 {
		minSize = 1
	}

	budget := size - overflow*charsPerToken
	if budget < minSize {
		if size > minSize {
			return string(runes[:minSize])
		}
		// Already at the floor: shed at least one character per overflow token.
		cut := size - overflow
		if cut <= 0 {
			return ""
		}
		return string(runes[:cut])
	}

	ts, err := splitter.NewRecursiveCharacterTextSplitter(budget, 0)
	if err != nil {
		return string(runes[:budget])
	}
	chunks, _ := ts.SplitText(text)

	var first string
	if len(chunks) > 0 {
		first = chunks[0]
	}
	if len([]rune(first)) == size {
		return string(runes[:budget])
	}
	return first
}
