package splitter

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators is the cascade tried in priority order. The empty string
// is the last resort and splits text into individual characters.
var DefaultSeparators = []string{"\n\n", "\n", ".", "。", "；", "，", ",", ">", "<", " ", ""}

// ConfigurationError is returned when a splitter is built with an unusable
// chunk size and overlap pair.
type ConfigurationError struct {
	ChunkSize    int
	ChunkOverlap int
}

func (e *ConfigurationError) Error() string {
	if e.ChunkSize <= 0 {
		return fmt.Sprintf("splitter: chunk size must be positive, got %d", e.ChunkSize)
	}
	if e.ChunkOverlap < 0 {
		return fmt.Sprintf("splitter: chunk overlap must not be negative, got %d", e.ChunkOverlap)
	}
	return fmt.Sprintf("splitter: chunk overlap %d must be smaller than chunk size %d", e.ChunkOverlap, e.ChunkSize)
}

// TextSplitter splits text into bounded, overlapping chunks using a cascade
// of separators. Lengths are measured in characters (runes).
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *slog.Logger
}

var _ textsplitter.TextSplitter = (*TextSplitter)(nil)

// Option configures a TextSplitter.
type Option func(*TextSplitter)

// WithSeparators replaces the separator cascade.
func WithSeparators(separators ...string) Option {
	return func(ts *TextSplitter) {
		ts.separators = append([]string(nil), separators...)
	}
}

// WithLogger sets the logger used for oversized chunk warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(ts *TextSplitter) {
		ts.logger = logger
	}
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter.
// It fails with a *ConfigurationError when chunkOverlap >= chunkSize.
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int, opts ...Option) (*TextSplitter, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, &ConfigurationError{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
	}

	ts := &TextSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// ChunkSize returns the configured maximum chunk length.
func (ts *TextSplitter) ChunkSize() int { return ts.chunkSize }

// ChunkOverlap returns the configured overlap carried between chunks.
func (ts *TextSplitter) ChunkOverlap() int { return ts.chunkOverlap }

// SplitText splits text into chunks in original order. The error is always
// nil; it exists to satisfy textsplitter.TextSplitter.
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.split(text, ts.separators), nil
}

// split chunks text with the first separator of the cascade that occurs in
// it. Oversized pieces recurse with the separators after the chosen one, so
// every recursive call works with a strictly shorter cascade.
func (ts *TextSplitter) split(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	if len(separators) == 0 {
		return ts.atomic(text)
	}

	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			separator, rest = s, separators[i+1:]
			break
		}
	}

	var (
		chunks  []string
		pending []string
	)
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < ts.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, ts.merge(pending, separator)...)
			pending = nil
		}
		chunks = append(chunks, ts.split(piece, rest)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, ts.merge(pending, separator)...)
	}
	return chunks
}

// merge accumulates pieces into chunks no longer than chunkSize. When a chunk
// closes, pieces are dropped from its front until at most chunkOverlap
// characters remain; the remainder seeds the next chunk.
func (ts *TextSplitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var (
		chunks  []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n+joinCost(len(current), sepLen) >= ts.chunkSize && len(current) > 0 {
			if chunk := join(current, separator); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > ts.chunkOverlap || total+n+joinCost(len(current), sepLen) > ts.chunkSize) {
				total -= runeLen(current[0]) + joinCost(len(current)-1, sepLen)
				current = current[1:]
			}
		}
		total += n + joinCost(len(current), sepLen)
		current = append(current, piece)
	}
	if chunk := join(current, separator); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// atomic returns a piece that cannot be split any further as a single chunk,
// warning when it exceeds the configured size.
func (ts *TextSplitter) atomic(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size := runeLen(text); size > ts.chunkSize {
		ts.logger.Warn("Created a chunk longer than the chunk size", "size", size, "chunk_size", ts.chunkSize)
	}
	return []string{text}
}

func splitOn(text, separator string) []string {
	if separator != "" {
		return strings.Split(text, separator)
	}
	pieces := make([]string, 0, len(text))
	for _, r := range text {
		pieces = append(pieces, string(r))
	}
	return pieces
}

func join(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}

// joinCost is the separator length added when appending to a list of n pieces.
func joinCost(n, sepLen int) int {
	if n == 0 {
		return 0
	}
	return sepLen
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
