// Package chunker splits knowledge documents into bounded, overlapping
// segments ready for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is roughly 500 tokens at 4 characters per token.
	DefaultChunkSize = 2000

	// DefaultChunkOverlap is roughly 50 tokens.
	DefaultChunkOverlap = 200
)

// DefaultSeparators is the split hierarchy, tried in order:
// paragraph break, line break, sentence end, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// ErrInvalidOptions is returned when chunk size and overlap cannot produce
// forward progress.
var ErrInvalidOptions = errors.New("invalid chunker options")

// Chunk is one segment of a document.
type Chunk struct {
	Index      int    // Position in document (0, 1, 2...)
	Content    string // Segment text, including the overlap prefix
	TokenCount int    // EstimateTokenCount(Content)
}

// Chunker splits text with a recursive separator strategy.
// A Chunker holds only configuration and is safe for concurrent use.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum pre-overlap chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.chunkSize = size
	}
}

// WithOverlap sets how many trailing characters of the previous chunk are
// prepended to the next one.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// WithSeparators replaces the separator hierarchy. Order is priority.
func WithSeparators(separators ...string) Option {
	return func(c *Chunker) {
		c.separators = append([]string(nil), separators...)
	}
}

// New creates a Chunker. Sizes are validated rather than clamped: an overlap
// that is not smaller than the chunk size is rejected.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidOptions, c.chunkSize)
	}
	if c.overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidOptions, c.overlap)
	}
	if c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			ErrInvalidOptions, c.overlap, c.chunkSize)
	}
	for _, sep := range c.separators {
		if sep == "" {
			return nil, fmt.Errorf("%w: empty separator", ErrInvalidOptions)
		}
	}

	return c, nil
}

// ChunkSize returns the configured chunk size.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split is a convenience wrapper around New and Chunk.
func Split(text string, opts ...Option) ([]Chunk, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}

// Chunk splits text into ordered chunks. Lengths are measured in characters
// (runes). Blank input yields no chunks; input that fits in one chunk is
// returned trimmed as a single chunk with no overlap.
func (c *Chunker) Chunk(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []Chunk{}
	}

	if runeLen(trimmed) <= c.chunkSize {
		return []Chunk{{
			Index:      0,
			Content:    trimmed,
			TokenCount: EstimateTokenCount(trimmed),
		}}
	}

	pieces := splitRecursive(trimmed, c.chunkSize, c.overlap, c.separators)
	pieces = applyOverlap(pieces, c.overlap)

	chunks := make([]Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = Chunk{
			Index:      i,
			Content:    content,
			TokenCount: EstimateTokenCount(content),
		}
	}
	return chunks
}

// splitRecursive splits text on the highest-priority separator it contains,
// greedily packing parts up to size. Parts that are still too large recurse
// with the remaining, lower-priority separators.
func splitRecursive(text string, size, overlap int, separators []string) []string {
	if runeLen(text) <= size {
		return []string{text}
	}

	sep, rest, ok := pickSeparator(text, separators)
	if !ok {
		return forceSplit(text, size, overlap)
	}

	var pieces []string
	buf := ""
	for _, part := range strings.Split(text, sep) {
		candidate := part
		if buf != "" {
			candidate = buf + sep + part
		}

		if runeLen(candidate) <= size {
			buf = candidate
			continue
		}

		pieces = appendNonBlank(pieces, strings.TrimSpace(buf))

		if runeLen(part) > size {
			for _, sub := range splitRecursive(part, size, overlap, rest) {
				pieces = appendNonBlank(pieces, sub)
			}
			buf = ""
		} else {
			buf = part
		}
	}
	pieces = appendNonBlank(pieces, strings.TrimSpace(buf))

	return pieces
}

// pickSeparator returns the first separator present in text and the
// separators ranked below it.
func pickSeparator(text string, separators []string) (string, []string, bool) {
	for i, sep := range separators {
		if strings.Contains(text, sep) {
			return sep, separators[i+1:], true
		}
	}
	return "", nil, false
}

// forceSplit cuts text into windows of size characters, advancing by
// size-overlap. New guarantees size > overlap.
func forceSplit(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// applyOverlap prefixes every chunk after the first with the last overlap
// characters of its pre-overlap predecessor.
func applyOverlap(pieces []string, overlap int) []string {
	if len(pieces) <= 1 || overlap <= 0 {
		return pieces
	}

	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		out[i] = tail(pieces[i-1], overlap) + pieces[i]
	}
	return out
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func appendNonBlank(pieces []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return pieces
	}
	return append(pieces, s)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
