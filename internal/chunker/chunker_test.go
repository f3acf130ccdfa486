package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func mustNew(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// TestChunk_Empty verifies blank input produces no chunks.
func TestChunk_Empty(t *testing.T) {
	c := mustNew(t)
	for _, input := range []string{"", "   ", "\n\n\t "} {
		chunks := c.Chunk(input)
		if len(chunks) != 0 {
			t.Errorf("Chunk(%q): expected 0 chunks, got %d", input, len(chunks))
		}
	}
}

// TestChunk_ShortText verifies text under the limit is a single trimmed chunk.
func TestChunk_ShortText(t *testing.T) {
	input := "Hello, I am a software engineer."

	chunks := mustNew(t).Chunk(input)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("Expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].Content != input {
		t.Errorf("Expected content %q, got %q", input, chunks[0].Content)
	}
	if chunks[0].TokenCount != EstimateTokenCount(input) {
		t.Errorf("Expected token count %d, got %d", EstimateTokenCount(input), chunks[0].TokenCount)
	}
}

func TestChunk_TrimsSingleChunk(t *testing.T) {
	chunks := mustNew(t).Chunk("  \n hello world \n\n")
	if len(chunks) != 1 || chunks[0].Content != "hello world" {
		t.Fatalf("Expected single trimmed chunk, got %+v", chunks)
	}
}

// TestChunk_ForceSplit covers an unbroken run with no separators.
func TestChunk_ForceSplit(t *testing.T) {
	input := strings.Repeat("A", 5000)

	chunks := mustNew(t, WithChunkSize(2000), WithOverlap(200)).Chunk(input)
	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}

	// Windows start at 0, 1800 and 3600.
	wantLens := []int{2000, 2200, 1600}
	for i, want := range wantLens {
		if got := len(chunks[i].Content); got != want {
			t.Errorf("Chunk %d length: expected %d, got %d", i, want, got)
		}
	}

	overlap := chunks[0].Content[len(chunks[0].Content)-200:]
	if !strings.HasPrefix(chunks[1].Content, overlap) {
		t.Errorf("Chunk 1 should start with the last 200 characters of chunk 0")
	}
	if chunks[1].TokenCount != 550 {
		t.Errorf("Chunk 1 token count: expected 550, got %d", chunks[1].TokenCount)
	}
}

// TestChunk_Paragraphs verifies greedy packing on paragraph breaks.
func TestChunk_Paragraphs(t *testing.T) {
	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	p3 := strings.Repeat("c", 60)
	input := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := mustNew(t, WithChunkSize(100), WithOverlap(10)).Chunk(input)

	want := []string{
		p1,
		strings.Repeat("a", 10) + p2,
		strings.Repeat("b", 10) + p3,
	}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if chunks[i].Content != w {
			t.Errorf("Chunk %d: expected %q, got %q", i, w, chunks[i].Content)
		}
		if chunks[i].Index != i {
			t.Errorf("Chunk %d: expected index %d, got %d", i, i, chunks[i].Index)
		}
	}
}

// TestChunk_Sentences verifies the sentence separator is used when no
// line breaks exist.
func TestChunk_Sentences(t *testing.T) {
	input := "First sentence is here. Second sentence is here. Third sentence is here."

	chunks := mustNew(t, WithChunkSize(50), WithOverlap(5)).Chunk(input)

	want := []string{
		"First sentence is here. Second sentence is here",
		" hereThird sentence is here.",
	}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, w := range want {
		if chunks[i].Content != w {
			t.Errorf("Chunk %d: expected %q, got %q", i, w, chunks[i].Content)
		}
	}
}

// TestChunk_OversizedPartRecurses verifies an oversized paragraph falls back
// to lower-priority separators.
func TestChunk_OversizedPartRecurses(t *testing.T) {
	input := "short\n\none two three four five six seven"

	chunks := mustNew(t, WithChunkSize(20), WithOverlap(0)).Chunk(input)

	want := []string{"short", "one two three four", "five six seven"}
	got := make([]string, len(chunks))
	for i, c := range chunks {
		got[i] = c.Content
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	input := longDocument()
	c := mustNew(t, WithChunkSize(300), WithOverlap(40))

	first := c.Chunk(input)
	second := c.Chunk(input)
	if !reflect.DeepEqual(first, second) {
		t.Error("Chunking the same input twice should produce identical output")
	}
}

func TestChunk_ContiguousIndexes(t *testing.T) {
	chunks := mustNew(t, WithChunkSize(250), WithOverlap(25)).Chunk(longDocument())
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("Chunk at position %d has index %d", i, c.Index)
		}
		if c.TokenCount != EstimateTokenCount(c.Content) {
			t.Errorf("Chunk %d token count %d does not match content", i, c.TokenCount)
		}
	}
}

// TestChunk_OverlapInvariant checks every chunk after the first begins with
// the tail of its predecessor's pre-overlap content.
func TestChunk_OverlapInvariant(t *testing.T) {
	const size, overlap = 250, 30
	input := strings.TrimSpace(longDocument())

	pieces := splitRecursive(input, size, overlap, DefaultSeparators)
	chunks := mustNew(t, WithChunkSize(size), WithOverlap(overlap)).Chunk(input)

	if len(pieces) != len(chunks) {
		t.Fatalf("Expected %d chunks, got %d", len(pieces), len(chunks))
	}
	for i, p := range pieces {
		if utf8.RuneCountInString(p) > size {
			t.Errorf("Pre-overlap piece %d exceeds chunk size: %d", i, utf8.RuneCountInString(p))
		}
		if i == 0 {
			continue
		}
		prefix := tail(pieces[i-1], overlap)
		if !strings.HasPrefix(chunks[i].Content, prefix) {
			t.Errorf("Chunk %d does not start with overlap %q", i, prefix)
		}
		if chunks[i].Content != prefix+p {
			t.Errorf("Chunk %d should be overlap + piece", i)
		}
	}
}

func TestChunk_NoOverlap(t *testing.T) {
	input := strings.TrimSpace(longDocument())
	chunks := mustNew(t, WithChunkSize(200), WithOverlap(0)).Chunk(input)
	pieces := splitRecursive(input, 200, 0, DefaultSeparators)
	for i := range chunks {
		if chunks[i].Content != pieces[i] {
			t.Errorf("Chunk %d should equal its piece when overlap is 0", i)
		}
	}
}

func TestChunk_MultiByte(t *testing.T) {
	input := strings.Repeat("é", 50)
	chunks := mustNew(t, WithChunkSize(20), WithOverlap(5)).Chunk(input)
	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("Chunk %d is not valid UTF-8", i)
		}
	}
	if got := utf8.RuneCountInString(chunks[0].Content); got != 20 {
		t.Errorf("Chunk 0 should have 20 characters, got %d", got)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"overlap equals size", []Option{WithChunkSize(100), WithOverlap(100)}},
		{"overlap exceeds size", []Option{WithChunkSize(100), WithOverlap(150)}},
		{"zero size", []Option{WithChunkSize(0)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"empty separator", []Option{WithSeparators("\n", "")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c := mustNew(t)
	if c.ChunkSize() != DefaultChunkSize {
		t.Errorf("Expected chunk size %d, got %d", DefaultChunkSize, c.ChunkSize())
	}
	if c.Overlap() != DefaultChunkOverlap {
		t.Errorf("Expected overlap %d, got %d", DefaultChunkOverlap, c.Overlap())
	}
}

func TestSplit_PropagatesError(t *testing.T) {
	if _, err := Split("text", WithChunkSize(10), WithOverlap(10)); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("Expected ErrInvalidOptions, got %v", err)
	}
}

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 2000), 500},
		{"éééé", 1},
	}
	for _, tt := range tests {
		if got := EstimateTokenCount(tt.input); got != tt.want {
			t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// longDocument builds a multi-paragraph document with mixed separators.
func longDocument() string {
	var b strings.Builder
	for p := 0; p < 12; p++ {
		for s := 0; s < 6; s++ {
			b.WriteString("I built distributed systems and data pipelines for a living")
			b.WriteString(". ")
		}
		if p%3 == 0 {
			b.WriteString("\nSkills: Go, Postgres, Kubernetes")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
