// Package retriever turns a user question into a grounded context block
// drawn from the owner's knowledge chunks.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/portfolio-rag/internal/storage"
)

const (
	// DefaultTopK is the number of chunks requested per query.
	DefaultTopK = 5

	// DefaultMinSimilarity filters out weakly related chunks.
	DefaultMinSimilarity = 0.3
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Matcher runs a similarity search. storage.ChunkStore implements it.
type Matcher interface {
	Match(ctx context.Context, q storage.MatchQuery) ([]storage.Match, error)
}

type options struct {
	topK          int
	minSimilarity float64
}

// Option overrides search parameters for a single call.
type Option func(*options)

// WithTopK sets the maximum number of chunks returned.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinSimilarity sets the minimum cosine similarity a chunk needs.
func WithMinSimilarity(s float64) Option {
	return func(o *options) {
		o.minSimilarity = s
	}
}

// Retriever searches the knowledge chunks of a single owner.
type Retriever struct {
	embedder QueryEmbedder
	matcher  Matcher
	ownerID  string
	defaults options
	logger   *slog.Logger
}

// New creates a Retriever bound to ownerID. opts become the per-call defaults.
func New(embedder QueryEmbedder, matcher Matcher, ownerID string, logger *slog.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := options{topK: DefaultTopK, minSimilarity: DefaultMinSimilarity}
	for _, opt := range opts {
		opt(&defaults)
	}
	return &Retriever{
		embedder: embedder,
		matcher:  matcher,
		ownerID:  ownerID,
		defaults: defaults,
		logger:   logger,
	}
}

// OwnerID returns the owner this retriever searches.
func (r *Retriever) OwnerID() string { return r.ownerID }

// Search returns the ranked matches for query. A blank query returns no
// matches without calling the embedder.
func (r *Retriever) Search(ctx context.Context, query string, opts ...Option) ([]storage.Match, error) {
	if strings.TrimSpace(query) == "" {
		return []storage.Match{}, nil
	}

	o := r.defaults
	for _, opt := range opts {
		opt(&o)
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.matcher.Match(ctx, storage.MatchQuery{
		Embedding: embedding,
		Count:     o.topK,
		Threshold: o.minSimilarity,
		OwnerID:   r.ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	return matches, nil
}

// Retrieve returns the formatted context for query, or "" when nothing
// relevant is found. Failures are logged and degrade to "" so a chat turn
// can proceed without grounding.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) string {
	matches, err := r.Search(ctx, query, opts...)
	if err != nil {
		r.logger.Warn("Context retrieval failed", "owner_id", r.ownerID, "error", err)
		return ""
	}
	r.logger.Debug("Retrieved context", "owner_id", r.ownerID, "matches", len(matches))
	return FormatContext(matches)
}

// FormatContext renders matches as numbered source blocks in the given order.
func FormatContext(matches []storage.Match) string {
	if len(matches) == 0 {
		return ""
	}
	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = fmt.Sprintf("[Source %d]\n%s", i+1, m.Content)
	}
	return strings.Join(blocks, "\n\n")
}
