// Package indexer turns knowledge documents into stored, searchable chunks.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/portfolio-rag/internal/chunker"
	"github.com/bull/portfolio-rag/internal/storage"
)

// DocumentEmbedder embeds chunk text for storage.
type DocumentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter is the part of storage.ChunkStore the pipeline writes through.
type ChunkWriter interface {
	DeleteByDocument(ctx context.Context, documentID string) error
	ReplaceChunks(ctx context.Context, documentID string, rows []storage.ChunkRow) error
}

// Result contains statistics about one reindex.
type Result struct {
	DocumentID string
	Chunks     int
	Tokens     int
	Duration   time.Duration
}

// Pipeline rebuilds the chunk set of a single document:
// chunk, embed, then atomically replace the stored rows.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder DocumentEmbedder
	store    ChunkWriter
	logger   *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(c *chunker.Chunker, embedder DocumentEmbedder, store ChunkWriter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:  c,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Reindex replaces every stored chunk of documentID with chunks of content.
// Identical content produces identical rows. Blank content leaves the
// document with zero chunks and is not an error.
func (p *Pipeline) Reindex(ctx context.Context, documentID, ownerID, content string) (*Result, error) {
	if documentID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: document and owner ids are required", ErrInvalidJob)
	}

	start := time.Now()
	logger := p.logger.With("document_id", documentID)
	result := &Result{DocumentID: documentID}

	chunks := p.chunker.Chunk(content)
	if len(chunks) == 0 {
		if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
			logger.Error("Failed to delete old chunks", "error", err)
			return nil, fmt.Errorf("delete old chunks: %w", err)
		}
		logger.Warn("No chunks generated for document")
		result.Duration = time.Since(start)
		return result, nil
	}
	logger.Debug("Chunked document", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(embeddings) != len(chunks) {
		err = fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingCount, len(embeddings), len(chunks))
	}
	if err != nil {
		logger.Error("Failed to embed chunks", "error", err)
		// Stale rows no longer describe the document.
		p.purge(ctx, logger, documentID)
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	rows := make([]storage.ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = storage.ChunkRow{
			DocumentID: documentID,
			UserID:     ownerID,
			Content:    c.Content,
			Embedding:  embeddings[i],
			ChunkIndex: c.Index,
			TokenCount: c.TokenCount,
			Metadata:   map[string]any{},
		}
		result.Tokens += c.TokenCount
	}

	if err := p.store.ReplaceChunks(ctx, documentID, rows); err != nil {
		logger.Error("Failed to store chunks", "error", err)
		// A store without transactions may hold a mix of old and new rows.
		p.purge(ctx, logger, documentID)
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	result.Chunks = len(rows)
	result.Duration = time.Since(start)
	logger.Info("Indexed document", "chunks", result.Chunks, "tokens", result.Tokens, "duration", result.Duration)
	return result, nil
}

// purge drops every chunk of a document after a failed reindex, leaving it
// with zero chunks. Failure is logged only.
func (p *Pipeline) purge(ctx context.Context, logger *slog.Logger, documentID string) {
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		logger.Warn("Failed to purge chunks", "error", err)
	}
}

// Delete removes every stored chunk of documentID.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidJob)
	}
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Error("Failed to delete chunks", "document_id", documentID, "error", err)
		return fmt.Errorf("delete chunks: %w", err)
	}
	p.logger.Info("Deleted document chunks", "document_id", documentID)
	return nil
}
