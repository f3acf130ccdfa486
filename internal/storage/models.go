package storage

import "context"

// ChunkRow is one persisted chunk of a knowledge document.
// Rows for a document always form the contiguous range 0..N-1.
type ChunkRow struct {
	DocumentID string         // Owning knowledge document
	UserID     string         // Document owner, used to scope search
	Content    string         // Chunk text, including overlap
	Embedding  []float32      // 1536-dim document embedding
	ChunkIndex int            // Position in document (0, 1, 2...)
	TokenCount int            // Estimated tokens in Content
	Metadata   map[string]any // Free-form, "{}" when empty
}

// Match is one ranked similarity search hit.
type Match struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Similarity float64 // Cosine similarity, higher is closer
}

// MatchQuery parameterizes a similarity search.
type MatchQuery struct {
	Embedding []float32
	Count     int     // Maximum matches (top-K)
	Threshold float64 // Minimum cosine similarity
	OwnerID   string  // Only chunks of this owner are considered
}

// ChunkStore is the storage boundary for chunk rows.
// Implementations are safe for concurrent use.
type ChunkStore interface {
	// DeleteByDocument removes every chunk of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
	// InsertChunks inserts rows as a single batch.
	InsertChunks(ctx context.Context, rows []ChunkRow) error
	// ReplaceChunks swaps the full chunk set of a document without an empty
	// window or duplicates. SQL backends are all-or-nothing; Qdrant upserts in
	// batches, so on error it may hold a mix of old and new rows and the
	// caller must delete the document.
	ReplaceChunks(ctx context.Context, documentID string, rows []ChunkRow) error
	// Match returns up to q.Count chunks of q.OwnerID with similarity at
	// least q.Threshold, ordered by descending similarity.
	Match(ctx context.Context, q MatchQuery) ([]Match, error)
	// CountByDocument returns the number of stored chunks for a document.
	CountByDocument(ctx context.Context, documentID string) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// VectorDimension is the embedding size stored per chunk.
const VectorDimension = 1536
