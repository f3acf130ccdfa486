package indexer

import (
	"context"
	"sync"

	"github.com/bull/portfolio-rag/internal/storage"
)

// fakeEmbedder returns a deterministic vector per text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	drop  int // vectors to omit from the answer
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts[:len(texts)-f.drop] {
		v := make([]float32, storage.VectorDimension)
		v[0] = float32(len(text))
		v[1] = 1
		vectors = append(vectors, v)
	}
	return vectors, nil
}

// fakeStore records writes and keeps rows in memory.
type fakeStore struct {
	mu         sync.Mutex
	rows       map[string][]storage.ChunkRow
	deletes    []string
	replaces   []string
	deleteErr  error
	replaceErr error

	// partial is how many rows a failing replace writes over the old ones
	// before giving up, like a store that upserts point by point.
	partial int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]storage.ChunkRow)}
}

func (f *fakeStore) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, documentID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, documentID)
	return nil
}

func (f *fakeStore) ReplaceChunks(_ context.Context, documentID string, rows []storage.ChunkRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces = append(f.replaces, documentID)
	if f.replaceErr != nil {
		if f.partial > 0 {
			existing := f.rows[documentID]
			for _, row := range rows[:min(f.partial, len(rows))] {
				if row.ChunkIndex < len(existing) {
					existing[row.ChunkIndex] = row
				} else {
					existing = append(existing, row)
				}
			}
			f.rows[documentID] = existing
		}
		return f.replaceErr
	}
	f.rows[documentID] = append([]storage.ChunkRow(nil), rows...)
	return nil
}
