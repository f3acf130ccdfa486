package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisVector returns a vector with the given weights on the leading axes.
func axisVector(weights ...float32) []float32 {
	v := make([]float32, VectorDimension)
	copy(v, weights)
	return v
}

func makeRows(documentID, userID string, vectors ...[]float32) []ChunkRow {
	rows := make([]ChunkRow, len(vectors))
	for i, v := range vectors {
		rows[i] = ChunkRow{
			DocumentID: documentID,
			UserID:     userID,
			Content:    documentID + " chunk " + string(rune('A'+i)),
			Embedding:  v,
			ChunkIndex: i,
			TokenCount: 4,
		}
	}
	return rows
}

// runStoreContract exercises the behavior every ChunkStore backend shares.
func runStoreContract(t *testing.T, store ChunkStore) {
	ctx := context.Background()

	t.Run("replace and match", func(t *testing.T) {
		owner := uuid.NewString()
		doc := uuid.NewString()

		rows := makeRows(doc, owner,
			axisVector(1, 0),
			axisVector(1, 1),
			axisVector(0, 1),
		)
		require.NoError(t, store.ReplaceChunks(ctx, doc, rows))

		count, err := store.CountByDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		matches, err := store.Match(ctx, MatchQuery{
			Embedding: axisVector(1, 0),
			Count:     5,
			Threshold: 0.3,
			OwnerID:   owner,
		})
		require.NoError(t, err)
		require.Len(t, matches, 2, "orthogonal chunk must fall below threshold")
		assert.Equal(t, 0, matches[0].ChunkIndex)
		assert.Equal(t, 1, matches[1].ChunkIndex)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4)
		assert.InDelta(t, 0.7071, matches[1].Similarity, 1e-3)
		assert.Equal(t, doc, matches[0].DocumentID)
		assert.Equal(t, rows[0].Content, matches[0].Content)
	})

	t.Run("match honors count", func(t *testing.T) {
		owner := uuid.NewString()
		doc := uuid.NewString()
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner,
			axisVector(1, 0), axisVector(1, 0.1), axisVector(1, 0.2),
		)))

		matches, err := store.Match(ctx, MatchQuery{Embedding: axisVector(1, 0), Count: 2, OwnerID: owner})
		require.NoError(t, err)
		assert.Len(t, matches, 2)
		assert.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)
	})

	t.Run("replace shrinks without duplicates", func(t *testing.T) {
		owner := uuid.NewString()
		doc := uuid.NewString()

		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner,
			axisVector(1, 0), axisVector(0, 1), axisVector(1, 1),
		)))
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner,
			axisVector(1, 0),
		)))
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner,
			axisVector(1, 0),
		)))

		count, err := store.CountByDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("owner scoping", func(t *testing.T) {
		owner := uuid.NewString()
		stranger := uuid.NewString()
		doc := uuid.NewString()
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner, axisVector(1, 0))))

		matches, err := store.Match(ctx, MatchQuery{Embedding: axisVector(1, 0), Count: 5, OwnerID: stranger})
		require.NoError(t, err)
		assert.Empty(t, matches)

		_, err = store.Match(ctx, MatchQuery{Embedding: axisVector(1, 0), Count: 5})
		assert.ErrorIs(t, err, ErrOwnerRequired)
	})

	t.Run("delete by document", func(t *testing.T) {
		owner := uuid.NewString()
		doc := uuid.NewString()
		other := uuid.NewString()
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner, axisVector(1, 0), axisVector(0, 1))))
		require.NoError(t, store.InsertChunks(ctx, makeRows(other, owner, axisVector(1, 0))))

		require.NoError(t, store.DeleteByDocument(ctx, doc))

		count, err := store.CountByDocument(ctx, doc)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = store.CountByDocument(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "other documents must be untouched")

		// Deleting a document with no chunks is not an error.
		assert.NoError(t, store.DeleteByDocument(ctx, uuid.NewString()))
	})

	t.Run("replace with no rows clears document", func(t *testing.T) {
		owner := uuid.NewString()
		doc := uuid.NewString()
		require.NoError(t, store.ReplaceChunks(ctx, doc, makeRows(doc, owner, axisVector(1, 0))))
		require.NoError(t, store.ReplaceChunks(ctx, doc, nil))

		count, err := store.CountByDocument(ctx, doc)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		doc := uuid.NewString()
		rows := makeRows(doc, "owner", []float32{1, 2, 3})
		assert.ErrorIs(t, store.ReplaceChunks(ctx, doc, rows), ErrDimensionMismatch)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.Health(ctx))
	})
}
