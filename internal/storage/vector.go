package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeVector converts a float32 slice to little-endian bytes.
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts bytes back to a float32 slice.
func deserializeVector(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity returns 0 for mismatched lengths or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// validateQuery checks the invariants every backend enforces before search.
func validateQuery(q MatchQuery) error {
	if q.OwnerID == "" {
		return ErrOwnerRequired
	}
	if q.Count <= 0 {
		return fmt.Errorf("%w: count %d must be positive", ErrInvalidQuery, q.Count)
	}
	if len(q.Embedding) != VectorDimension {
		return fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(q.Embedding), VectorDimension)
	}
	return nil
}

// validateRows checks embedding sizes and ownership. When documentID is set
// the rows must be the complete, ordered set 0..N-1 for that document.
func validateRows(documentID string, rows []ChunkRow) error {
	for i, row := range rows {
		if len(row.Embedding) != VectorDimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(row.Embedding), VectorDimension)
		}
		if row.DocumentID == "" || row.UserID == "" {
			return fmt.Errorf("%w: chunk %d is missing document or user id", ErrInvalidRows, i)
		}
		if documentID == "" {
			continue
		}
		if row.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %d belongs to %q, not %q", ErrInvalidRows, i, row.DocumentID, documentID)
		}
		if row.ChunkIndex != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", ErrInvalidRows, i, row.ChunkIndex)
		}
	}
	return nil
}

// metadataOrEmpty never returns nil so stored metadata is always an object.
func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
