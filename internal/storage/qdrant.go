package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollectionName is the Qdrant collection holding knowledge chunks.
const DefaultCollectionName = "knowledge_chunks"

const (
	vectorName      = "content"
	upsertBatchSize = 100
)

// QdrantStore stores chunk rows as points in a Qdrant collection.
//
// Point IDs are derived from (document_id, chunk_index), so re-indexing a
// document overwrites its points in place and never duplicates them.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a Qdrant client with health validation.
// It performs a health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(ctx context.Context, host string, port int, collection string) (*QdrantStore, error) {
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
	}

	if err := store.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		return s.Health(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the collection with 1536-dimension cosine vectors
// and payload indexes. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes indexes every field used in filters.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		"document_id": qdrant.FieldType_FieldTypeKeyword,
		"user_id":     qdrant.FieldType_FieldTypeKeyword,
		"chunk_index": qdrant.FieldType_FieldTypeInteger,
	}

	for field, fieldType := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID returns the deterministic point ID for a chunk.
func pointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", documentID, chunkIndex))).String()
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
		},
	}
}

// DeleteByDocument removes every point of a document.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", documentID, err)
	}
	return nil
}

// InsertChunks upserts rows in batches of 100.
func (s *QdrantStore) InsertChunks(ctx context.Context, rows []ChunkRow) error {
	if err := validateRows("", rows); err != nil {
		return err
	}
	return s.upsert(ctx, rows)
}

// ReplaceChunks overwrites the document's points by ID, then removes any
// surplus points left over from a longer previous version. Searches running
// in between see old or new content for each index, never a gap. A failure
// after the first batch leaves a mix of versions; the indexer purges it.
func (s *QdrantStore) ReplaceChunks(ctx context.Context, documentID string, rows []ChunkRow) error {
	if err := validateRows(documentID, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return s.DeleteByDocument(ctx, documentID)
	}

	if err := s.upsert(ctx, rows); err != nil {
		return err
	}

	surplus := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
			qdrant.NewRange("chunk_index", &qdrant.Range{
				Gte: qdrant.PtrOf(float64(len(rows))),
			}),
		},
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(surplus),
	})
	if err != nil {
		return fmt.Errorf("failed to delete surplus chunks for %s: %w", documentID, err)
	}
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, rows []ChunkRow) error {
	for i := 0; i < len(rows); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(rows))

		batch := rows[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, row := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(pointID(row.DocumentID, row.ChunkIndex)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(row.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": row.DocumentID,
					"user_id":     row.UserID,
					"content":     row.Content,
					"chunk_index": row.ChunkIndex,
					"token_count": row.TokenCount,
					"metadata":    metadataOrEmpty(row.Metadata),
				}),
			}
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Match performs a cosine similarity search restricted to one owner.
func (s *QdrantStore) Match(ctx context.Context, q MatchQuery) ([]Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Embedding...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", q.OwnerID),
			},
		},
		ScoreThreshold: qdrant.PtrOf(float32(q.Threshold)),
		Limit:          qdrant.PtrOf(uint64(q.Count)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, Match{
			DocumentID: payload["document_id"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Content:    payload["content"].GetStringValue(),
			Similarity: float64(result.Score),
		})
	}
	return matches, nil
}

// CountByDocument returns the exact number of points stored for a document.
func (s *QdrantStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         documentFilter(documentID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %s: %w", documentID, err)
	}
	return int(count), nil
}
