package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		chunk_index INTEGER NOT NULL,
		token_count INTEGER NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (document_id, chunk_index)
	)`, VectorDimension),
	`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_user_id ON knowledge_chunks (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding ON knowledge_chunks
		USING hnsw (embedding vector_cosine_ops)`,
}

// PostgresStore keeps chunk rows in Postgres and ranks them with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, waiting up to 30s for the
// server to become reachable.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	store := &PostgresStore{pool: pool}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	err = backoff.Retry(func() error {
		return store.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	return store, nil
}

// EnsureSchema creates the pgvector extension, table and indexes. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// DeleteByDocument removes every chunk of a document.
func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", documentID, err)
	}
	return nil
}

// InsertChunks inserts rows in one transaction.
func (s *PostgresStore) InsertChunks(ctx context.Context, rows []ChunkRow) error {
	if err := validateRows("", rows); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return insertBatch(ctx, tx, rows)
	})
}

// ReplaceChunks deletes and re-inserts a document's chunks in one transaction.
func (s *PostgresStore) ReplaceChunks(ctx context.Context, documentID string, rows []ChunkRow) error {
	if err := validateRows(documentID, rows); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		return insertBatch(ctx, tx, rows)
	})
}

func insertBatch(ctx context.Context, tx pgx.Tx, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO knowledge_chunks (document_id, user_id, content, embedding, chunk_index, token_count, metadata)
			VALUES ($1, $2, $3, $4::vector, $5, $6, $7)`,
			row.DocumentID, row.UserID, row.Content, pgvector.NewVector(row.Embedding),
			row.ChunkIndex, row.TokenCount, metadataOrEmpty(row.Metadata),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// Match ranks the owner's chunks by cosine similarity (1 - cosine distance).
func (s *PostgresStore) Match(ctx context.Context, q MatchQuery) ([]Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT document_id, chunk_index, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_chunks
		WHERE user_id = $2 AND 1 - (embedding <=> $1::vector) >= $3
		ORDER BY embedding <=> $1::vector, document_id, chunk_index
		LIMIT $4`,
		pgvector.NewVector(q.Embedding), q.OwnerID, q.Threshold, q.Count,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		err := row.Scan(&m.DocumentID, &m.ChunkIndex, &m.Content, &m.Similarity)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan matches: %w", err)
	}
	return matches, nil
}

// CountByDocument returns the number of stored chunks for a document.
func (s *PostgresStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %s: %w", documentID, err)
	}
	return count, nil
}
