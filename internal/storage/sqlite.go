package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB NOT NULL,
    chunk_index INTEGER NOT NULL,
    token_count INTEGER NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_user_id ON knowledge_chunks(user_id);
`

// SQLiteStore keeps chunk rows in a local SQLite file and ranks them in Go.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent replace transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk of a document.
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", documentID, err)
	}
	return nil
}

// InsertChunks inserts rows in one transaction.
func (s *SQLiteStore) InsertChunks(ctx context.Context, rows []ChunkRow) error {
	if err := validateRows("", rows); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, rows)
	})
}

// ReplaceChunks deletes and re-inserts a document's chunks in one transaction.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, documentID string, rows []ChunkRow) error {
	if err := validateRows(documentID, rows); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		return insertRows(ctx, tx, rows)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_chunks (document_id, user_id, content, embedding, chunk_index, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		metadata, err := json.Marshal(metadataOrEmpty(row.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for chunk %d: %w", row.ChunkIndex, err)
		}
		_, err = stmt.ExecContext(ctx,
			row.DocumentID, row.UserID, row.Content, serializeVector(row.Embedding),
			row.ChunkIndex, row.TokenCount, string(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s/%d: %w", row.DocumentID, row.ChunkIndex, err)
		}
	}
	return nil
}

// Match scans the owner's chunks and ranks them by cosine similarity.
// Ties are broken by document ID then chunk index so results are stable.
func (s *SQLiteStore) Match(ctx context.Context, q MatchQuery) ([]Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, chunk_index, content, embedding
		FROM knowledge_chunks
		WHERE user_id = ?
	`, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &m.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		m.Similarity = cosineSimilarity(q.Embedding, deserializeVector(blob))
		if m.Similarity >= q.Threshold {
			matches = append(matches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	if len(matches) > q.Count {
		matches = matches[:q.Count]
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// CountByDocument returns the number of stored chunks for a document.
func (s *SQLiteStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = ?", documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %s: %w", documentID, err)
	}
	return count, nil
}

// Chunks returns the stored rows of a document ordered by chunk index.
func (s *SQLiteStore) Chunks(ctx context.Context, documentID string) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, user_id, content, embedding, chunk_index, token_count, metadata
		FROM knowledge_chunks
		WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		var blob []byte
		var metadata string
		if err := rows.Scan(&r.DocumentID, &r.UserID, &r.Content, &blob, &r.ChunkIndex, &r.TokenCount, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		r.Embedding = deserializeVector(blob)
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
