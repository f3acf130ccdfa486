package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendPostgres = "postgres"
)

// Options selects and configures a ChunkStore backend.
type Options struct {
	Backend string

	SQLitePath string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	DatabaseURL string
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, opts Options) (ChunkStore, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.SQLitePath)

	case BackendQdrant:
		store, err := NewQdrantStore(ctx, opts.QdrantHost, opts.QdrantPort, opts.QdrantCollection)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureCollection(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
		return store, nil

	case BackendPostgres:
		store, err := NewPostgresStore(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
