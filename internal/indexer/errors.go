package indexer

import "errors"

var (
	ErrInvalidJob     = errors.New("invalid indexing job")
	ErrQueueClosed    = errors.New("indexing queue closed")
	ErrEmbeddingCount = errors.New("embedding count does not match chunk count")
)
