package storage

import "errors"

var (
	ErrStoreUnreachable  = errors.New("vector store unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrOwnerRequired     = errors.New("owner id required for similarity search")
	ErrInvalidQuery      = errors.New("invalid match query")
	ErrInvalidRows       = errors.New("invalid chunk rows")
	ErrUnknownBackend    = errors.New("unknown storage backend")
)
