package database

import (
	"context"
)

// EmbeddingReader provides read-only access to image embeddings
type EmbeddingReader interface {
	// GetByProject returns every row for the model whose photo belongs to the project,
	// in ascending row id order. Duplicate rows for one photo are all returned.
	GetByProject(ctx context.Context, projectID int64, modelName string) ([]RawEmbedding, error)
	// GetByPhotos returns every row for the model belonging to the given photos,
	// in ascending row id order.
	GetByPhotos(ctx context.Context, photoIDs []int64, modelName string) ([]RawEmbedding, error)
	// CountByModel returns the number of rows stored for the model
	CountByModel(ctx context.Context, modelName string) (int, error)
	// DuplicateCount returns how many rows exceed one per (photo, model)
	DuplicateCount(ctx context.Context, modelName string) (int, error)
}

// EmbeddingWriter provides write access to image embeddings
type EmbeddingWriter interface {
	EmbeddingReader

	// Put appends a row. It never updates or replaces an existing row.
	Put(ctx context.Context, photoID int64, modelName string, vec []float32) error
}

// PhotoReader reads the photo records embeddings are computed for
type PhotoReader interface {
	// GetPhoto returns the photo, or ErrNotFound
	GetPhoto(ctx context.Context, photoID int64) (*Photo, error)
	// ListMissing returns photos with no row for the model, in ascending photo id order
	ListMissing(ctx context.Context, modelName string, filter MissingFilter) ([]PendingPhoto, error)
}

// Store is a complete storage backend.
type Store interface {
	EmbeddingWriter
	PhotoReader

	// Backend names the implementation, e.g. "postgres"
	Backend() string
	Close() error
}
