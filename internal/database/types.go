package database

import (
	"errors"
	"time"

	"github.com/mamage/photo-similarity/internal/vector"
)

// ErrNotFound is returned when a requested photo does not exist.
var ErrNotFound = errors.New("not found")

// RawEmbedding is one stored embedding row exactly as the backend returned it.
// Exactly one of Values (structured column) or Text (serialized column) is meaningful.
type RawEmbedding struct {
	RowID     int64
	PhotoID   int64
	ModelName string
	Values    []float32
	Text      string
	CreatedAt time.Time // zero when the backend does not record it (MariaDB)
}

// Raw returns whichever representation the row carries, for vector.Parse.
func (r RawEmbedding) Raw() any {
	if r.Values != nil {
		return r.Values
	}
	return r.Text
}

// Embedding is a stored row after parsing. A row that failed to parse keeps its
// place with an empty Vector and a non-nil ParseErr.
type Embedding struct {
	RowID    int64
	PhotoID  int64
	Vector   []float32
	Format   vector.Format
	ParseErr error
}

// Photo is the part of a photo record the similarity engine reads.
type Photo struct {
	ID        int64
	ProjectID int64 // 0 when the photo is not in a project
	Location  string
}

// PendingPhoto is a photo with no embedding for the scanned model.
type PendingPhoto = Photo

// MissingFilter narrows a ListMissing scan. Zero values mean no restriction.
type MissingFilter struct {
	ProjectID int64
	Limit     int
}
