// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mamage/photo-similarity/internal/database"
)

// MockStore is an in-memory database.Store. Rows added with AddText keep their
// serialized form, so tests can exercise the legacy parser end to end.
type MockStore struct {
	mu     sync.RWMutex
	photos map[int64]database.Photo
	rows   []database.RawEmbedding
	nextID int64

	// AsText makes Put store canonical JSON text instead of structured values
	AsText bool

	// Error injection
	PutError         error
	GetError         error
	GetPhotoError    error
	ListMissingError error
	CountError       error

	// PutErrorFor fails Put for specific photos only
	PutErrorFor map[int64]error

	closed bool
}

// NewMockStore creates a new empty store
func NewMockStore() *MockStore {
	return &MockStore{photos: make(map[int64]database.Photo)}
}

var _ database.Store = (*MockStore)(nil)

// AddPhoto registers a photo record
func (m *MockStore) AddPhoto(id, projectID int64, location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[id] = database.Photo{ID: id, ProjectID: projectID, Location: location}
}

// AddVector appends a structured row
func (m *MockStore) AddVector(photoID int64, modelName string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(database.RawEmbedding{PhotoID: photoID, ModelName: modelName, Values: slices.Clone(vec)})
}

// AddText appends a row whose embedding column holds raw text
func (m *MockStore) AddText(photoID int64, modelName, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(database.RawEmbedding{PhotoID: photoID, ModelName: modelName, Text: text})
}

func (m *MockStore) appendLocked(row database.RawEmbedding) {
	m.nextID++
	row.RowID = m.nextID
	row.CreatedAt = time.Now()
	m.rows = append(m.rows, row)
}

// Rows returns a copy of every stored row
func (m *MockStore) Rows() []database.RawEmbedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rows)
}

// Put appends a row
func (m *MockStore) Put(ctx context.Context, photoID int64, modelName string, vec []float32) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.PutErrorFor[photoID]; err != nil {
		return err
	}
	if m.AsText {
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		m.appendLocked(database.RawEmbedding{PhotoID: photoID, ModelName: modelName, Text: string(data)})
		return nil
	}
	m.appendLocked(database.RawEmbedding{PhotoID: photoID, ModelName: modelName, Values: slices.Clone(vec)})
	return nil
}

// GetByProject returns rows for photos in the project, in row id order
func (m *MockStore) GetByProject(ctx context.Context, projectID int64, modelName string) ([]database.RawEmbedding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []database.RawEmbedding{}
	for _, r := range m.rows {
		p, ok := m.photos[r.PhotoID]
		if ok && p.ProjectID == projectID && r.ModelName == modelName {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetByPhotos returns rows for the given photos, in row id order
func (m *MockStore) GetByPhotos(ctx context.Context, photoIDs []int64, modelName string) ([]database.RawEmbedding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []database.RawEmbedding{}
	for _, r := range m.rows {
		if r.ModelName == modelName && slices.Contains(photoIDs, r.PhotoID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// CountByModel counts rows for the model
func (m *MockStore) CountByModel(ctx context.Context, modelName string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rows {
		if r.ModelName == modelName {
			n++
		}
	}
	return n, nil
}

// DuplicateCount counts rows beyond the first per photo for the model
func (m *MockStore) DuplicateCount(ctx context.Context, modelName string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]bool)
	dups := 0
	for _, r := range m.rows {
		if r.ModelName != modelName {
			continue
		}
		if seen[r.PhotoID] {
			dups++
		}
		seen[r.PhotoID] = true
	}
	return dups, nil
}

// GetPhoto returns a photo or database.ErrNotFound
func (m *MockStore) GetPhoto(ctx context.Context, photoID int64) (*database.Photo, error) {
	if m.GetPhotoError != nil {
		return nil, m.GetPhotoError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.photos[photoID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

// ListMissing returns photos with no row for the model, by ascending id
func (m *MockStore) ListMissing(ctx context.Context, modelName string, filter database.MissingFilter) ([]database.PendingPhoto, error) {
	if m.ListMissingError != nil {
		return nil, m.ListMissingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	has := make(map[int64]bool)
	for _, r := range m.rows {
		if r.ModelName == modelName {
			has[r.PhotoID] = true
		}
	}

	ids := make([]int64, 0, len(m.photos))
	for id := range m.photos {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := []database.PendingPhoto{}
	for _, id := range ids {
		p := m.photos[id]
		if has[id] || (filter.ProjectID != 0 && p.ProjectID != filter.ProjectID) {
			continue
		}
		out = append(out, p)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Backend returns "mock"
func (m *MockStore) Backend() string { return "mock" }

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
