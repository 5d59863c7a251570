package database

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mamage/photo-similarity/internal/metrics"
	"github.com/mamage/photo-similarity/internal/vector"
	"go.uber.org/zap"
)

type cacheKey struct {
	backend string
	rowID   int64
}

type cachedVector struct {
	vec    []float32
	format vector.Format
	err    error
}

// VectorLoader reads raw rows from a store and parses them into vectors.
// Rows are immutable, so parsed results are cached by (backend, row id) without expiry.
type VectorLoader struct {
	store  Store
	cache  *lru.Cache[cacheKey, cachedVector] // nil disables caching
	logger *zap.Logger
}

// NewVectorLoader creates a loader caching up to cacheSize parsed rows. A cacheSize
// of 0 disables the cache.
func NewVectorLoader(store Store, cacheSize int, logger *zap.Logger) (*VectorLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &VectorLoader{store: store, logger: logger}
	if cacheSize > 0 {
		c, err := lru.New[cacheKey, cachedVector](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create vector cache: %w", err)
		}
		l.cache = c
	}
	return l, nil
}

// Store returns the underlying store.
func (l *VectorLoader) Store() Store { return l.store }

// LoadProject returns the parsed scope for a project, in store order.
func (l *VectorLoader) LoadProject(ctx context.Context, projectID int64, modelName string) ([]Embedding, error) {
	rows, err := l.store.GetByProject(ctx, projectID, modelName)
	if err != nil {
		return nil, fmt.Errorf("load project %d embeddings: %w", projectID, err)
	}
	return l.Parse(rows), nil
}

// LoadPhotos returns the parsed scope for an explicit photo list, in store order.
func (l *VectorLoader) LoadPhotos(ctx context.Context, photoIDs []int64, modelName string) ([]Embedding, error) {
	if len(photoIDs) == 0 {
		return []Embedding{}, nil
	}
	rows, err := l.store.GetByPhotos(ctx, photoIDs, modelName)
	if err != nil {
		return nil, fmt.Errorf("load photo embeddings: %w", err)
	}
	return l.Parse(rows), nil
}

// Parse converts raw rows. A row that cannot be parsed is kept with an empty vector.
func (l *VectorLoader) Parse(rows []RawEmbedding) []Embedding {
	backend := l.store.Backend()
	out := make([]Embedding, len(rows))
	for i, row := range rows {
		cv := l.parseRow(backend, row)
		out[i] = Embedding{
			RowID:    row.RowID,
			PhotoID:  row.PhotoID,
			Vector:   cv.vec,
			Format:   cv.format,
			ParseErr: cv.err,
		}
	}
	return out
}

func (l *VectorLoader) parseRow(backend string, row RawEmbedding) cachedVector {
	key := cacheKey{backend: backend, rowID: row.RowID}
	if l.cache != nil {
		if cv, ok := l.cache.Get(key); ok {
			metrics.VectorCacheTotal.WithLabelValues("hit").Inc()
			return cv
		}
		metrics.VectorCacheTotal.WithLabelValues("miss").Inc()
	}

	res := vector.Parse(row.Raw())
	cv := cachedVector{vec: res.OrEmpty(), format: res.Format(), err: res.Err()}
	metrics.ParseTotal.WithLabelValues(backend, cv.format.String()).Inc()
	if cv.err != nil {
		l.logger.Warn("unparseable embedding, using empty vector",
			zap.Int64("row_id", row.RowID),
			zap.Int64("photo_id", row.PhotoID),
			zap.String("model", row.ModelName),
			zap.Error(cv.err),
		)
	}

	if l.cache != nil {
		l.cache.Add(key, cv)
	}
	return cv
}

// CacheLen returns the number of cached rows.
func (l *VectorLoader) CacheLen() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Len()
}
