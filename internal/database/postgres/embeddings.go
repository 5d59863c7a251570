package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/mamage/photo-similarity/internal/database"
	"github.com/pgvector/pgvector-go"
)

// Repository is the PostgreSQL store. Embeddings live in a pgvector column and are
// returned in structured form.
type Repository struct {
	pool *Pool
}

var _ database.Store = (*Repository)(nil)

// NewRepository creates a store over pool
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Backend implements database.Store
func (r *Repository) Backend() string { return Driver }

// Close closes the pool
func (r *Repository) Close() error { return r.pool.Close() }

// Put appends an embedding row
func (r *Repository) Put(ctx context.Context, photoID int64, modelName string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("refusing to store an empty embedding for photo %d", photoID)
	}
	_, err := r.pool.Exec(ctx,
		"INSERT INTO image_embeddings (photo_id, model_name, embedding) VALUES ($1, $2, $3)",
		photoID, modelName, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// GetByProject returns all rows for the project and model, ordered by row id
func (r *Repository) GetByProject(ctx context.Context, projectID int64, modelName string) ([]database.RawEmbedding, error) {
	query := `
		SELECT e.id, e.photo_id, e.model_name, e.embedding, e.created_at
		FROM image_embeddings e
		JOIN photos p ON p.id = e.photo_id
		WHERE p.project_id = $1 AND e.model_name = $2
		ORDER BY e.id ASC
	`
	rows, err := r.pool.Query(ctx, query, projectID, modelName)
	if err != nil {
		return nil, fmt.Errorf("query project embeddings: %w", err)
	}
	return scanEmbeddings(rows)
}

// GetByPhotos returns all rows for the photos and model, ordered by row id
func (r *Repository) GetByPhotos(ctx context.Context, photoIDs []int64, modelName string) ([]database.RawEmbedding, error) {
	if len(photoIDs) == 0 {
		return []database.RawEmbedding{}, nil
	}
	query := `
		SELECT e.id, e.photo_id, e.model_name, e.embedding, e.created_at
		FROM image_embeddings e
		WHERE e.photo_id = ANY($1) AND e.model_name = $2
		ORDER BY e.id ASC
	`
	rows, err := r.pool.Query(ctx, query, pq.Array(photoIDs), modelName)
	if err != nil {
		return nil, fmt.Errorf("query photo embeddings: %w", err)
	}
	return scanEmbeddings(rows)
}

// CountByModel returns the number of rows for the model
func (r *Repository) CountByModel(ctx context.Context, modelName string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM image_embeddings WHERE model_name = $1", modelName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// DuplicateCount returns the number of rows beyond the first per photo for the model
func (r *Repository) DuplicateCount(ctx context.Context, modelName string) (int, error) {
	query := `
		SELECT COALESCE(SUM(n - 1), 0)
		FROM (
			SELECT COUNT(*) AS n
			FROM image_embeddings
			WHERE model_name = $1
			GROUP BY photo_id
		) per_photo
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, modelName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count duplicate embeddings: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func scanEmbeddings(rows rowScanner) ([]database.RawEmbedding, error) {
	defer rows.Close()

	out := []database.RawEmbedding{}
	for rows.Next() {
		var e database.RawEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.RowID, &e.PhotoID, &e.ModelName, &vec, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Values = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}
