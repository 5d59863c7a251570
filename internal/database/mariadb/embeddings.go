package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mamage/photo-similarity/internal/database"
)

// Repository is the MariaDB store. Rows come back with the raw TEXT column so every
// historical encoding reaches the parser untouched. Reads only touch the legacy columns,
// since older ai_image_embeddings tables have no created_at.
type Repository struct {
	pool *Pool
}

var _ database.Store = (*Repository)(nil)

// NewRepository creates a store over pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Backend() string { return Driver }

func (r *Repository) Close() error { return r.pool.Close() }

type embeddingRow struct {
	ID        int64          `db:"id"`
	PhotoID   int64          `db:"photo_id"`
	ModelName string         `db:"model_name"`
	Embedding sql.NullString `db:"embedding"`
}

func (row embeddingRow) raw() database.RawEmbedding {
	return database.RawEmbedding{
		RowID:     row.ID,
		PhotoID:   row.PhotoID,
		ModelName: row.ModelName,
		Text:      row.Embedding.String,
	}
}

func toRaw(rows []embeddingRow) []database.RawEmbedding {
	out := make([]database.RawEmbedding, len(rows))
	for i, row := range rows {
		out[i] = row.raw()
	}
	return out
}

// Put appends a row holding the vector as a canonical JSON array.
func (r *Repository) Put(ctx context.Context, photoID int64, modelName string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("refusing to store an empty embedding for photo %d", photoID)
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = r.pool.db.ExecContext(ctx,
		"INSERT INTO ai_image_embeddings (photo_id, model_name, embedding) VALUES (?, ?, ?)",
		photoID, modelName, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

func (r *Repository) GetByProject(ctx context.Context, projectID int64, modelName string) ([]database.RawEmbedding, error) {
	query := `
		SELECT e.id, e.photo_id, e.model_name, e.embedding
		FROM ai_image_embeddings e
		JOIN photos p ON p.id = e.photo_id
		WHERE p.project_id = ? AND e.model_name = ?
		ORDER BY e.id ASC
	`
	var rows []embeddingRow
	if err := r.pool.db.SelectContext(ctx, &rows, query, projectID, modelName); err != nil {
		return nil, fmt.Errorf("query project embeddings: %w", err)
	}
	return toRaw(rows), nil
}

func (r *Repository) GetByPhotos(ctx context.Context, photoIDs []int64, modelName string) ([]database.RawEmbedding, error) {
	if len(photoIDs) == 0 {
		return []database.RawEmbedding{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT e.id, e.photo_id, e.model_name, e.embedding
		FROM ai_image_embeddings e
		WHERE e.photo_id IN (?) AND e.model_name = ?
		ORDER BY e.id ASC
	`, photoIDs, modelName)
	if err != nil {
		return nil, fmt.Errorf("build photo embeddings query: %w", err)
	}

	var rows []embeddingRow
	if err := r.pool.db.SelectContext(ctx, &rows, r.pool.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query photo embeddings: %w", err)
	}
	return toRaw(rows), nil
}

func (r *Repository) CountByModel(ctx context.Context, modelName string) (int, error) {
	var count int
	if err := r.pool.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM ai_image_embeddings WHERE model_name = ?", modelName); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

func (r *Repository) DuplicateCount(ctx context.Context, modelName string) (int, error) {
	query := `
		SELECT CAST(COALESCE(SUM(n - 1), 0) AS SIGNED)
		FROM (
			SELECT COUNT(*) AS n
			FROM ai_image_embeddings
			WHERE model_name = ?
			GROUP BY photo_id
		) per_photo
	`
	var count int
	if err := r.pool.db.GetContext(ctx, &count, query, modelName); err != nil {
		return 0, fmt.Errorf("count duplicate embeddings: %w", err)
	}
	return count, nil
}

type photoRow struct {
	ID        int64          `db:"id"`
	ProjectID sql.NullInt64  `db:"project_id"`
	URL       sql.NullString `db:"url"`
}

func (row photoRow) photo() database.Photo {
	return database.Photo{ID: row.ID, ProjectID: row.ProjectID.Int64, Location: row.URL.String}
}

// GetPhoto returns the photo record or database.ErrNotFound.
func (r *Repository) GetPhoto(ctx context.Context, photoID int64) (*database.Photo, error) {
	var row photoRow
	err := r.pool.db.GetContext(ctx, &row, "SELECT id, project_id, url FROM photos WHERE id = ?", photoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query photo: %w", err)
	}
	p := row.photo()
	return &p, nil
}

// ListMissing returns photos without an embedding for the model, ordered by photo id.
func (r *Repository) ListMissing(ctx context.Context, modelName string, filter database.MissingFilter) ([]database.PendingPhoto, error) {
	var sb strings.Builder
	args := []any{modelName}

	sb.WriteString(`
		SELECT p.id, p.project_id, p.url
		FROM photos p
		WHERE NOT EXISTS (
			SELECT 1 FROM ai_image_embeddings e
			WHERE e.photo_id = p.id AND e.model_name = ?
		)`)
	if filter.ProjectID != 0 {
		sb.WriteString(" AND p.project_id = ?")
		args = append(args, filter.ProjectID)
	}
	sb.WriteString(" ORDER BY p.id ASC")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var rows []photoRow
	if err := r.pool.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("query photos missing embeddings: %w", err)
	}

	out := make([]database.PendingPhoto, len(rows))
	for i, row := range rows {
		out[i] = row.photo()
	}
	return out, nil
}
