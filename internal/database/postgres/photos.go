package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mamage/photo-similarity/internal/database"
)

// GetPhoto returns the photo record or database.ErrNotFound
func (r *Repository) GetPhoto(ctx context.Context, photoID int64) (*database.Photo, error) {
	var p database.Photo
	err := r.pool.QueryRow(ctx,
		"SELECT id, COALESCE(project_id, 0), COALESCE(url, '') FROM photos WHERE id = $1",
		photoID,
	).Scan(&p.ID, &p.ProjectID, &p.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query photo: %w", err)
	}
	return &p, nil
}

// ListMissing returns photos without an embedding for the model, ordered by photo id
func (r *Repository) ListMissing(ctx context.Context, modelName string, filter database.MissingFilter) ([]database.PendingPhoto, error) {
	var sb strings.Builder
	args := []any{modelName}

	sb.WriteString(`
		SELECT p.id, COALESCE(p.project_id, 0), COALESCE(p.url, '')
		FROM photos p
		WHERE NOT EXISTS (
			SELECT 1 FROM image_embeddings e
			WHERE e.photo_id = p.id AND e.model_name = $1
		)`)
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		fmt.Fprintf(&sb, " AND p.project_id = $%d", len(args))
	}
	sb.WriteString(" ORDER BY p.id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query photos missing embeddings: %w", err)
	}
	defer rows.Close()

	out := []database.PendingPhoto{}
	for rows.Next() {
		var p database.PendingPhoto
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Location); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return out, nil
}
