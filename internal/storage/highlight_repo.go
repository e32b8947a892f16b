package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type HighlightRepo struct {
	db *DB
}

func NewHighlightRepo(db *DB) *HighlightRepo {
	return &HighlightRepo{db: db}
}

func (r *HighlightRepo) Create(ctx context.Context, userID uuid.UUID, paperID, content string, pageNumber int, position json.RawMessage, color string) (models.Highlight, error) {
	var h models.Highlight
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO highlights (paper_id, user_id, content, page_number, position, color)
VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, ''), 'yellow'))
RETURNING id, paper_id, user_id, content, page_number, position, color, created_at`,
		paperID, userID, content, pageNumber, position, color).
		Scan(&h.ID, &h.PaperID, &h.UserID, &h.Content, &h.PageNumber, &h.Position, &h.Color, &h.CreatedAt)
	if err != nil {
		return models.Highlight{}, fmt.Errorf("create highlight: %w", err)
	}
	return h, nil
}

func (r *HighlightRepo) ListByPaper(ctx context.Context, userID uuid.UUID, paperID string) ([]models.Highlight, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, paper_id, user_id, content, page_number, position, color, created_at
FROM highlights
WHERE paper_id=$1 AND user_id=$2
ORDER BY page_number ASC, created_at ASC`, paperID, userID)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()
	out := make([]models.Highlight, 0)
	for rows.Next() {
		var h models.Highlight
		if err := rows.Scan(&h.ID, &h.PaperID, &h.UserID, &h.Content, &h.PageNumber, &h.Position, &h.Color, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate highlights: %w", err)
	}
	return out, nil
}

func (r *HighlightRepo) Update(ctx context.Context, userID, highlightID uuid.UUID, content, color string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE highlights SET
  content = COALESCE(NULLIF($3, ''), content),
  color = COALESCE(NULLIF($4, ''), color)
WHERE id=$1 AND user_id=$2`, highlightID, userID, content, color)
	if err != nil {
		return false, fmt.Errorf("update highlight: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *HighlightRepo) Delete(ctx context.Context, userID, highlightID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM highlights WHERE id=$1 AND user_id=$2`, highlightID, userID)
	if err != nil {
		return false, fmt.Errorf("delete highlight: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
