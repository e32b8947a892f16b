package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type AnnotationRepo struct {
	db *DB
}

func NewAnnotationRepo(db *DB) *AnnotationRepo {
	return &AnnotationRepo{db: db}
}

type AnnotationInput struct {
	PaperID     string
	HighlightID *uuid.UUID
	Content     string
	Type        string
	PageNumber  int
	Position    json.RawMessage
}

func (r *AnnotationRepo) Create(ctx context.Context, userID uuid.UUID, in AnnotationInput) (models.Annotation, error) {
	var a models.Annotation
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO annotations (paper_id, user_id, highlight_id, content, annotation_type, page_number, position)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'note'), $6, $7)
RETURNING id, paper_id, user_id, highlight_id, content, annotation_type, page_number, position, created_at, updated_at`,
		in.PaperID, userID, in.HighlightID, in.Content, in.Type, in.PageNumber, in.Position).
		Scan(&a.ID, &a.PaperID, &a.UserID, &a.HighlightID, &a.Content, &a.Type, &a.PageNumber, &a.Position, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}
	return a, nil
}

func (r *AnnotationRepo) ListByPaper(ctx context.Context, userID uuid.UUID, paperID string) ([]models.Annotation, error) {
	return r.list(ctx, `
SELECT id, paper_id, user_id, highlight_id, content, annotation_type, page_number, position, created_at, updated_at
FROM annotations
WHERE paper_id=$1 AND user_id=$2
ORDER BY created_at ASC`, paperID, userID)
}

func (r *AnnotationRepo) ListByType(ctx context.Context, userID uuid.UUID, paperID, annotationType string) ([]models.Annotation, error) {
	return r.list(ctx, `
SELECT id, paper_id, user_id, highlight_id, content, annotation_type, page_number, position, created_at, updated_at
FROM annotations
WHERE paper_id=$1 AND user_id=$2 AND annotation_type=$3
ORDER BY created_at DESC`, paperID, userID, annotationType)
}

func (r *AnnotationRepo) list(ctx context.Context, sql string, args ...any) ([]models.Annotation, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Annotation, 0)
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.PaperID, &a.UserID, &a.HighlightID, &a.Content, &a.Type, &a.PageNumber, &a.Position, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return out, nil
}

func (r *AnnotationRepo) Update(ctx context.Context, userID, annotationID uuid.UUID, content string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE annotations SET content=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		annotationID, userID, content)
	if err != nil {
		return false, fmt.Errorf("update annotation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AnnotationRepo) Delete(ctx context.Context, userID, annotationID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM annotations WHERE id=$1 AND user_id=$2`, annotationID, userID)
	if err != nil {
		return false, fmt.Errorf("delete annotation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
