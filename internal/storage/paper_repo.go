package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

const paperColumns = `id, title, authors, abstract, COALESCE(year, 0), topics, url, pdf_path,
       source, processing_status, impact, citations, institution, created_at, updated_at`

// Upsert inserts or refreshes a paper. Empty incoming fields leave the stored
// value untouched; pass an empty status to keep the current one.
func (r *PaperRepo) Upsert(ctx context.Context, userID uuid.UUID, p models.Paper) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO papers (id, user_id, title, authors, abstract, year, topics, url, pdf_path, source, processing_status, impact, citations, institution)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $8, $9, COALESCE(NULLIF($10,''), 'upload'), COALESCE(NULLIF($11,''), 'pending'), COALESCE(NULLIF($12,''), 'low'), $13, $14)
ON CONFLICT (id, user_id)
DO UPDATE SET
  title = COALESCE(NULLIF(EXCLUDED.title, ''), papers.title),
  authors = COALESCE(NULLIF(EXCLUDED.authors, '{}'::text[]), papers.authors),
  abstract = COALESCE(NULLIF(EXCLUDED.abstract, ''), papers.abstract),
  year = COALESCE(EXCLUDED.year, papers.year),
  topics = COALESCE(NULLIF(EXCLUDED.topics, '{}'::text[]), papers.topics),
  url = COALESCE(NULLIF(EXCLUDED.url, ''), papers.url),
  pdf_path = COALESCE(NULLIF(EXCLUDED.pdf_path, ''), papers.pdf_path),
  processing_status = COALESCE(NULLIF($11, ''), papers.processing_status),
  impact = COALESCE(NULLIF(EXCLUDED.impact, ''), papers.impact),
  citations = GREATEST(EXCLUDED.citations, papers.citations),
  institution = COALESCE(EXCLUDED.institution, papers.institution),
  updated_at = NOW()`,
		p.ID, userID, p.Title, p.Authors, p.Abstract, p.Year, p.Topics, p.URL, p.PDFPath,
		p.Source, p.Status, p.Impact, p.Citations, p.Institution,
	)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	return nil
}

func (r *PaperRepo) UpdateStatus(ctx context.Context, userID uuid.UUID, paperID, status string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE papers SET processing_status=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		paperID, userID, status)
	if err != nil {
		return fmt.Errorf("update paper status: %w", err)
	}
	return nil
}

func (r *PaperRepo) SetPDFPath(ctx context.Context, userID uuid.UUID, paperID, path string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE papers SET pdf_path=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		paperID, userID, path)
	if err != nil {
		return fmt.Errorf("set paper pdf path: %w", err)
	}
	return nil
}

func (r *PaperRepo) GetByID(ctx context.Context, userID uuid.UUID, paperID string) (models.Paper, error) {
	var p models.Paper
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id=$1 AND user_id=$2`,
		paperID, userID).
		Scan(&p.ID, &p.Title, &p.Authors, &p.Abstract, &p.Year, &p.Topics, &p.URL, &p.PDFPath,
			&p.Source, &p.Status, &p.Impact, &p.Citations, &p.Institution, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Paper{}, fmt.Errorf("get paper by id: %w", err)
	}
	return p, nil
}

func (r *PaperRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Paper, error) {
	return r.list(ctx, `
SELECT `+paperColumns+` FROM papers WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *PaperRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Paper, error) {
	return r.list(ctx, `
SELECT `+paperColumns+` FROM papers WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (r *PaperRepo) ListFailed(ctx context.Context, userID uuid.UUID) ([]models.Paper, error) {
	return r.list(ctx, `
SELECT `+paperColumns+` FROM papers WHERE user_id=$1 AND processing_status='failed' ORDER BY updated_at DESC`, userID)
}

func (r *PaperRepo) ListByIDs(ctx context.Context, userID uuid.UUID, paperIDs []string) ([]models.Paper, error) {
	if len(paperIDs) == 0 {
		return []models.Paper{}, nil
	}
	return r.list(ctx, `
SELECT `+paperColumns+` FROM papers WHERE user_id=$1 AND id = ANY($2) ORDER BY created_at DESC`, userID, paperIDs)
}

func (r *PaperRepo) list(ctx context.Context, sql string, args ...any) ([]models.Paper, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0)
	for rows.Next() {
		var p models.Paper
		if err := rows.Scan(&p.ID, &p.Title, &p.Authors, &p.Abstract, &p.Year, &p.Topics, &p.URL, &p.PDFPath,
			&p.Source, &p.Status, &p.Impact, &p.Citations, &p.Institution, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

// Delete removes the paper and everything cascading from it. Returns false
// when the user owns no such paper.
func (r *PaperRepo) Delete(ctx context.Context, userID uuid.UUID, paperID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM papers WHERE id=$1 AND user_id=$2`, paperID, userID)
	if err != nil {
		return false, fmt.Errorf("delete paper: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PaperRepo) StatusCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT processing_status, count(*) FROM papers WHERE user_id=$1 GROUP BY processing_status`, userID)
	if err != nil {
		return nil, fmt.Errorf("count paper statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}
