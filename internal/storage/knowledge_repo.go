package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type KnowledgeBaseRepo struct {
	db *DB
}

func NewKnowledgeBaseRepo(db *DB) *KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

func (r *KnowledgeBaseRepo) Create(ctx context.Context, userID uuid.UUID, name, description string) (models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO knowledge_bases (user_id, name, description)
VALUES ($1, $2, $3)
RETURNING id, user_id, name, description, created_at, updated_at`,
		userID, name, description).
		Scan(&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return models.KnowledgeBase{}, fmt.Errorf("create knowledge base: %w", err)
	}
	return kb, nil
}

func (r *KnowledgeBaseRepo) Get(ctx context.Context, userID, kbID uuid.UUID) (models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, user_id, name, description, created_at, updated_at
FROM knowledge_bases WHERE id=$1 AND user_id=$2`, kbID, userID).
		Scan(&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return models.KnowledgeBase{}, fmt.Errorf("get knowledge base: %w", err)
	}
	return kb, nil
}

func (r *KnowledgeBaseRepo) List(ctx context.Context, userID uuid.UUID) ([]models.KnowledgeBase, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, user_id, name, description, created_at, updated_at
FROM knowledge_bases WHERE user_id=$1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	defer rows.Close()
	out := make([]models.KnowledgeBase, 0)
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge base: %w", err)
		}
		out = append(out, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge bases: %w", err)
	}
	return out, nil
}

// Update changes name and/or description; empty strings keep current values.
func (r *KnowledgeBaseRepo) Update(ctx context.Context, userID, kbID uuid.UUID, name, description string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE knowledge_bases SET
  name = COALESCE(NULLIF($3, ''), name),
  description = COALESCE(NULLIF($4, ''), description),
  updated_at = NOW()
WHERE id=$1 AND user_id=$2`, kbID, userID, name, description)
	if err != nil {
		return false, fmt.Errorf("update knowledge base: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *KnowledgeBaseRepo) Delete(ctx context.Context, userID, kbID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM knowledge_bases WHERE id=$1 AND user_id=$2`, kbID, userID)
	if err != nil {
		return false, fmt.Errorf("delete knowledge base: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *KnowledgeBaseRepo) AddPapers(ctx context.Context, userID, kbID uuid.UUID, paperIDs []string) error {
	if len(paperIDs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add kb papers: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, pid := range paperIDs {
		_, err := tx.Exec(ctx, `
INSERT INTO knowledge_base_papers (knowledge_base_id, paper_id, user_id)
VALUES ($1, $2, $3)
ON CONFLICT (knowledge_base_id, paper_id) DO NOTHING`, kbID, pid, userID)
		if err != nil {
			return fmt.Errorf("add paper %s to knowledge base: %w", pid, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE knowledge_bases SET updated_at=NOW() WHERE id=$1 AND user_id=$2`, kbID, userID); err != nil {
		return fmt.Errorf("touch knowledge base: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add kb papers: %w", err)
	}
	return nil
}

func (r *KnowledgeBaseRepo) RemovePaper(ctx context.Context, userID, kbID uuid.UUID, paperID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
DELETE FROM knowledge_base_papers
WHERE knowledge_base_id=$1 AND paper_id=$2 AND user_id=$3`, kbID, paperID, userID)
	if err != nil {
		return false, fmt.Errorf("remove kb paper: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *KnowledgeBaseRepo) SaveAnalysis(ctx context.Context, userID, kbID uuid.UUID, kind string, content json.RawMessage) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO knowledge_base_analyses (knowledge_base_id, user_id, kind, content)
VALUES ($1, $2, $3, $4)
RETURNING id`, kbID, userID, kind, content).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save kb analysis: %w", err)
	}
	return id, nil
}

func (r *KnowledgeBaseRepo) LatestAnalysis(ctx context.Context, userID, kbID uuid.UUID, kind string) (models.KnowledgeBaseAnalysis, error) {
	var a models.KnowledgeBaseAnalysis
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, knowledge_base_id, kind, content, created_at
FROM knowledge_base_analyses
WHERE knowledge_base_id=$1 AND user_id=$2 AND kind=$3
ORDER BY created_at DESC
LIMIT 1`, kbID, userID, kind).
		Scan(&a.ID, &a.KnowledgeBaseID, &a.Kind, &a.Content, &a.CreatedAt)
	if err != nil {
		return models.KnowledgeBaseAnalysis{}, fmt.Errorf("latest kb analysis: %w", err)
	}
	return a, nil
}

func (r *KnowledgeBaseRepo) ListAnalyses(ctx context.Context, userID, kbID uuid.UUID) ([]models.KnowledgeBaseAnalysis, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, knowledge_base_id, kind, content, created_at
FROM knowledge_base_analyses
WHERE knowledge_base_id=$1 AND user_id=$2
ORDER BY created_at DESC`, kbID, userID)
	if err != nil {
		return nil, fmt.Errorf("list kb analyses: %w", err)
	}
	defer rows.Close()
	out := make([]models.KnowledgeBaseAnalysis, 0)
	for rows.Next() {
		var a models.KnowledgeBaseAnalysis
		if err := rows.Scan(&a.ID, &a.KnowledgeBaseID, &a.Kind, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan kb analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb analyses: %w", err)
	}
	return out, nil
}

// PaperIDs returns the ids of papers in the knowledge base, newest first.
func (r *KnowledgeBaseRepo) PaperIDs(ctx context.Context, userID, kbID uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id FROM knowledge_base_papers
WHERE knowledge_base_id=$1 AND user_id=$2
ORDER BY added_at DESC`, kbID, userID)
	if err != nil {
		return nil, fmt.Errorf("list kb paper ids: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan kb paper id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb paper ids: %w", err)
	}
	return out, nil
}

// ListIDs returns every knowledge base id for the user (backfill runs).
func (r *KnowledgeBaseRepo) ListIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id FROM knowledge_bases WHERE user_id=$1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list kb ids: %w", err)
	}
	defer rows.Close()
	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan kb id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb ids: %w", err)
	}
	return out, nil
}
