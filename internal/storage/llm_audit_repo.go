package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LLMCallRecord captures one outbound LLM or embedding call for the audit
// trail. UserID is nil for worker-side calls without a request user.
type LLMCallRecord struct {
	UserID      *uuid.UUID
	Provider    string
	Model       string
	Purpose     string
	PromptChars int
	OutputChars int
	DurationMS  int64
	Status      string
	Error       string
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls (user_id, provider, model, purpose, prompt_chars, output_chars, duration_ms, status, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`,
		rec.UserID, rec.Provider, rec.Model, rec.Purpose, rec.PromptChars, rec.OutputChars, rec.DurationMS, rec.Status, rec.Error)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
