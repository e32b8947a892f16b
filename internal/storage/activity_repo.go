package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type ActivityRepo struct {
	db *DB
}

func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Log records an activity event through the log_user_activity function so
// the write path matches what reporting queries expect.
func (r *ActivityRepo) Log(ctx context.Context, userID uuid.UUID, activityType string, data map[string]any) (uuid.UUID, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal activity data: %w", err)
	}
	var id uuid.UUID
	err = r.db.Pool.QueryRow(ctx,
		`SELECT log_user_activity($1, $2, $3::jsonb)`, userID, activityType, string(payload)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("log user activity: %w", err)
	}
	return id, nil
}

func (r *ActivityRepo) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, activity_type, activity_data, created_at
FROM user_activity
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	defer rows.Close()
	out := make([]models.ActivityEvent, 0, limit)
	for rows.Next() {
		var ev models.ActivityEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}

func (r *ActivityRepo) RecordSearch(ctx context.Context, userID uuid.UUID, query, searchType string, resultsCount int) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO search_history (user_id, query, search_type, results_count)
VALUES ($1, $2, $3, $4)`, userID, query, searchType, resultsCount)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (r *ActivityRepo) RecentSearches(ctx context.Context, userID uuid.UUID, limit int) ([]models.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, query, search_type, results_count, created_at
FROM search_history
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	defer rows.Close()
	out := make([]models.SearchRecord, 0, limit)
	for rows.Next() {
		var rec models.SearchRecord
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.SearchType, &rec.ResultsCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history: %w", err)
	}
	return out, nil
}

func (r *ActivityRepo) RecordView(ctx context.Context, userID uuid.UUID, paperID string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO document_views (user_id, paper_id) VALUES ($1, $2)`, userID, paperID)
	if err != nil {
		return fmt.Errorf("record document view: %w", err)
	}
	return nil
}

func (r *ActivityRepo) ViewCount(ctx context.Context, userID uuid.UUID, paperID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM document_views WHERE paper_id=$1 AND user_id=$2`, paperID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count document views: %w", err)
	}
	return n, nil
}
