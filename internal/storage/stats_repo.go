package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

// StatsRepo fronts the SQL functions that own all aggregation logic. Nothing
// here re-implements a count or a ranking in Go.
type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

func (r *StatsRepo) UserStats(ctx context.Context, userID uuid.UUID) (models.UserStats, error) {
	var s models.UserStats
	err := r.db.Pool.QueryRow(ctx,
		`SELECT * FROM get_user_stats($1)`, userID).
		Scan(&s.TotalPapers, &s.TotalChunks, &s.ProcessedPapers, &s.TotalHighlights,
			&s.TotalAnnotations, &s.TotalKnowledgeBases, &s.TotalChatSessions, &s.RecentActivityCount)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("get user stats: %w", err)
	}
	return s, nil
}

func (r *StatsRepo) SearchUserContent(ctx context.Context, userID uuid.UUID, query string, limit int) ([]models.ContentHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT * FROM search_user_content($1, $2, $3)`, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search user content: %w", err)
	}
	defer rows.Close()
	out := make([]models.ContentHit, 0, limit)
	for rows.Next() {
		var h models.ContentHit
		if err := rows.Scan(&h.ResultType, &h.ResultID, &h.PaperID, &h.Title, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan content hit: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content hits: %w", err)
	}
	return out, nil
}

type PaperSearchFilters struct {
	Year   int
	Impact string
	Topics []string
	Limit  int
}

// EnhancedPaperSearch runs library search with optional filters. A zero Year
// and empty Impact/Topics mean no filtering on that dimension.
func (r *StatsRepo) EnhancedPaperSearch(ctx context.Context, userID uuid.UUID, query string, f PaperSearchFilters) ([]models.Paper, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var year *int
	if f.Year > 0 {
		year = &f.Year
	}
	var topics []string
	if len(f.Topics) > 0 {
		topics = f.Topics
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT * FROM enhanced_paper_search($1, $2, $3, $4, $5, $6)`,
		userID, query, year, f.Impact, topics, limit)
	if err != nil {
		return nil, fmt.Errorf("enhanced paper search: %w", err)
	}
	defer rows.Close()
	out := make([]models.Paper, 0, limit)
	for rows.Next() {
		var p models.Paper
		var yearVal *int
		var rank float64
		if err := rows.Scan(&p.ID, &p.Title, &p.Authors, &p.Abstract, &yearVal, &p.Topics,
			&p.URL, &p.Impact, &p.Citations, &p.Status, &p.CreatedAt, &rank); err != nil {
			return nil, fmt.Errorf("scan paper hit: %w", err)
		}
		if yearVal != nil {
			p.Year = *yearVal
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper hits: %w", err)
	}
	return out, nil
}

func (r *StatsRepo) KnowledgeBaseStats(ctx context.Context, userID uuid.UUID) ([]models.KnowledgeBaseStats, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT * FROM get_knowledge_base_stats($1)`, userID)
	if err != nil {
		return nil, fmt.Errorf("get knowledge base stats: %w", err)
	}
	defer rows.Close()
	out := make([]models.KnowledgeBaseStats, 0)
	for rows.Next() {
		var s models.KnowledgeBaseStats
		if err := rows.Scan(&s.ID, &s.Name, &s.PaperCount, &s.ChunkCount, &s.LastAnalysisAt); err != nil {
			return nil, fmt.Errorf("scan kb stats: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb stats: %w", err)
	}
	return out, nil
}

type KnowledgeBasePaper struct {
	models.Paper
	AddedAt time.Time `json:"added_at"`
}

func (r *StatsRepo) KnowledgeBasePapers(ctx context.Context, userID, kbID uuid.UUID) ([]KnowledgeBasePaper, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT * FROM get_knowledge_base_papers($1, $2)`, kbID, userID)
	if err != nil {
		return nil, fmt.Errorf("get knowledge base papers: %w", err)
	}
	defer rows.Close()
	out := make([]KnowledgeBasePaper, 0)
	for rows.Next() {
		var p KnowledgeBasePaper
		var yearVal *int
		if err := rows.Scan(&p.ID, &p.Title, &p.Authors, &p.Abstract, &yearVal, &p.Topics, &p.URL,
			&p.Impact, &p.Status, &p.AddedAt); err != nil {
			return nil, fmt.Errorf("scan kb paper: %w", err)
		}
		if yearVal != nil {
			p.Year = *yearVal
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb papers: %w", err)
	}
	return out, nil
}
