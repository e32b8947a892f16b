package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type SearchFilters struct {
	PaperIDs         []string
	EmbeddingVersion string
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchChunks ranks the user's embedded chunks by cosine similarity to the
// query vector.
func (s *Searcher) SearchChunks(ctx context.Context, userID uuid.UUID, queryVec []float32, topK int, filters SearchFilters) ([]models.ChunkResult, error) {
	if topK <= 0 {
		topK = 8
	}
	vec := pgvector.NewVector(queryVec)
	args := []any{userID, vec, topK}

	filterSQL := ""
	if len(filters.PaperIDs) > 0 {
		filterSQL += fmt.Sprintf(" AND c.paper_id = ANY($%d)", len(args)+1)
		args = append(args, filters.PaperIDs)
	}
	if strings.TrimSpace(filters.EmbeddingVersion) != "" {
		filterSQL += fmt.Sprintf(" AND c.embedding_version = $%d", len(args)+1)
		args = append(args, filters.EmbeddingVersion)
	}

	query := `
SELECT c.id,
       c.paper_id,
       c.chunk_index,
       LEFT(c.content, 1200) AS content,
       c.page_number,
       c.section,
       p.title,
       1 - (c.embedding <=> $2) AS score
FROM paper_chunks c
JOIN papers p ON p.id = c.paper_id AND p.user_id = c.user_id
WHERE c.user_id = $1
  AND c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $2
LIMIT $3`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkResult, 0, topK)
	for rows.Next() {
		var r models.ChunkResult
		if err := rows.Scan(&r.ID, &r.PaperID, &r.ChunkIndex, &r.Content, &r.PageNumber, &r.Section, &r.Title, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}
