package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type ChunkRecord struct {
	ChunkID          string
	PaperID          string
	UserID           uuid.UUID
	ChunkIndex       int
	Content          string
	PageNumber       int
	Section          string
	BBox             json.RawMessage
	EmbeddingVersion string
	Embedding        []float32
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks swaps a paper's chunk set in one transaction. Re-indexing a
// paper replaces whatever a previous run stored.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, userID uuid.UUID, paperID string, chunks []ChunkRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`DELETE FROM paper_chunks WHERE paper_id=$1 AND user_id=$2`, paperID, userID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, c := range chunks {
		var emb any
		if len(c.Embedding) > 0 {
			emb = pgvector.NewVector(c.Embedding)
		}
		_, err := tx.Exec(ctx, `
INSERT INTO paper_chunks (id, paper_id, user_id, chunk_index, content, page_number, section, bbox, embedding, embedding_version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id)
DO UPDATE SET
  content = EXCLUDED.content,
  page_number = EXCLUDED.page_number,
  section = EXCLUDED.section,
  bbox = EXCLUDED.bbox,
  embedding = COALESCE(EXCLUDED.embedding, paper_chunks.embedding),
  embedding_version = EXCLUDED.embedding_version`,
			c.ChunkID, paperID, userID, c.ChunkIndex, c.Content, c.PageNumber, c.Section, c.BBox, emb, c.EmbeddingVersion,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

// UpdateEmbeddings rewrites embeddings in place (re-embed backfill).
func (r *ChunkRepo) UpdateEmbeddings(ctx context.Context, userID uuid.UUID, chunkIDs []string, embeddings [][]float32, version string) error {
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("update embeddings: %d ids for %d vectors", len(chunkIDs), len(embeddings))
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx update embeddings: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for i, id := range chunkIDs {
		_, err := tx.Exec(ctx, `
UPDATE paper_chunks SET embedding=$3, embedding_version=$4 WHERE id=$1 AND user_id=$2`,
			id, userID, pgvector.NewVector(embeddings[i]), version)
		if err != nil {
			return fmt.Errorf("update embedding %s: %w", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit embeddings tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListByPaper(ctx context.Context, userID uuid.UUID, paperID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, paper_id, chunk_index, content, page_number, section, bbox, embedding_version, created_at
FROM paper_chunks
WHERE paper_id=$1 AND user_id=$2
ORDER BY chunk_index ASC`, paperID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by paper: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.PaperID, &c.ChunkIndex, &c.Content, &c.PageNumber, &c.Section, &c.BBox, &c.EmbeddingVersion, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk by paper: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk by paper: %w", err)
	}
	return out, nil
}

// ListEmbeddings returns the stored vectors for one paper, in chunk order.
// Chunks without an embedding are skipped.
func (r *ChunkRepo) ListEmbeddings(ctx context.Context, userID uuid.UUID, paperID string) ([][]float32, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT embedding
FROM paper_chunks
WHERE paper_id=$1 AND user_id=$2 AND embedding IS NOT NULL
ORDER BY chunk_index ASC`, paperID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunk embeddings: %w", err)
	}
	defer rows.Close()
	out := make([][]float32, 0, 64)
	for rows.Next() {
		var v pgvector.Vector
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan chunk embedding: %w", err)
		}
		out = append(out, v.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk embeddings: %w", err)
	}
	return out, nil
}

// ListTexts returns id/content pairs for every chunk the user owns, oldest
// first, for re-embedding runs.
func (r *ChunkRepo) ListTexts(ctx context.Context, userID uuid.UUID) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, paper_id, chunk_index, content
FROM paper_chunks
WHERE user_id=$1
ORDER BY created_at ASC, chunk_index ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunk texts: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 256)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.PaperID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk text: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk texts: %w", err)
	}
	return out, nil
}

// searchILikeSQL builds the fallback search statement. The paper filter is
// only rendered when ids are present: a nil slice binds as SQL NULL, and
// ANY(NULL) would exclude every row.
func searchILikeSQL(userID uuid.UUID, query string, paperIDs []string, limit int) (string, []any) {
	args := []any{userID, query}
	filter := ""
	if len(paperIDs) > 0 {
		filter = fmt.Sprintf("\n  AND c.paper_id = ANY($%d)", len(args)+1)
		args = append(args, paperIDs)
	}
	args = append(args, limit)
	sql := fmt.Sprintf(`
SELECT c.id, c.paper_id, c.chunk_index, c.content, c.page_number, c.section, p.title
FROM paper_chunks c
JOIN papers p ON p.id = c.paper_id AND p.user_id = c.user_id
WHERE c.user_id=$1
  AND c.content ILIKE '%%' || $2 || '%%'%s
ORDER BY c.created_at DESC, c.chunk_index ASC
LIMIT $%d`, filter, len(args))
	return sql, args
}

// SearchILike is the non-vector fallback search. Relevance decays by result
// position the way the original chunk search scored hits.
func (r *ChunkRepo) SearchILike(ctx context.Context, userID uuid.UUID, query string, paperIDs []string, limit int) ([]models.ChunkResult, error) {
	if limit <= 0 {
		limit = 10
	}
	sql, args := searchILikeSQL(userID, query, paperIDs, limit)
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()
	out := make([]models.ChunkResult, 0, limit)
	for rows.Next() {
		var res models.ChunkResult
		if err := rows.Scan(&res.ID, &res.PaperID, &res.ChunkIndex, &res.Content, &res.PageNumber, &res.Section, &res.Title); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		res.Score = 0.9 - 0.1*float64(len(out))
		if res.Score < 0 {
			res.Score = 0
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk hits: %w", err)
	}
	return out, nil
}

// CountByPaper returns chunk totals keyed by paper id.
func (r *ChunkRepo) CountByPaper(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT paper_id, count(*) FROM paper_chunks WHERE user_id=$1 GROUP BY paper_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var paperID string
		var n int
		if err := rows.Scan(&paperID, &n); err != nil {
			return nil, fmt.Errorf("scan chunk count: %w", err)
		}
		out[paperID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk counts: %w", err)
	}
	return out, nil
}

// Totals returns overall and embedded chunk counts for the user.
func (r *ChunkRepo) Totals(ctx context.Context, userID uuid.UUID) (total int, embedded int, err error) {
	err = r.db.Pool.QueryRow(ctx, `
SELECT count(*), count(embedding) FROM paper_chunks WHERE user_id=$1`, userID).
		Scan(&total, &embedded)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk totals: %w", err)
	}
	return total, embedded, nil
}
