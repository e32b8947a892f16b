package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/vector"
	"github.com/MetaHackathon/DataEngineX/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

func (s *Server) handleRAGScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/rag/")
	if len(parts) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "index":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGIndex(w, r)
	case len(parts) == 3 && parts[0] == "index" && parts[2] == "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGProgress(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "search":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGSearch(w, r)
	case len(parts) == 1 && parts[0] == "papers":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGPapers(w, r)
	case len(parts) == 1 && parts[0] == "stats":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGStats(w, r)
	case len(parts) == 1 && parts[0] == "backfill":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleRAGBackfill(w, r)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleRAGIndex(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	var req struct {
		PaperID string `json:"paper_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_id is required"))
		return
	}
	if _, err := s.paperRepo.GetByID(r.Context(), u.ID, req.PaperID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	we, err := s.startIngest(r.Context(), u, req.PaperID)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

type paperGetter interface {
	GetByID(ctx context.Context, userID uuid.UUID, paperID string) (models.Paper, error)
}

type chunkCounter interface {
	CountByPaper(ctx context.Context, userID uuid.UUID) (map[string]int, error)
}

type ingestQuerier interface {
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// ragProgress reports ingest progress for one of the caller's papers. The
// ownership lookup runs first: workflow ids are keyed on the shared arXiv
// id, so querying the run before the check would expose another user's
// ingest state.
func ragProgress(ctx context.Context, papers paperGetter, chunks chunkCounter, tc ingestQuerier, userID uuid.UUID, paperID string) (workflows.IngestStatus, int, error) {
	p, err := papers.GetByID(ctx, userID, paperID)
	if err != nil {
		return workflows.IngestStatus{}, http.StatusNotFound, err
	}
	if resp, qErr := tc.QueryWorkflow(ctx, workflows.IngestWorkflowID(paperID), "", workflows.QueryGetIngestStatus); qErr == nil {
		var status workflows.IngestStatus
		if err := resp.Get(&status); err != nil {
			return workflows.IngestStatus{}, http.StatusInternalServerError, err
		}
		return status, http.StatusOK, nil
	}

	// No live workflow to query; report from stored state.
	counts, err := chunks.CountByPaper(ctx, userID)
	if err != nil {
		return workflows.IngestStatus{}, http.StatusInternalServerError, err
	}
	return workflows.IngestStatus{
		PaperID:    paperID,
		Status:     p.Status,
		ChunkCount: counts[paperID],
	}, http.StatusOK, nil
}

func (s *Server) handleRAGProgress(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	status, code, err := ragProgress(r.Context(), s.paperRepo, s.chunkRepo, s.temporal, u.ID, paperID)
	if err != nil {
		writeErr(w, code, err)
		return
	}
	writeJSON(w, code, status)
}

func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	var req struct {
		Query    string   `json:"query"`
		PaperIDs []string `json:"paper_ids"`
		Limit    int      `json:"limit"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	limit := clampLimit(req.Limit, 10, 50)

	results, err := s.searchChunks(r, req.Query, req.PaperIDs, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.activityRepo.RecordSearch(r.Context(), u.ID, req.Query, "rag", len(results))
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
		"query":   req.Query,
	})
}

func (s *Server) handleRAGPapers(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	papers, err := s.paperRepo.ListByUser(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	counts, err := s.chunkRepo.CountByPaper(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	type indexedPaper struct {
		models.Paper
		ChunkCount int `json:"chunk_count"`
	}
	out := make([]indexedPaper, 0, len(papers))
	for _, p := range papers {
		if counts[p.ID] == 0 {
			continue
		}
		out = append(out, indexedPaper{Paper: p, ChunkCount: counts[p.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": out, "total": len(out)})
}

func (s *Server) handleRAGStats(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	total, embedded, err := s.chunkRepo.Totals(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	byStatus, err := s.paperRepo.StatusCounts(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	papers := 0
	for _, n := range byStatus {
		papers += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_papers":     papers,
		"papers_by_status": byStatus,
		"total_chunks":     total,
		"embedded_chunks":  embedded,
	})
}

func (s *Server) handleRAGBackfill(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	mode := strings.ToUpper(strings.TrimSpace(req.Mode))
	switch mode {
	case "RETRY_FAILED_PAPERS", "REEMBED_ALL_CHUNKS", "REGENERATE_KB_ANALYSES":
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unsupported backfill mode: %s", req.Mode))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       fmt.Sprintf("backfill-%s-%d", strings.ToLower(mode), time.Now().Unix()),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BackfillWorkflow, workflows.BackfillInput{
		UserID:          u.ID.String(),
		Mode:            mode,
		EmbedVersion:    s.cfg.EmbedVersion,
		EmbedBatchSize:  s.cfg.EmbedBatchSize,
		EmbedProviders:  s.providers.EmbedCount(),
		LLMProviders:    s.providers.LLMCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
		MaxChildren:     s.cfg.BackfillMaxChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

// searchChunks runs vector retrieval when an embedding provider is up and
// degrades to ILIKE matching otherwise.
func (s *Server) searchChunks(r *http.Request, query string, paperIDs []string, limit int) ([]models.ChunkResult, error) {
	u := s.user(r)
	vec, _, err := s.embedQuery(r.Context(), "rag_query_embed", query)
	if err == nil {
		results, sErr := s.searcher.SearchChunks(r.Context(), u.ID, vec, limit, vector.SearchFilters{PaperIDs: paperIDs})
		if sErr == nil {
			return results, nil
		}
		return nil, sErr
	}
	return s.chunkRepo.SearchILike(r.Context(), u.ID, query, paperIDs, limit)
}
