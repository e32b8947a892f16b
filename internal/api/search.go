package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/storage"
)

// handleSearch runs the enhanced_paper_search procedure with optional
// year/impact/topic filters.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	u := s.user(r)
	var req struct {
		Query  string   `json:"query"`
		Year   int      `json:"year"`
		Impact string   `json:"impact"`
		Topics []string `json:"topics"`
		Limit  int      `json:"limit"`
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
	papers, err := s.statsRepo.EnhancedPaperSearch(r.Context(), u.ID, req.Query, storage.PaperSearchFilters{
		Year:   req.Year,
		Impact: req.Impact,
		Topics: req.Topics,
		Limit:  clampLimit(req.Limit, 20, 50),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.activityRepo.RecordSearch(r.Context(), u.ID, req.Query, "papers", len(papers))
	writeJSON(w, http.StatusOK, map[string]any{
		"results": papers,
		"total":   len(papers),
		"query":   req.Query,
	})
}

func (s *Server) handleSearchScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/search/")
	if len(parts) != 1 || parts[0] != "quick" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	u := s.user(r)
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}
	limit := clampLimit(queryInt(r, "limit", 20), 20, 50)
	hits, err := s.statsRepo.SearchUserContent(r.Context(), u.ID, q, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	grouped := map[string][]models.ContentHit{}
	for _, h := range hits {
		grouped[h.ResultType] = append(grouped[h.ResultType], h)
	}
	_ = s.activityRepo.RecordSearch(r.Context(), u.ID, q, "quick", len(hits))
	writeJSON(w, http.StatusOK, map[string]any{
		"results": grouped,
		"total":   len(hits),
		"query":   q,
	})
}
