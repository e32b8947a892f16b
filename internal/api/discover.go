package api

import (
	"fmt"
	"net/http"
	"strings"
)

var sortFields = map[string]string{
	"relevance": "relevance",
	"date":      "lastUpdatedDate",
	"submitted": "submittedDate",
}

var sortOrders = map[string]string{
	"desc": "descending",
	"asc":  "ascending",
}

// handleDiscover proxies ArXiv search. Responses are bare paper arrays so
// clients can consume them without unwrapping.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}
	start := queryInt(r, "start", 0)
	if start < 0 {
		start = 0
	}
	limit := clampLimit(queryInt(r, "limit", 10), 10, 50)
	sortBy, ok := sortFields[strings.ToLower(r.URL.Query().Get("sort"))]
	if !ok {
		sortBy = "relevance"
	}
	order, ok := sortOrders[strings.ToLower(r.URL.Query().Get("order"))]
	if !ok {
		order = "descending"
	}

	papers, err := s.arxiv.Search(r.Context(), q, start, limit, sortBy, order)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	_ = s.activityRepo.RecordSearch(r.Context(), s.user(r).ID, q, "discover", len(papers))
	writeJSON(w, http.StatusOK, papers)
}

func (s *Server) handleDiscoverScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/discover/")
	if len(parts) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "trending":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		limit := clampLimit(queryInt(r, "limit", 20), 20, 50)
		papers, err := s.arxiv.Trending(r.Context(), limit)
		if err != nil {
			writeErr(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, papers)
	case len(parts) == 1 && parts[0] == "recommended":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		limit := clampLimit(queryInt(r, "limit", 15), 15, 50)
		papers, err := s.arxiv.Recommended(r.Context(), limit)
		if err != nil {
			writeErr(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, papers)
	case len(parts) == 2 && parts[0] == "category":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		limit := clampLimit(queryInt(r, "limit", 20), 20, 50)
		papers, err := s.arxiv.ByCategory(r.Context(), parts[1], limit)
		if err != nil {
			writeErr(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, papers)
	case len(parts) == 2 && parts[0] == "save":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleDiscoverSave(w, r, parts[1])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// handleDiscoverSave looks a paper up on ArXiv, stores it for the current
// user, and kicks off ingestion.
func (s *Server) handleDiscoverSave(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	paper, err := s.arxiv.ByID(r.Context(), paperID)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	if paper == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("paper %s not found on arxiv", paperID))
		return
	}

	paper.Source = "arxiv"
	paper.Status = "pending"
	if err := s.paperRepo.Upsert(r.Context(), u.ID, *paper); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.startIngest(r.Context(), u, paper.ID); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	_, _ = s.activityRepo.Log(r.Context(), u.ID, "paper_saved", map[string]any{
		"paper_id": paper.ID,
		"title":    paper.Title,
		"source":   "arxiv",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id": paper.ID,
		"status":   "pending",
		"message":  "Paper saved, processing started",
	})
}
