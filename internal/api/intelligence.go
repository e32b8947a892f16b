package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/util"
)

// handleCompare builds an LLM comparison across 2-5 library papers.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	u := s.user(r)
	var req struct {
		PaperIDs []string `json:"paper_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if len(req.PaperIDs) < 2 || len(req.PaperIDs) > 5 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_ids must contain between 2 and 5 ids"))
		return
	}
	papers, err := s.paperRepo.ListByIDs(r.Context(), u.ID, req.PaperIDs)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if len(papers) < 2 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("fewer than two of the requested papers are in the library"))
		return
	}

	snippets := make([]string, 0, len(papers))
	for _, p := range papers {
		snippets = append(snippets, fmt.Sprintf("%s (%d): %s", p.Title, p.Year, util.DisplaySnippet(p.Abstract, 600)))
	}
	prompt := "Compare the following research papers. Cover: shared goals, " +
		"methodological differences, datasets or benchmarks, and which paper to " +
		"read first and why. Answer in short sections per theme."

	model := "extractive"
	resp, info, genErr := s.generate(r.Context(), u, "paper_compare", prompt, snippets)
	comparison := strings.TrimSpace(resp.Text)
	if genErr != nil || comparison == "" {
		comparison = "Comparison unavailable; provider did not respond. Paper summaries:\n" + strings.Join(snippets, "\n")
	} else {
		model = info.Model
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"papers":     papers,
		"comparison": comparison,
		"model":      model,
	})
}

func (s *Server) handleIntelligentScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/intelligent/")
	switch {
	case len(parts) == 1 && parts[0] == "search":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleIntelligentSearch(w, r)
	case len(parts) == 1 && parts[0] == "search-history":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleSearchHistory(w, r)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// handleIntelligentSearch lets the LLM rewrite a natural-language question
// into ArXiv query syntax before searching. The raw query is used verbatim
// when no provider responds.
func (s *Server) handleIntelligentSearch(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
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

	refined := req.Query
	prompt := "Rewrite this research question as one ArXiv search query. " +
		"Prefer field prefixes like ti:, abs:, cat: and boolean AND/OR when helpful. " +
		"Return ONLY the query string, nothing else.\n\nQuestion: " + req.Query
	if resp, _, err := s.generate(r.Context(), u, "intelligent_search_refine", prompt, nil); err == nil {
		if line := firstNonEmptyLine(resp.Text); line != "" {
			refined = line
		}
	}

	papers, err := s.arxiv.Search(r.Context(), refined, 0, limit, "relevance", "descending")
	if err != nil && refined != req.Query {
		// A malformed refinement should not sink the search.
		refined = req.Query
		papers, err = s.arxiv.Search(r.Context(), refined, 0, limit, "relevance", "descending")
	}
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	_ = s.activityRepo.RecordSearch(r.Context(), u.ID, req.Query, "intelligent", len(papers))
	writeJSON(w, http.StatusOK, map[string]any{
		"query":         req.Query,
		"refined_query": refined,
		"papers":        papers,
	})
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(queryInt(r, "limit", 20), 20, 100)
	rows, err := s.activityRepo.RecentSearches(r.Context(), s.user(r).ID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": rows, "total": len(rows)})
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(util.StripCodeFence(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
