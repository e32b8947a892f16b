package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	stats, err := s.statsRepo.UserStats(r.Context(), s.user(r).ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDashboard aggregates the landing-page payload in one request.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	u := s.user(r)
	stats, err := s.statsRepo.UserStats(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := s.paperRepo.ListRecent(r.Context(), u.ID, 2)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	activity, err := s.activityRepo.Recent(r.Context(), u.ID, 10)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type dashboardInsight struct {
		PaperID string          `json:"paper_id"`
		Title   string          `json:"title"`
		Insight json.RawMessage `json:"insight"`
	}
	insights := make([]dashboardInsight, 0, len(recent))
	for _, p := range recent {
		entry := dashboardInsight{PaperID: p.ID, Title: p.Title}
		analyses, aErr := s.annotationRepo.ListByType(r.Context(), u.ID, p.ID, "ai_analysis")
		if aErr == nil && len(analyses) > 0 && json.Valid([]byte(analyses[0].Content)) {
			entry.Insight = json.RawMessage(analyses[0].Content)
		} else {
			canned, _ := json.Marshal(map[string]any{
				"summary":    fmt.Sprintf("\"%s\" is queued for analysis. Run /api/papers/%s/analyze to generate insights.", p.Title, p.ID),
				"key_points": []string{},
				"topics":     p.Topics,
			})
			entry.Insight = canned
		}
		insights = append(insights, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"quick_stats":     stats,
		"recent_papers":   recent,
		"ai_insights":     insights,
		"recent_activity": activity,
	})
}
