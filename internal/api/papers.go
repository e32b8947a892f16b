package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/storage"
	"github.com/MetaHackathon/DataEngineX/internal/util"
	"github.com/MetaHackathon/DataEngineX/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

func (s *Server) handlePapersScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/papers/")
	if len(parts) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	paperID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handlePaperDetail(w, r, paperID)
		return
	}

	switch parts[1] {
	case "highlights":
		switch r.Method {
		case http.MethodPost:
			s.handleCreateHighlight(w, r, paperID)
		case http.MethodGet:
			s.handleListHighlights(w, r, paperID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case "annotations":
		switch r.Method {
		case http.MethodPost:
			s.handleCreateAnnotation(w, r, paperID)
		case http.MethodGet:
			s.handleListAnnotations(w, r, paperID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case "analyze":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleAnalyzePaper(w, r, paperID)
	case "insights":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handlePaperInsights(w, r, paperID)
	case "schedule-download":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleScheduleDownload(w, r, paperID)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handlePaperDetail(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	counts, err := s.chunkRepo.CountByPaper(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paper": p, "chunk_count": counts[paperID]})
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	var req struct {
		Content    string          `json:"content"`
		PageNumber int             `json:"page_number"`
		Position   json.RawMessage `json:"position"`
		Color      string          `json:"color"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}
	h, err := s.highlightRepo.Create(r.Context(), u.ID, paperID, req.Content, req.PageNumber, req.Position, req.Color)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_, _ = s.activityRepo.Log(r.Context(), u.ID, "highlight_created", map[string]any{"paper_id": paperID, "highlight_id": h.ID})
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request, paperID string) {
	rows, err := s.highlightRepo.ListByPaper(r.Context(), s.user(r).ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"highlights": rows, "total": len(rows)})
}

func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	var req struct {
		Content     string          `json:"content"`
		Type        string          `json:"annotation_type"`
		HighlightID string          `json:"highlight_id"`
		PageNumber  int             `json:"page_number"`
		Position    json.RawMessage `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}
	if req.Type == "" {
		req.Type = "note"
	}
	in := storage.AnnotationInput{
		PaperID:    paperID,
		Content:    req.Content,
		Type:       req.Type,
		PageNumber: req.PageNumber,
		Position:   req.Position,
	}
	if req.HighlightID != "" {
		hid, err := uuid.Parse(req.HighlightID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid highlight_id: %w", err))
			return
		}
		in.HighlightID = &hid
	}
	a, err := s.annotationRepo.Create(r.Context(), u.ID, in)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_, _ = s.activityRepo.Log(r.Context(), u.ID, "annotation_created", map[string]any{"paper_id": paperID, "annotation_id": a.ID})
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request, paperID string) {
	rows, err := s.annotationRepo.ListByPaper(r.Context(), s.user(r).ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"annotations": rows, "total": len(rows)})
}

type paperAnalysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Topics    []string `json:"topics"`
}

// handleAnalyzePaper asks the LLM for a structured read of the paper and
// stores the result as an ai_analysis annotation. Falls back to an
// extractive analysis when no provider returns usable JSON.
func (s *Server) handleAnalyzePaper(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	chunks, err := s.chunkRepo.ListByPaper(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	ctxSnippets := make([]string, 0, 4)
	if p.Abstract != "" {
		ctxSnippets = append(ctxSnippets, "Abstract: "+p.Abstract)
	}
	for i, c := range chunks {
		if i >= 3 {
			break
		}
		ctxSnippets = append(ctxSnippets, util.DisplaySnippet(c.Content, 1200))
	}

	prompt := "Analyze the research paper \"" + p.Title + "\" using the provided excerpts.\n" +
		"Return STRICT JSON only, no prose, in this shape:\n" +
		`{"summary": "...", "key_points": ["..."], "topics": ["..."]}` + "\n" +
		"summary: 2-3 sentences. key_points: 3-5 short items. topics: up to 5 subject labels."

	model := "extractive"
	analysis := paperAnalysis{}
	resp, info, genErr := s.generate(r.Context(), u, "paper_analysis", prompt, ctxSnippets)
	if genErr == nil {
		if err := json.Unmarshal([]byte(util.StripCodeFence(resp.Text)), &analysis); err == nil && analysis.Summary != "" {
			model = info.Model
		} else {
			analysis = paperAnalysis{}
		}
	}
	if analysis.Summary == "" {
		analysis = extractiveAnalysis(p.Abstract, p.Topics, chunkContents(chunks, 3))
	}

	content, err := json.Marshal(analysis)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.annotationRepo.Create(r.Context(), u.ID, storage.AnnotationInput{
		PaperID: paperID,
		Content: string(content),
		Type:    "ai_analysis",
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id":   paperID,
		"summary":    analysis.Summary,
		"key_points": analysis.KeyPoints,
		"topics":     analysis.Topics,
		"model":      model,
	})
}

func (s *Server) handlePaperInsights(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	if _, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	analyses, err := s.annotationRepo.ListByType(r.Context(), u.ID, paperID, "ai_analysis")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	highlights, err := s.highlightRepo.ListByPaper(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	counts, err := s.chunkRepo.CountByPaper(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	views, err := s.activityRepo.ViewCount(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id":        paperID,
		"analyses":        analyses,
		"chunk_count":     counts[paperID],
		"highlight_count": len(highlights),
		"view_count":      views,
	})
}

func (s *Server) handleScheduleDownload(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if p.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper has no source url to download"))
		return
	}
	if err := s.paperRepo.UpdateStatus(r.Context(), u.ID, paperID, "pending_download"); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.DownloadWorkflowID(paperID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.PaperDownloadWorkflow, workflows.PaperDownloadInput{
		PaperID:         paperID,
		UserID:          u.ID.String(),
		URL:             p.URL,
		ChunkSize:       s.cfg.ChunkSize,
		ChunkOverlap:    s.cfg.ChunkOverlap,
		EmbedVersion:    s.cfg.EmbedVersion,
		EmbedBatchSize:  s.cfg.EmbedBatchSize,
		EmbedProviders:  s.providers.EmbedCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func extractiveAnalysis(abstract string, topics []string, excerpts []string) paperAnalysis {
	summary := util.DisplaySnippet(abstract, 320)
	if summary == "" {
		summary = "No abstract available for this paper."
	}
	points := make([]string, 0, len(excerpts))
	for _, e := range excerpts {
		if p := util.DisplaySnippet(e, 160); p != "" {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		points = append(points, summary)
	}
	return paperAnalysis{Summary: summary, KeyPoints: points, Topics: topics}
}

func chunkContents(chunks []models.Chunk, max int) []string {
	out := make([]string, 0, max)
	for i, c := range chunks {
		if i >= max {
			break
		}
		out = append(out, c.Content)
	}
	return out
}
