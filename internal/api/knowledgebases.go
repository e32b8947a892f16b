package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/workflows"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

func (s *Server) handleKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}
		kb, err := s.knowledgeRepo.Create(r.Context(), u.ID, req.Name, strings.TrimSpace(req.Description))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		_, _ = s.activityRepo.Log(r.Context(), u.ID, "knowledge_base_created", map[string]any{"knowledge_base_id": kb.ID, "name": kb.Name})
		writeJSON(w, http.StatusCreated, kb)
	case http.MethodGet:
		stats, err := s.statsRepo.KnowledgeBaseStats(r.Context(), u.ID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"knowledge_bases": stats, "total": len(stats)})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleKnowledgeBasesScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/knowledgebases/")
	if len(parts) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	kbID, err := uuid.Parse(parts[0])
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid knowledge base id: %w", err))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleKBDetail(w, r, kbID)
		case http.MethodPut:
			s.handleKBUpdate(w, r, kbID)
		case http.MethodDelete:
			s.handleKBDelete(w, r, kbID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "papers":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBAddPapers(w, r, kbID)
	case len(parts) == 3 && parts[1] == "papers":
		if r.Method != http.MethodDelete {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBRemovePaper(w, r, kbID, parts[2])
	case len(parts) == 2 && strings.HasPrefix(parts[1], "generate-"):
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBGenerate(w, r, kbID, strings.TrimPrefix(parts[1], "generate-"))
	case len(parts) == 2 && (parts[1] == "insights" || parts[1] == "connections"):
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBLatestAnalysis(w, r, kbID, parts[1])
	case len(parts) == 2 && parts[1] == "analytics":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBAnalytics(w, r, kbID)
	case len(parts) == 2 && parts[1] == "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleKBProgress(w, r, kbID)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleKBDetail(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	kb, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	papers, err := s.statsRepo.KnowledgeBasePapers(r.Context(), u.ID, kbID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge_base": kb, "papers": papers, "paper_count": len(papers)})
}

func (s *Server) handleKBUpdate(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.knowledgeRepo.Update(r.Context(), u.ID, kbID, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !updated {
		writeErr(w, http.StatusNotFound, fmt.Errorf("knowledge base %s not found", kbID))
		return
	}
	kb, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, kb)
}

func (s *Server) handleKBDelete(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	deleted, err := s.knowledgeRepo.Delete(r.Context(), u.ID, kbID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeErr(w, http.StatusNotFound, fmt.Errorf("knowledge base %s not found", kbID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleKBAddPapers(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	var req struct {
		PaperIDs []string `json:"paper_ids"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if len(req.PaperIDs) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_ids is required"))
		return
	}
	if _, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err := s.knowledgeRepo.AddPapers(r.Context(), u.ID, kbID, req.PaperIDs); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "added": len(req.PaperIDs)})
}

func (s *Server) handleKBRemovePaper(w http.ResponseWriter, r *http.Request, kbID uuid.UUID, paperID string) {
	u := s.user(r)
	removed, err := s.knowledgeRepo.RemovePaper(r.Context(), u.ID, kbID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		writeErr(w, http.StatusNotFound, fmt.Errorf("paper %s is not in this knowledge base", paperID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleKBGenerate(w http.ResponseWriter, r *http.Request, kbID uuid.UUID, kind string) {
	u := s.user(r)
	switch kind {
	case "analysis", "connections", "insights":
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if _, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.KBAnalysisWorkflowID(kind, kbID.String()),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.KnowledgeBaseAnalysisWorkflow, workflows.KBAnalysisInput{
		KnowledgeBaseID: kbID.String(),
		UserID:          u.ID.String(),
		Kind:            kind,
		LLMProviders:    s.providers.LLMCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID(), "kind": kind})
}

func (s *Server) handleKBLatestAnalysis(w http.ResponseWriter, r *http.Request, kbID uuid.UUID, kind string) {
	u := s.user(r)
	a, err := s.knowledgeRepo.LatestAnalysis(r.Context(), u.ID, kbID, kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no %s generated for this knowledge base yet", kind))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleKBAnalytics(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	if _, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	stats, err := s.statsRepo.KnowledgeBaseStats(r.Context(), u.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	analyses, err := s.knowledgeRepo.ListAnalyses(r.Context(), u.ID, kbID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := map[string]any{"analyses": analyses}
	for _, row := range stats {
		if row.ID == kbID {
			out["stats"] = row
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleKBProgress(w http.ResponseWriter, r *http.Request, kbID uuid.UUID) {
	u := s.user(r)
	kind := strings.ToLower(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = "analysis"
	}
	var prog workflows.KBProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.KBAnalysisWorkflowID(kind, kbID.String()), "", workflows.QueryGetKBProgress)
	if err == nil {
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}

	// No live run; report from stored analyses.
	if _, err := s.knowledgeRepo.Get(r.Context(), u.ID, kbID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	status := "not_started"
	if _, err := s.knowledgeRepo.LatestAnalysis(r.Context(), u.ID, kbID, kind); err == nil {
		status = "completed"
	}
	writeJSON(w, http.StatusOK, workflows.KBProgress{
		KnowledgeBaseID: kbID.String(),
		Kind:            kind,
		Status:          status,
	})
}
