package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/models"

	"github.com/google/uuid"
)

// handleDocumentsScoped serves the reader-oriented view of a paper: full
// chunk content, view tracking, per-paper chat, and highlight/annotation
// editing. /api/papers/ stays the lighter metadata surface.
func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/documents/")
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
		s.handleDocumentDetail(w, r, paperID)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "view":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleDocumentView(w, r, paperID)
	case len(parts) == 2 && parts[1] == "chat":
		switch r.Method {
		case http.MethodGet:
			s.handleDocumentChatSessions(w, r, paperID)
		case http.MethodPost:
			s.handleDocumentChat(w, r, paperID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 2 && parts[1] == "highlights":
		switch r.Method {
		case http.MethodPost:
			s.handleCreateHighlight(w, r, paperID)
		case http.MethodGet:
			s.handleListHighlights(w, r, paperID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 3 && parts[1] == "highlights":
		s.handleDocumentHighlight(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "annotations":
		switch r.Method {
		case http.MethodPost:
			s.handleCreateAnnotation(w, r, paperID)
		case http.MethodGet:
			s.handleListAnnotations(w, r, paperID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 3 && parts[1] == "annotations":
		s.handleDocumentAnnotation(w, r, parts[2])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleDocumentDetail(w http.ResponseWriter, r *http.Request, paperID string) {
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
	writeJSON(w, http.StatusOK, map[string]any{
		"paper":        p,
		"chunks":       chunks,
		"total_chunks": len(chunks),
	})
}

func (s *Server) handleDocumentView(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	if _, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err := s.activityRepo.RecordView(r.Context(), u.ID, paperID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	_, _ = s.activityRepo.Log(r.Context(), u.ID, "paper_view", map[string]any{"paper_id": paperID})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDocumentChatSessions(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	sessions, err := s.chatRepo.ListSessionsByPaper(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

// handleDocumentChat answers a question in the paper's chat session,
// creating the session on first use.
func (s *Server) handleDocumentChat(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	sessions, err := s.chatRepo.ListSessionsByPaper(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	sess := models.ChatSession{}
	if len(sessions) > 0 {
		sess = sessions[0]
	} else {
		sess, err = s.chatRepo.CreateSession(r.Context(), u.ID, &paperID, "Chat: "+p.Title)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	reply, err := s.answerInSession(r.Context(), u, sess, req.Content)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "message": reply})
}

func (s *Server) handleDocumentHighlight(w http.ResponseWriter, r *http.Request, rawID string) {
	u := s.user(r)
	highlightID, err := uuid.Parse(rawID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid highlight id: %w", err))
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Content string `json:"content"`
			Color   string `json:"color"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		updated, err := s.highlightRepo.Update(r.Context(), u.ID, highlightID, req.Content, req.Color)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !updated {
			writeErr(w, http.StatusNotFound, fmt.Errorf("highlight %s not found", highlightID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case http.MethodDelete:
		deleted, err := s.highlightRepo.Delete(r.Context(), u.ID, highlightID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !deleted {
			writeErr(w, http.StatusNotFound, fmt.Errorf("highlight %s not found", highlightID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleDocumentAnnotation(w http.ResponseWriter, r *http.Request, rawID string) {
	u := s.user(r)
	annotationID, err := uuid.Parse(rawID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid annotation id: %w", err))
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
			return
		}
		updated, err := s.annotationRepo.Update(r.Context(), u.ID, annotationID, req.Content)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !updated {
			writeErr(w, http.StatusNotFound, fmt.Errorf("annotation %s not found", annotationID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case http.MethodDelete:
		deleted, err := s.annotationRepo.Delete(r.Context(), u.ID, annotationID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !deleted {
			writeErr(w, http.StatusNotFound, fmt.Errorf("annotation %s not found", annotationID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}
