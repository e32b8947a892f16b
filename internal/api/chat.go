package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/auth"
	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/util"
	"github.com/MetaHackathon/DataEngineX/internal/vector"

	"github.com/google/uuid"
)

type chatCitation struct {
	RefID   string  `json:"ref_id"`
	ChunkID string  `json:"chunk_id"`
	PaperID string  `json:"paper_id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

func (s *Server) handleChatScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/chat/")
	if len(parts) == 0 || parts[0] != "sessions" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodPost:
			s.handleCreateSession(w, r)
		case http.MethodGet:
			s.handleListSessions(w, r)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 3 && parts[2] == "messages":
		switch r.Method {
		case http.MethodGet:
			s.handleListMessages(w, r, parts[1])
		case http.MethodPost:
			s.handlePostMessage(w, r, parts[1])
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	var req struct {
		PaperID string `json:"paper_id"`
		Title   string `json:"title"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var paperID *string
	if id := strings.TrimSpace(req.PaperID); id != "" {
		if _, err := s.paperRepo.GetByID(r.Context(), u.ID, id); err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		paperID = &id
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}
	sess, err := s.chatRepo.CreateSession(r.Context(), u.ID, paperID, title)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.chatRepo.ListSessions(r.Context(), s.user(r).ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, rawID string) {
	u := s.user(r)
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return
	}
	if _, err := s.chatRepo.GetSession(r.Context(), u.ID, sessionID); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	msgs, err := s.chatRepo.ListMessages(r.Context(), u.ID, sessionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "total": len(msgs)})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, rawID string) {
	u := s.user(r)
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return
	}
	sess, err := s.chatRepo.GetSession(r.Context(), u.ID, sessionID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
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
	reply, err := s.answerInSession(r.Context(), u, sess, req.Content)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// answerInSession stores the user's message, retrieves chunk context from
// the session's paper (or the whole library), and stores the grounded
// assistant reply.
func (s *Server) answerInSession(ctx context.Context, u auth.User, sess models.ChatSession, content string) (models.ChatMessage, error) {
	if _, err := s.chatRepo.AddMessage(ctx, u.ID, sess.ID, "user", content, nil); err != nil {
		return models.ChatMessage{}, err
	}

	var paperIDs []string
	if sess.PaperID != nil {
		paperIDs = []string{*sess.PaperID}
	}
	results, err := s.retrieveChunks(ctx, u, content, paperIDs, 6)
	if err != nil {
		return models.ChatMessage{}, err
	}

	citations := make([]chatCitation, 0, len(results))
	snippets := make([]string, 0, len(results))
	for i, res := range results {
		refID := fmt.Sprintf("C%d", i+1)
		title := util.DisplaySnippet(res.Title, 100)
		snippet := util.DisplayEvidenceSnippet(res.Content, content, 420)
		citations = append(citations, chatCitation{
			RefID:   refID,
			ChunkID: res.ID,
			PaperID: res.PaperID,
			Title:   title,
			Snippet: snippet,
			Score:   res.Score,
		})
		snippets = append(snippets, fmt.Sprintf("%s | %s [%s]: %s", refID, title, res.ID, util.DisplaySnippet(res.Content, 1200)))
	}

	prompt := "Question: " + content + "\n\n" +
		"Answer using ONLY the provided evidence snippets. " +
		"Cite snippets as [C1], [C2] immediately after each supported claim. " +
		"If the snippets do not contain enough information, say what is missing.\n\n" +
		"Evidence snippets (cite as [C#]):\n"
	resp, _, genErr := s.generate(ctx, u, "chat_answer", prompt, snippets)
	answer := strings.TrimSpace(resp.Text)
	if genErr != nil || answer == "" {
		answer = extractiveChatAnswer(citations)
	}

	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return s.chatRepo.AddMessage(ctx, u.ID, sess.ID, "assistant", answer, citationsJSON)
}

func (s *Server) retrieveChunks(ctx context.Context, u auth.User, query string, paperIDs []string, topK int) ([]models.ChunkResult, error) {
	vec, _, err := s.embedQuery(ctx, "chat_query_embed", query)
	if err == nil {
		results, sErr := s.searcher.SearchChunks(ctx, u.ID, vec, topK, vector.SearchFilters{PaperIDs: paperIDs})
		if sErr == nil {
			return results, nil
		}
		return nil, sErr
	}
	return s.chunkRepo.SearchILike(ctx, u.ID, query, paperIDs, topK)
}

func extractiveChatAnswer(citations []chatCitation) string {
	if len(citations) == 0 {
		return "No indexed content matched this question yet. Try processing the paper first."
	}
	lines := make([]string, 0, 4)
	lines = append(lines, "Based on the retrieved passages:")
	limit := len(citations)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		lines = append(lines, fmt.Sprintf("- %s [%s]", citations[i].Snippet, citations[i].RefID))
	}
	return strings.Join(lines, "\n")
}
