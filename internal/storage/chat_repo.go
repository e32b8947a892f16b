package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

type ChatRepo struct {
	db *DB
}

func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) CreateSession(ctx context.Context, userID uuid.UUID, paperID *string, title string) (models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO chat_sessions (user_id, paper_id, title)
VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'New chat'))
RETURNING id, user_id, paper_id, title, created_at, updated_at`,
		userID, paperID, title).
		Scan(&s.ID, &s.UserID, &s.PaperID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("create chat session: %w", err)
	}
	return s, nil
}

func (r *ChatRepo) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, user_id, paper_id, title, created_at, updated_at
FROM chat_sessions WHERE id=$1 AND user_id=$2`, sessionID, userID).
		Scan(&s.ID, &s.UserID, &s.PaperID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("get chat session: %w", err)
	}
	return s, nil
}

func (r *ChatRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error) {
	return r.listSessions(ctx, `
SELECT id, user_id, paper_id, title, created_at, updated_at
FROM chat_sessions WHERE user_id=$1 ORDER BY updated_at DESC`, userID)
}

func (r *ChatRepo) ListSessionsByPaper(ctx context.Context, userID uuid.UUID, paperID string) ([]models.ChatSession, error) {
	return r.listSessions(ctx, `
SELECT id, user_id, paper_id, title, created_at, updated_at
FROM chat_sessions WHERE user_id=$1 AND paper_id=$2 ORDER BY updated_at DESC`, userID, paperID)
}

func (r *ChatRepo) listSessions(ctx context.Context, sql string, args ...any) ([]models.ChatSession, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()
	out := make([]models.ChatSession, 0)
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.PaperID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return out, nil
}

func (r *ChatRepo) AddMessage(ctx context.Context, userID, sessionID uuid.UUID, role, content string, citations json.RawMessage) (models.ChatMessage, error) {
	var m models.ChatMessage
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO chat_messages (session_id, user_id, role, content, citations)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, session_id, role, content, citations, created_at`,
		sessionID, userID, role, content, citations).
		Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Citations, &m.CreatedAt)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("add chat message: %w", err)
	}
	// Bump the session so the list orders by last activity.
	if _, err := r.db.Pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at=NOW() WHERE id=$1 AND user_id=$2`, sessionID, userID); err != nil {
		return m, fmt.Errorf("touch chat session: %w", err)
	}
	return m, nil
}

func (r *ChatRepo) ListMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, session_id, role, content, citations, created_at
FROM chat_messages
WHERE session_id=$1 AND user_id=$2
ORDER BY created_at ASC`, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	out := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Citations, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}
