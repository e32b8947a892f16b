package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Paper is the normalized paper shape shared by the ArXiv proxy and the
// library. ID is the ArXiv identifier for discovered papers and a content
// hash for uploads.
type Paper struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Abstract    string    `json:"abstract,omitempty"`
	Year        int       `json:"year"`
	Citations   int       `json:"citations"`
	Impact      string    `json:"impact"`
	URL         string    `json:"url"`
	Topics      []string  `json:"topics"`
	Institution *string   `json:"institution"`
	Source      string    `json:"source,omitempty"`
	Status      string    `json:"processing_status,omitempty"`
	PDFPath     string    `json:"-"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Chunk is one layout-aware segment of a paper, as returned by Chunkr or
// produced by the local extraction fallback.
type Chunk struct {
	ID               string          `json:"id"`
	PaperID          string          `json:"paper_id"`
	ChunkIndex       int             `json:"chunk_index"`
	Content          string          `json:"content"`
	PageNumber       int             `json:"page_number"`
	Section          string          `json:"section,omitempty"`
	BBox             json.RawMessage `json:"bbox,omitempty"`
	EmbeddingVersion string          `json:"embedding_version,omitempty"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
}

type ChunkResult struct {
	Chunk
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type Highlight struct {
	ID         uuid.UUID       `json:"id"`
	PaperID    string          `json:"paper_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Content    string          `json:"content"`
	PageNumber int             `json:"page_number"`
	Position   json.RawMessage `json:"position,omitempty"`
	Color      string          `json:"color"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Annotation struct {
	ID          uuid.UUID       `json:"id"`
	PaperID     string          `json:"paper_id"`
	UserID      uuid.UUID       `json:"user_id"`
	HighlightID *uuid.UUID      `json:"highlight_id,omitempty"`
	Content     string          `json:"content"`
	Type        string          `json:"annotation_type"`
	PageNumber  int             `json:"page_number,omitempty"`
	Position    json.RawMessage `json:"position,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type KnowledgeBase struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KnowledgeBaseAnalysis is one stored generation result. Kind is one of
// analysis, connections, insights.
type KnowledgeBaseAnalysis struct {
	ID              uuid.UUID       `json:"id"`
	KnowledgeBaseID uuid.UUID       `json:"knowledge_base_id"`
	Kind            string          `json:"kind"`
	Content         json.RawMessage `json:"content"`
	CreatedAt       time.Time       `json:"created_at"`
}

type KnowledgeBaseStats struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	PaperCount     int        `json:"paper_count"`
	ChunkCount     int        `json:"chunk_count"`
	LastAnalysisAt *time.Time `json:"last_analysis_at,omitempty"`
}

type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	PaperID   *string   `json:"paper_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Citations json.RawMessage `json:"citations,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type ActivityEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"activity_type"`
	Data      json.RawMessage `json:"activity_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type SearchRecord struct {
	ID           uuid.UUID `json:"id"`
	Query        string    `json:"query"`
	SearchType   string    `json:"search_type"`
	ResultsCount int       `json:"results_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ContentHit is one row from the cross-content search procedure.
type ContentHit struct {
	ResultType string  `json:"result_type"`
	ResultID   string  `json:"result_id"`
	PaperID    string  `json:"paper_id"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	Rank       float64 `json:"rank"`
}

// UserStats is the get_user_stats row.
type UserStats struct {
	TotalPapers         int `json:"total_papers"`
	TotalChunks         int `json:"total_chunks"`
	ProcessedPapers     int `json:"processed_papers"`
	TotalHighlights     int `json:"total_highlights"`
	TotalAnnotations    int `json:"total_annotations"`
	TotalKnowledgeBases int `json:"total_knowledge_bases"`
	TotalChatSessions   int `json:"total_chat_sessions"`
	RecentActivityCount int `json:"recent_activity_count"`
}
