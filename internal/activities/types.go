package activities

import (
	"encoding/json"

	"github.com/MetaHackathon/DataEngineX/internal/graph"
)

const (
	StrategyChunkr = "chunkr"
	StrategyLocal  = "local"
	StrategyDemo   = "demo"
)

type PlanChunkingInput struct {
	PaperID string `json:"paper_id"`
	UserID  string `json:"user_id"`
}

type PlanChunkingOutput struct {
	Strategy string `json:"strategy"`
	PDFURL   string `json:"pdf_url,omitempty"`
	PDFPath  string `json:"pdf_path,omitempty"`
	Title    string `json:"title,omitempty"`
}

type SubmitChunkrTaskInput struct {
	PaperID string `json:"paper_id"`
	PDFURL  string `json:"pdf_url"`
}

type SubmitChunkrTaskOutput struct {
	TaskID string `json:"task_id"`
}

type AwaitChunkrTaskInput struct {
	TaskID string `json:"task_id"`
}

type FetchChunkrChunksInput struct {
	PaperID string `json:"paper_id"`
	UserID  string `json:"user_id"`
	TaskID  string `json:"task_id"`
	Version string `json:"version"`
}

type ExtractLocalChunksInput struct {
	PaperID      string `json:"paper_id"`
	UserID       string `json:"user_id"`
	PDFPath      string `json:"pdf_path"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Version      string `json:"version"`
}

type DemoChunksInput struct {
	PaperID string `json:"paper_id"`
	UserID  string `json:"user_id"`
	Version string `json:"version"`
}

type ChunkItem struct {
	ChunkID    string          `json:"chunk_id"`
	PaperID    string          `json:"paper_id"`
	ChunkIndex int             `json:"chunk_index"`
	Text       string          `json:"text"`
	PageNumber int             `json:"page_number,omitempty"`
	Section    string          `json:"section,omitempty"`
	BBox       json.RawMessage `json:"bbox,omitempty"`
}

type FetchChunksOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksBatchInput struct {
	Operation     string      `json:"operation"`
	PaperID       string      `json:"paper_id,omitempty"`
	UserID        string      `json:"user_id"`
	ProviderIndex int         `json:"provider_index"`
	Input         []ChunkItem `json:"input"`
}

type EmbedChunksBatchOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertChunksInput struct {
	PaperID          string      `json:"paper_id"`
	UserID           string      `json:"user_id"`
	Chunks           []ChunkItem `json:"chunks"`
	Vectors          [][]float32 `json:"vectors,omitempty"`
	EmbeddingVersion string      `json:"embedding_version"`
}

type UpdateChunkEmbeddingsInput struct {
	UserID           string      `json:"user_id"`
	ChunkIDs         []string    `json:"chunk_ids"`
	Vectors          [][]float32 `json:"vectors"`
	EmbeddingVersion string      `json:"embedding_version"`
}

type UpdatePaperStatusInput struct {
	PaperID string `json:"paper_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
}

type LogActivityInput struct {
	UserID string         `json:"user_id"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

type DownloadPDFInput struct {
	PaperID string `json:"paper_id"`
	UserID  string `json:"user_id"`
	URL     string `json:"url"`
}

type DownloadPDFOutput struct {
	Path string `json:"path"`
}

type ListKBPapersInput struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	UserID          string `json:"user_id"`
}

type KBPaper struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Year     int      `json:"year,omitempty"`
}

type ListKBPapersOutput struct {
	Name   string    `json:"name"`
	Papers []KBPaper `json:"papers"`
}

type LLMGenerateInput struct {
	Operation       string   `json:"operation"`
	UserID          string   `json:"user_id,omitempty"`
	PaperID         string   `json:"paper_id,omitempty"`
	KnowledgeBaseID string   `json:"knowledge_base_id,omitempty"`
	Prompt          string   `json:"prompt"`
	Context         []string `json:"context,omitempty"`
	ProviderIndex   int      `json:"provider_index"`
}

type LLMGenerateOutput struct {
	Text         string `json:"text"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
}

type LogLLMCallInput struct {
	UserID      string `json:"user_id,omitempty"`
	Operation   string `json:"operation"`
	Provider    string `json:"provider"`
	Model       string `json:"model,omitempty"`
	PromptChars int    `json:"prompt_chars,omitempty"`
	OutputChars int    `json:"output_chars,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type BuildConnectionGraphInput struct {
	KnowledgeBaseID string  `json:"knowledge_base_id"`
	UserID          string  `json:"user_id"`
	MinWeight       float64 `json:"min_weight"`
	RawConnections  string  `json:"raw_connections,omitempty"`
}

type BuildConnectionGraphOutput struct {
	Graph graph.Graph `json:"graph"`
}

type StoreKBAnalysisInput struct {
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	UserID          string         `json:"user_id"`
	Kind            string         `json:"kind"`
	Payload         map[string]any `json:"payload"`
}

type StoreKBAnalysisOutput struct {
	AnalysisID string `json:"analysis_id"`
}

type WriteKBArtifactInput struct {
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	Kind            string         `json:"kind"`
	Payload         map[string]any `json:"payload"`
}

type WriteKBArtifactOutput struct {
	Path string `json:"path"`
}

type ListFailedPapersInput struct {
	UserID string `json:"user_id"`
}

type FailedPaper struct {
	PaperID string `json:"paper_id"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
}

type ListFailedPapersOutput struct {
	Papers []FailedPaper `json:"papers"`
}

type ListChunkTextsInput struct {
	UserID string `json:"user_id"`
}

type ListChunkTextsOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type ListKnowledgeBasesInput struct {
	UserID string `json:"user_id"`
}

type ListKnowledgeBasesOutput struct {
	IDs []string `json:"ids"`
}

type WriteRunManifestInput struct {
	RunID    string         `json:"run_id"`
	Manifest map[string]any `json:"manifest"`
}

type WriteRunManifestOutput struct {
	Path string `json:"path"`
}
