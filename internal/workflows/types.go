package workflows

type PaperIngestInput struct {
	PaperID         string `json:"paper_id"`
	UserID          string `json:"user_id"`
	ChunkSize       int    `json:"chunk_size,omitempty"`
	ChunkOverlap    int    `json:"chunk_overlap,omitempty"`
	EmbedVersion    string `json:"embed_version,omitempty"`
	EmbedBatchSize  int    `json:"embed_batch_size,omitempty"`
	EmbedProviders  int    `json:"embed_providers,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
}

type IngestStatus struct {
	PaperID     string            `json:"paper_id"`
	Strategy    string            `json:"strategy,omitempty"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
	RetryCounts map[string]int    `json:"retry_counts,omitempty"`
	ChunkCount  int               `json:"chunk_count,omitempty"`
	Providers   []string          `json:"providers,omitempty"`
}

type PaperDownloadInput struct {
	PaperID         string `json:"paper_id"`
	UserID          string `json:"user_id"`
	URL             string `json:"url"`
	ChunkSize       int    `json:"chunk_size,omitempty"`
	ChunkOverlap    int    `json:"chunk_overlap,omitempty"`
	EmbedVersion    string `json:"embed_version,omitempty"`
	EmbedBatchSize  int    `json:"embed_batch_size,omitempty"`
	EmbedProviders  int    `json:"embed_providers,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
}

type KBAnalysisInput struct {
	KnowledgeBaseID string  `json:"knowledge_base_id"`
	UserID          string  `json:"user_id"`
	Kind            string  `json:"kind"`
	LLMProviders    int     `json:"llm_providers,omitempty"`
	CooldownSeconds int     `json:"cooldown_seconds,omitempty"`
	MinWeight       float64 `json:"min_weight,omitempty"`
}

type KBProgress struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	CurrentStep     string `json:"current_step"`
	TotalPapers     int    `json:"total_papers"`
	DonePapers      int    `json:"done_papers"`
}

type BackfillInput struct {
	UserID          string `json:"user_id"`
	Mode            string `json:"mode"`
	EmbedVersion    string `json:"embed_version,omitempty"`
	EmbedBatchSize  int    `json:"embed_batch_size,omitempty"`
	EmbedProviders  int    `json:"embed_providers,omitempty"`
	LLMProviders    int    `json:"llm_providers,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
	MaxChildren     int    `json:"max_children,omitempty"`
}
