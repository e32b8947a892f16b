package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MetaHackathon/DataEngineX/internal/arxiv"
	"github.com/MetaHackathon/DataEngineX/internal/auth"
	"github.com/MetaHackathon/DataEngineX/internal/config"
	"github.com/MetaHackathon/DataEngineX/internal/providers"
	"github.com/MetaHackathon/DataEngineX/internal/storage"
	"github.com/MetaHackathon/DataEngineX/internal/vector"
	"github.com/MetaHackathon/DataEngineX/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg            config.Config
	db             *storage.DB
	paperRepo      *storage.PaperRepo
	chunkRepo      *storage.ChunkRepo
	highlightRepo  *storage.HighlightRepo
	annotationRepo *storage.AnnotationRepo
	chatRepo       *storage.ChatRepo
	activityRepo   *storage.ActivityRepo
	knowledgeRepo  *storage.KnowledgeBaseRepo
	statsRepo      *storage.StatsRepo
	profileRepo    *storage.ProfileRepo
	llmAuditRepo   *storage.LLMAuditRepo
	searcher       *vector.Searcher
	providers      *providers.Manager
	arxiv          *arxiv.Client
	temporal       tclient.Client
	httpClient     *http.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if cfg.AutoMigrate {
		mctx, mcancel := context.WithTimeout(context.Background(), time.Minute)
		if err := db.Migrate(mctx); err != nil {
			mcancel()
			panic(err)
		}
		mcancel()
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:            cfg,
		db:             db,
		paperRepo:      storage.NewPaperRepo(db),
		chunkRepo:      storage.NewChunkRepo(db),
		highlightRepo:  storage.NewHighlightRepo(db),
		annotationRepo: storage.NewAnnotationRepo(db),
		chatRepo:       storage.NewChatRepo(db),
		activityRepo:   storage.NewActivityRepo(db),
		knowledgeRepo:  storage.NewKnowledgeBaseRepo(db),
		statsRepo:      storage.NewStatsRepo(db),
		profileRepo:    storage.NewProfileRepo(db),
		llmAuditRepo:   storage.NewLLMAuditRepo(db),
		searcher:       vector.NewSearcher(db.Pool),
		providers:      pm,
		arxiv:          arxiv.NewClient(cfg.ArxivBaseURL, time.Duration(cfg.ArxivTimeoutSecs)*time.Second),
		temporal:       tc,
		httpClient:     &http.Client{Timeout: time.Duration(cfg.ArxivTimeoutSecs) * time.Second},
	}
}

func (s *Server) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/discover", s.handleDiscover)
	api.HandleFunc("/api/discover/", s.handleDiscoverScoped)
	api.HandleFunc("/api/library", s.handleLibrary)
	api.HandleFunc("/api/library/", s.handleLibraryScoped)
	api.HandleFunc("/api/papers/", s.handlePapersScoped)
	api.HandleFunc("/api/rag/", s.handleRAGScoped)
	api.HandleFunc("/api/search", s.handleSearch)
	api.HandleFunc("/api/search/", s.handleSearchScoped)
	api.HandleFunc("/api/chat/", s.handleChatScoped)
	api.HandleFunc("/api/compare", s.handleCompare)
	api.HandleFunc("/api/intelligent/", s.handleIntelligentScoped)
	api.HandleFunc("/api/stats", s.handleStats)
	api.HandleFunc("/api/dashboard", s.handleDashboard)
	api.HandleFunc("/api/knowledgebases", s.handleKnowledgeBases)
	api.HandleFunc("/api/knowledgebases/", s.handleKnowledgeBasesScoped)
	api.HandleFunc("/api/documents/", s.handleDocumentsScoped)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/api/", s.withAuth(api))
	return withCORS(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "DataEngineX - AI Research Platform",
		"version": "1.0.0",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "DataEngineX Research Platform",
	})
}

// withAuth resolves the request user (demo user when no token is
// presented) and makes sure a profile row exists before any table with a
// user_id foreign key is touched.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := auth.Authenticate(r.Header.Get("Authorization"), []byte(s.cfg.JWTSecret))
		if err != nil {
			writeErr(w, http.StatusUnauthorized, err)
			return
		}
		if err := s.profileRepo.Ensure(r.Context(), u.ID, u.Email, u.Name); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}

func (s *Server) user(r *http.Request) auth.User {
	u, _ := auth.FromContext(r.Context())
	return u
}

// startIngest starts (or restarts) the ingest workflow for one paper. The
// id is deterministic so progress can be queried without persisting run ids.
func (s *Server) startIngest(ctx context.Context, u auth.User, paperID string) (tclient.WorkflowRun, error) {
	return s.temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       workflows.IngestWorkflowID(paperID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.PaperIngestWorkflow, workflows.PaperIngestInput{
		PaperID:         paperID,
		UserID:          u.ID.String(),
		ChunkSize:       s.cfg.ChunkSize,
		ChunkOverlap:    s.cfg.ChunkOverlap,
		EmbedVersion:    s.cfg.EmbedVersion,
		EmbedBatchSize:  s.cfg.EmbedBatchSize,
		EmbedProviders:  s.providers.EmbedCount(),
		CooldownSeconds: s.cfg.ProviderCooldownSecs,
	})
}

// embedQuery embeds one search query, walking the preferred provider order
// until one succeeds.
func (s *Server) embedQuery(ctx context.Context, operation, text string) ([]float32, providers.ProviderInfo, error) {
	var (
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredEmbedOrder() {
		p, _ := s.providers.EmbedProviderByIndex(idx)
		var vecs [][]float32
		vecs, info, err = p.Embed(ctx, providers.EmbedRequest{
			Operation: operation,
			Inputs:    []string{text},
			Dimension: s.cfg.EmbedDim,
		})
		if err == nil && len(vecs) > 0 {
			return vecs[0], info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("embedding providers unavailable")
	}
	return nil, info, err
}

// generate runs one LLM call with the groq-first preference used for
// interactive requests, and records the call in llm_calls best effort.
func (s *Server) generate(ctx context.Context, u auth.User, op, prompt string, ctxSnippets []string) (providers.GenerateResponse, providers.ProviderInfo, error) {
	started := time.Now()
	resp, info, err := s.generateOnce(ctx, op, prompt, ctxSnippets)
	rec := storage.LLMCallRecord{
		Provider:    info.Name,
		Model:       info.Model,
		Purpose:     op,
		PromptChars: len(prompt),
		OutputChars: len(resp.Text),
		DurationMS:  time.Since(started).Milliseconds(),
		Status:      "ok",
	}
	if u.ID != uuid.Nil {
		id := u.ID
		rec.UserID = &id
	}
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
	}
	_ = s.llmAuditRepo.Insert(ctx, rec)
	return resp, info, err
}

func (s *Server) generateOnce(ctx context.Context, op, prompt string, ctxSnippets []string) (providers.GenerateResponse, providers.ProviderInfo, error) {
	if groqProvider, groqRef, ok := s.providers.FindLLMProviderByName("groq"); ok {
		resp, info, err := groqProvider.Generate(ctx, providers.GenerateRequest{
			Operation: op,
			Prompt:    prompt,
			Context:   ctxSnippets,
		})
		info.Name = groqRef.Name
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
	}
	var (
		resp providers.GenerateResponse
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredLLMOrder() {
		p, _ := s.providers.LLMProviderByIndex(idx)
		resp, info, err = p.Generate(ctx, providers.GenerateRequest{
			Operation: op,
			Prompt:    prompt,
			Context:   ctxSnippets,
		})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("llm providers unavailable")
	}
	return resp, info, err
}

func pathParts(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	body := map[string]any{"code": apiErr.Code, "message": apiErr.Message}
	if apiErr.Details != "" {
		body["details"] = apiErr.Details
	}
	writeJSON(w, code, map[string]any{"error": body})
}

type apiError struct {
	Code    string
	Message string
	Details string
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	if status >= 500 {
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DE-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connection refused"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "failed to connect"):
			return apiError{
				Code:    "DE-DB-5002",
				Message: "Database connection is unavailable. Check DATAENGINEX_POSTGRES_URL and retry.",
			}
		case status == http.StatusBadGateway:
			return apiError{
				Code:    "DE-API-5020",
				Message: "Upstream service is unavailable. Retry shortly.",
			}
		default:
			return apiError{
				Code:    "DE-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	}

	code := "DE-API-4001"
	msg := "Invalid request. Check inputs and retry."
	switch status {
	case http.StatusUnauthorized:
		code = "DE-API-4010"
		msg = "Invalid or expired token."
	case http.StatusNotFound:
		code = "DE-API-4040"
		msg = "Requested resource was not found."
	case http.StatusMethodNotAllowed:
		code = "DE-API-4050"
		msg = "This endpoint does not support the requested method."
	case http.StatusConflict:
		code = "DE-API-4090"
		msg = "Operation conflicts with current state. Retry after checking status."
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	return apiError{Code: code, Message: msg, Details: details}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
