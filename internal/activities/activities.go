package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/MetaHackathon/DataEngineX/internal/arxiv"
	"github.com/MetaHackathon/DataEngineX/internal/chunkr"
	"github.com/MetaHackathon/DataEngineX/internal/config"
	"github.com/MetaHackathon/DataEngineX/internal/graph"
	"github.com/MetaHackathon/DataEngineX/internal/providers"
	"github.com/MetaHackathon/DataEngineX/internal/storage"
	"github.com/MetaHackathon/DataEngineX/internal/util"
)

type Activities struct {
	cfg           config.Config
	paperRepo     *storage.PaperRepo
	chunkRepo     *storage.ChunkRepo
	knowledgeRepo *storage.KnowledgeBaseRepo
	activityRepo  *storage.ActivityRepo
	statsRepo     *storage.StatsRepo
	llmAuditRepo  *storage.LLMAuditRepo
	chunkr        *chunkr.Client
	providers     *providers.Manager
	httpClient    *http.Client
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:           cfg,
		paperRepo:     storage.NewPaperRepo(db),
		chunkRepo:     storage.NewChunkRepo(db),
		knowledgeRepo: storage.NewKnowledgeBaseRepo(db),
		activityRepo:  storage.NewActivityRepo(db),
		statsRepo:     storage.NewStatsRepo(db),
		llmAuditRepo:  storage.NewLLMAuditRepo(db),
		chunkr: chunkr.NewClient(
			cfg.ChunkrBaseURL,
			cfg.ChunkrAPIKey,
			time.Duration(cfg.ChunkrTimeoutSecs)*time.Second,
			time.Duration(cfg.ChunkrPollSecs)*time.Second,
			cfg.ChunkrPollMax,
		),
		providers:  pm,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ArxivTimeoutSecs) * time.Second},
	}, nil
}

// PlanChunkingActivity picks the chunking strategy for a paper: Chunkr
// when a key and a source URL exist, local extraction when the PDF is on
// disk, canned demo chunks otherwise.
func (a *Activities) PlanChunkingActivity(ctx context.Context, in PlanChunkingInput) (PlanChunkingOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return PlanChunkingOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	p, err := a.paperRepo.GetByID(ctx, userID, in.PaperID)
	if err != nil {
		return PlanChunkingOutput{}, err
	}
	out := PlanChunkingOutput{Title: p.Title, PDFURL: p.URL, PDFPath: p.PDFPath}
	hasLocal := false
	if p.PDFPath != "" {
		if _, err := os.Stat(p.PDFPath); err == nil {
			hasLocal = true
		}
	}
	switch {
	case a.chunkr.Configured() && strings.HasPrefix(p.URL, "http"):
		out.Strategy = StrategyChunkr
	case hasLocal:
		out.Strategy = StrategyLocal
	default:
		out.Strategy = StrategyDemo
	}
	return out, nil
}

func (a *Activities) SubmitChunkrTaskActivity(ctx context.Context, in SubmitChunkrTaskInput) (SubmitChunkrTaskOutput, error) {
	taskID, err := a.chunkr.Submit(ctx, in.PDFURL)
	if err != nil {
		return SubmitChunkrTaskOutput{}, err
	}
	return SubmitChunkrTaskOutput{TaskID: taskID}, nil
}

func (a *Activities) AwaitChunkrTaskActivity(ctx context.Context, in AwaitChunkrTaskInput) error {
	return a.chunkr.Await(ctx, in.TaskID)
}

func (a *Activities) FetchChunkrChunksActivity(ctx context.Context, in FetchChunkrChunksInput) (FetchChunksOutput, error) {
	chunks, err := a.chunkr.Chunks(ctx, in.TaskID)
	if err != nil {
		return FetchChunksOutput{}, err
	}
	out := FetchChunksOutput{Chunks: make([]ChunkItem, 0, len(chunks))}
	for i, c := range chunks {
		text := util.SanitizeText(c.Content)
		if text == "" {
			continue
		}
		out.Chunks = append(out.Chunks, ChunkItem{
			ChunkID:    chunkID(in.UserID, in.PaperID, i, text, in.Version),
			PaperID:    in.PaperID,
			ChunkIndex: i,
			Text:       text,
			PageNumber: c.PageNumber,
			Section:    c.Section,
			BBox:       c.BBox,
		})
	}
	if len(out.Chunks) == 0 {
		return FetchChunksOutput{}, util.ErrNoExtractableText
	}
	return out.renumbered(), nil
}

// ExtractLocalChunksActivity pulls text out of an on-disk PDF page by
// page so chunk rows keep a page number for citations.
func (a *Activities) ExtractLocalChunksActivity(ctx context.Context, in ExtractLocalChunksInput) (FetchChunksOutput, error) {
	_ = ctx
	f, r, err := pdf.Open(in.PDFPath)
	if err != nil {
		return FetchChunksOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, util.SanitizeText(text))
	}

	size := in.ChunkSize
	if size <= 0 {
		size = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = a.cfg.ChunkOverlap
	}
	parts := util.ChunkPages(pages, size, overlap)
	out := FetchChunksOutput{Chunks: make([]ChunkItem, 0, len(parts))}
	for i, part := range parts {
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}
		out.Chunks = append(out.Chunks, ChunkItem{
			ChunkID:    chunkID(in.UserID, in.PaperID, i, text, in.Version),
			PaperID:    in.PaperID,
			ChunkIndex: i,
			Text:       text,
			PageNumber: part.Page,
		})
	}
	if len(out.Chunks) == 0 {
		return FetchChunksOutput{}, util.ErrNoExtractableText
	}
	return out.renumbered(), nil
}

func (a *Activities) DemoChunksActivity(ctx context.Context, in DemoChunksInput) (FetchChunksOutput, error) {
	_ = ctx
	chunks := chunkr.DemoChunks(in.PaperID)
	out := FetchChunksOutput{Chunks: make([]ChunkItem, 0, len(chunks))}
	for i, c := range chunks {
		out.Chunks = append(out.Chunks, ChunkItem{
			ChunkID:    chunkID(in.UserID, in.PaperID, i, c.Content, in.Version),
			PaperID:    in.PaperID,
			ChunkIndex: i,
			Text:       c.Content,
			PageNumber: c.PageNumber,
			Section:    c.Section,
			BBox:       c.BBox,
		})
	}
	return out, nil
}

func (a *Activities) EmbedChunksBatchActivity(ctx context.Context, in EmbedChunksBatchInput) (EmbedChunksBatchOutput, error) {
	inputs := make([]string, 0, len(in.Input))
	for _, c := range in.Input {
		inputs = append(inputs, c.Text)
	}
	provider, _ := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    inputs,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksBatchOutput{}, err
	}
	return EmbedChunksBatchOutput{
		Vectors:      vectors,
		ProviderName: info.Name,
		Model:        info.Model,
	}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		var embedding []float32
		if i < len(in.Vectors) {
			embedding = in.Vectors[i]
		}
		records = append(records, storage.ChunkRecord{
			ChunkID:          c.ChunkID,
			PaperID:          in.PaperID,
			UserID:           userID,
			ChunkIndex:       c.ChunkIndex,
			Content:          util.SanitizeText(c.Text),
			PageNumber:       c.PageNumber,
			Section:          c.Section,
			BBox:             c.BBox,
			EmbeddingVersion: in.EmbeddingVersion,
			Embedding:        embedding,
		})
	}
	return a.chunkRepo.ReplaceChunks(ctx, userID, in.PaperID, records)
}

func (a *Activities) UpdateChunkEmbeddingsActivity(ctx context.Context, in UpdateChunkEmbeddingsInput) error {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	return a.chunkRepo.UpdateEmbeddings(ctx, userID, in.ChunkIDs, in.Vectors, in.EmbeddingVersion)
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	return a.paperRepo.UpdateStatus(ctx, userID, in.PaperID, in.Status)
}

func (a *Activities) LogActivityActivity(ctx context.Context, in LogActivityInput) error {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = a.activityRepo.Log(ctx, userID, in.Action, in.Data)
	return err
}

// DownloadPDFActivity fetches the paper's PDF into the library directory.
// Non-PDF responses are rejected rather than stored.
func (a *Activities) DownloadPDFActivity(ctx context.Context, in DownloadPDFInput) (DownloadPDFOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", arxiv.UserAgent)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DownloadPDFOutput{}, fmt.Errorf("download pdf status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownloadPDFOutput{}, fmt.Errorf("read pdf body: %w", err)
	}
	if !looksLikePDF(resp.Header.Get("Content-Type"), body) {
		return DownloadPDFOutput{}, util.ErrNotPDF
	}
	path := util.SafeJoin(filepath.Join(a.cfg.LibraryRoot, in.UserID), sanitizeFilename(in.PaperID)+".pdf")
	if err := util.WriteFileAtomic(path, body); err != nil {
		return DownloadPDFOutput{}, err
	}
	if err := a.paperRepo.SetPDFPath(ctx, userID, in.PaperID, path); err != nil {
		return DownloadPDFOutput{}, err
	}
	return DownloadPDFOutput{Path: path}, nil
}

func (a *Activities) ListKBPapersActivity(ctx context.Context, in ListKBPapersInput) (ListKBPapersOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return ListKBPapersOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	kbID, err := uuid.Parse(in.KnowledgeBaseID)
	if err != nil {
		return ListKBPapersOutput{}, fmt.Errorf("parse knowledge base id: %w", err)
	}
	kb, err := a.knowledgeRepo.Get(ctx, userID, kbID)
	if err != nil {
		return ListKBPapersOutput{}, err
	}
	papers, err := a.statsRepo.KnowledgeBasePapers(ctx, userID, kbID)
	if err != nil {
		return ListKBPapersOutput{}, err
	}
	out := ListKBPapersOutput{Name: kb.Name, Papers: make([]KBPaper, 0, len(papers))}
	for _, p := range papers {
		out.Papers = append(out.Papers, KBPaper{
			PaperID:  p.ID,
			Title:    p.Title,
			Abstract: p.Abstract,
			Topics:   p.Topics,
			Year:     p.Year,
		})
	}
	return out, nil
}

func (a *Activities) LLMGenerateActivity(ctx context.Context, in LLMGenerateInput) (LLMGenerateOutput, error) {
	provider, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	resp, info, err := provider.Generate(ctx, providers.GenerateRequest{
		Operation: in.Operation,
		Prompt:    in.Prompt,
		Context:   in.Context,
	})
	if err != nil {
		return LLMGenerateOutput{}, fmt.Errorf("llm generate via %s failed: %w", ref.Raw, err)
	}
	return LLMGenerateOutput{
		Text:         resp.Text,
		ProviderName: info.Name,
		Model:        info.Model,
	}, nil
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	rec := storage.LLMCallRecord{
		Provider:    in.Provider,
		Model:       in.Model,
		Purpose:     in.Operation,
		PromptChars: in.PromptChars,
		OutputChars: in.OutputChars,
		DurationMS:  in.DurationMS,
		Status:      in.Status,
		Error:       in.Error,
	}
	if in.UserID != "" {
		if id, err := uuid.Parse(in.UserID); err == nil {
			rec.UserID = &id
		}
	}
	return a.llmAuditRepo.Insert(ctx, rec)
}

// BuildConnectionGraphActivity assembles the knowledge-base connection
// graph from stored topics and chunk-embedding centroids; model-suggested
// relations in RawConnections merge in as labeled edges.
func (a *Activities) BuildConnectionGraphActivity(ctx context.Context, in BuildConnectionGraphInput) (BuildConnectionGraphOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return BuildConnectionGraphOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	kbID, err := uuid.Parse(in.KnowledgeBaseID)
	if err != nil {
		return BuildConnectionGraphOutput{}, fmt.Errorf("parse knowledge base id: %w", err)
	}
	paperIDs, err := a.knowledgeRepo.PaperIDs(ctx, userID, kbID)
	if err != nil {
		return BuildConnectionGraphOutput{}, err
	}
	papers, err := a.paperRepo.ListByIDs(ctx, userID, paperIDs)
	if err != nil {
		return BuildConnectionGraphOutput{}, err
	}
	inputs := make([]graph.PaperInput, 0, len(papers))
	for _, p := range papers {
		vectors, err := a.chunkRepo.ListEmbeddings(ctx, userID, p.ID)
		if err != nil {
			return BuildConnectionGraphOutput{}, err
		}
		inputs = append(inputs, graph.PaperInput{
			ID:       p.ID,
			Title:    p.Title,
			Topics:   p.Topics,
			Centroid: graph.Centroid(vectors),
		})
	}
	g := graph.Build(inputs, in.MinWeight)
	if in.RawConnections != "" {
		g = graph.MergeConnections(g, graph.ParseConnectionsJSON(in.RawConnections))
	}
	return BuildConnectionGraphOutput{Graph: g}, nil
}

func (a *Activities) StoreKBAnalysisActivity(ctx context.Context, in StoreKBAnalysisInput) (StoreKBAnalysisOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return StoreKBAnalysisOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	kbID, err := uuid.Parse(in.KnowledgeBaseID)
	if err != nil {
		return StoreKBAnalysisOutput{}, fmt.Errorf("parse knowledge base id: %w", err)
	}
	content, err := json.Marshal(in.Payload)
	if err != nil {
		return StoreKBAnalysisOutput{}, fmt.Errorf("marshal analysis payload: %w", err)
	}
	id, err := a.knowledgeRepo.SaveAnalysis(ctx, userID, kbID, in.Kind, content)
	if err != nil {
		return StoreKBAnalysisOutput{}, err
	}
	return StoreKBAnalysisOutput{AnalysisID: id.String()}, nil
}

func (a *Activities) WriteKBArtifactActivity(ctx context.Context, in WriteKBArtifactInput) (WriteKBArtifactOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, "knowledgebases", in.KnowledgeBaseID, in.Kind+".json")
	if err := util.WriteJSONAtomic(path, in.Payload); err != nil {
		return WriteKBArtifactOutput{}, err
	}
	return WriteKBArtifactOutput{Path: path}, nil
}

func (a *Activities) ListFailedPapersActivity(ctx context.Context, in ListFailedPapersInput) (ListFailedPapersOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return ListFailedPapersOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	papers, err := a.paperRepo.ListFailed(ctx, userID)
	if err != nil {
		return ListFailedPapersOutput{}, err
	}
	out := ListFailedPapersOutput{Papers: make([]FailedPaper, 0, len(papers))}
	for _, p := range papers {
		out.Papers = append(out.Papers, FailedPaper{PaperID: p.ID, Title: p.Title, URL: p.URL})
	}
	return out, nil
}

func (a *Activities) ListChunkTextsActivity(ctx context.Context, in ListChunkTextsInput) (ListChunkTextsOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return ListChunkTextsOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	chunks, err := a.chunkRepo.ListTexts(ctx, userID)
	if err != nil {
		return ListChunkTextsOutput{}, err
	}
	out := ListChunkTextsOutput{Chunks: make([]ChunkItem, 0, len(chunks))}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, ChunkItem{
			ChunkID:    c.ID,
			PaperID:    c.PaperID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Content,
		})
	}
	return out, nil
}

func (a *Activities) ListKnowledgeBasesActivity(ctx context.Context, in ListKnowledgeBasesInput) (ListKnowledgeBasesOutput, error) {
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return ListKnowledgeBasesOutput{}, fmt.Errorf("parse user id: %w", err)
	}
	ids, err := a.knowledgeRepo.ListIDs(ctx, userID)
	if err != nil {
		return ListKnowledgeBasesOutput{}, err
	}
	out := ListKnowledgeBasesOutput{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.IDs = append(out.IDs, id.String())
	}
	return out, nil
}

func (a *Activities) WriteRunManifestActivity(ctx context.Context, in WriteRunManifestInput) (WriteRunManifestOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, "backfills", in.RunID, "manifest.json")
	if err := util.WriteJSONAtomic(path, in.Manifest); err != nil {
		return WriteRunManifestOutput{}, err
	}
	return WriteRunManifestOutput{Path: path}, nil
}

// renumbered compacts chunk indexes after empty chunks were dropped so
// stored indexes stay contiguous.
func (o FetchChunksOutput) renumbered() FetchChunksOutput {
	for i := range o.Chunks {
		o.Chunks[i].ChunkIndex = i
	}
	return o
}

func chunkID(userID, paperID string, index int, text, version string) string {
	contentHash := util.SHA256Hex([]byte(text))
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%s:%d:%s:%s", userID, paperID, index, contentHash, version)))
}

func looksLikePDF(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return len(body) >= 4 && string(body[:4]) == "%PDF"
}

// sanitizeFilename flattens old-style ArXiv ids like math.GT/0309136 into
// one path segment.
func sanitizeFilename(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}
