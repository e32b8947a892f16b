package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/MetaHackathon/DataEngineX/internal/activities"
	"github.com/MetaHackathon/DataEngineX/internal/graph"
	"github.com/MetaHackathon/DataEngineX/internal/providers"
)

const (
	QueryGetIngestStatus = "GetIngestStatus"
	QueryGetKBProgress   = "GetKBProgress"
)

// IngestWorkflowID is the deterministic workflow id for one paper's ingest
// run. The API queries progress by rebuilding the same id.
func IngestWorkflowID(paperID string) string {
	return "ingest-" + sanitizeID(paperID)
}

func KBAnalysisWorkflowID(kind, kbID string) string {
	return "kb-" + kind + "-" + sanitizeID(kbID)
}

func DownloadWorkflowID(paperID string) string {
	return "download-" + sanitizeID(paperID)
}

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// PaperIngestWorkflow chunks one saved paper, embeds the chunks, and
// stores them. Papers with nothing to extract end as failed without
// failing the workflow; exhausted embedding providers degrade to storing
// chunks unembedded.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	status := IngestStatus{
		PaperID:     input.PaperID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
		RetryCounts: map[string]int{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	version := defaultEmbedVersion(input.EmbedVersion)

	status.CurrentStep = "plan_chunking"
	status.Steps[status.CurrentStep] = "processing"
	var plan activities.PlanChunkingOutput
	if err := workflow.ExecuteActivity(ctx, "PlanChunkingActivity", activities.PlanChunkingInput{
		PaperID: input.PaperID,
		UserID:  input.UserID,
	}).Get(ctx, &plan); err != nil {
		return "", err
	}
	status.Strategy = plan.Strategy
	status.Steps[status.CurrentStep] = "done"

	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, UserID: input.UserID, Status: "processing",
	}).Get(ctx, nil)

	status.CurrentStep = "fetch_chunks"
	status.Steps[status.CurrentStep] = "processing"
	var fetched activities.FetchChunksOutput
	var fetchErr error
	switch plan.Strategy {
	case activities.StrategyChunkr:
		var submit activities.SubmitChunkrTaskOutput
		fetchErr = workflow.ExecuteActivity(ctx, "SubmitChunkrTaskActivity", activities.SubmitChunkrTaskInput{
			PaperID: input.PaperID, PDFURL: plan.PDFURL,
		}).Get(ctx, &submit)
		if fetchErr == nil {
			fetchErr = workflow.ExecuteActivity(ctx, "AwaitChunkrTaskActivity", activities.AwaitChunkrTaskInput{TaskID: submit.TaskID}).Get(ctx, nil)
		}
		if fetchErr == nil {
			fetchErr = workflow.ExecuteActivity(ctx, "FetchChunkrChunksActivity", activities.FetchChunkrChunksInput{
				PaperID: input.PaperID, UserID: input.UserID, TaskID: submit.TaskID, Version: version,
			}).Get(ctx, &fetched)
		}
	case activities.StrategyLocal:
		fetchErr = workflow.ExecuteActivity(ctx, "ExtractLocalChunksActivity", activities.ExtractLocalChunksInput{
			PaperID:      input.PaperID,
			UserID:       input.UserID,
			PDFPath:      plan.PDFPath,
			ChunkSize:    input.ChunkSize,
			ChunkOverlap: input.ChunkOverlap,
			Version:      version,
		}).Get(ctx, &fetched)
	default:
		fetchErr = workflow.ExecuteActivity(ctx, "DemoChunksActivity", activities.DemoChunksInput{
			PaperID: input.PaperID, UserID: input.UserID, Version: version,
		}).Get(ctx, &fetched)
	}
	if fetchErr != nil {
		status.Status = "failed"
		status.Steps[status.CurrentStep] = "failed"
		if isNoTextError(fetchErr) {
			status.FailReason = "no extractable text found"
		} else {
			status.FailReason = "chunking failed: " + shortReason(fetchErr)
		}
		_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID: input.PaperID, UserID: input.UserID, Status: "failed",
		}).Get(ctx, nil)
		return status.Status, nil
	}
	status.ChunkCount = len(fetched.Chunks)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	batch := input.EmbedBatchSize
	if batch <= 0 {
		batch = 16
	}
	providerCount := defaultCount(input.EmbedProviders)
	cooldown := durationOrDefault(input.CooldownSeconds, 1800)
	state := newProviderState()
	vectors := make([][]float32, 0, len(fetched.Chunks))
	embedExhausted := false
	for i := 0; i < len(fetched.Chunks); i += batch {
		end := i + batch
		if end > len(fetched.Chunks) {
			end = len(fetched.Chunks)
		}
		out, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksBatchInput{
			Operation: "embed_chunks",
			PaperID:   input.PaperID,
			UserID:    input.UserID,
			Input:     fetched.Chunks[i:end],
		}, status.RetryCounts)
		if err != nil {
			embedExhausted = true
			break
		}
		vectors = append(vectors, out.Vectors...)
		status.Providers = appendUnique(status.Providers, out.ProviderName)
	}
	if embedExhausted {
		status.Steps[status.CurrentStep] = "failed"
	} else {
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "store_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		PaperID:          input.PaperID,
		UserID:           input.UserID,
		Chunks:           fetched.Chunks,
		Vectors:          vectors,
		EmbeddingVersion: version,
	}).Get(ctx, nil); err != nil {
		if isInvalidTextEncodingError(err) {
			status.Status = "failed"
			status.FailReason = "paper contains invalid text encoding after extraction"
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
				PaperID: input.PaperID, UserID: input.UserID, Status: "failed",
			}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "log_activity"
	_ = workflow.ExecuteActivity(ctx, "LogActivityActivity", activities.LogActivityInput{
		UserID: input.UserID,
		Action: "paper_indexed",
		Data: map[string]any{
			"paper_id": input.PaperID,
			"chunks":   len(fetched.Chunks),
			"strategy": plan.Strategy,
		},
	}).Get(ctx, nil)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_processed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, UserID: input.UserID, Status: "processed",
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "processed"
	return status.Status, nil
}

// PaperDownloadWorkflow fetches the PDF into the library, then continues
// into chunking as a child ingest run.
func PaperDownloadWorkflow(ctx workflow.Context, input PaperDownloadInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var dl activities.DownloadPDFOutput
	if err := workflow.ExecuteActivity(ctx, "DownloadPDFActivity", activities.DownloadPDFInput{
		PaperID: input.PaperID, UserID: input.UserID, URL: input.URL,
	}).Get(ctx, &dl); err != nil {
		_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID: input.PaperID, UserID: input.UserID, Status: "download_failed",
		}).Get(ctx, nil)
		return "download_failed", nil
	}
	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, UserID: input.UserID, Status: "ready",
	}).Get(ctx, nil)

	cwo := workflow.ChildWorkflowOptions{WorkflowID: IngestWorkflowID(input.PaperID)}
	childCtx := workflow.WithChildOptions(ctx, cwo)
	var out string
	if err := workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{
		PaperID:         input.PaperID,
		UserID:          input.UserID,
		ChunkSize:       input.ChunkSize,
		ChunkOverlap:    input.ChunkOverlap,
		EmbedVersion:    input.EmbedVersion,
		EmbedBatchSize:  input.EmbedBatchSize,
		EmbedProviders:  input.EmbedProviders,
		CooldownSeconds: input.CooldownSeconds,
	}).Get(ctx, &out); err != nil {
		return "", err
	}
	return out, nil
}

// KnowledgeBaseAnalysisWorkflow summarizes every paper in a knowledge
// base and synthesizes one stored analysis row of the requested kind.
func KnowledgeBaseAnalysisWorkflow(ctx workflow.Context, input KBAnalysisInput) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	switch kind {
	case "analysis", "connections", "insights":
	default:
		return "", fmt.Errorf("unsupported analysis kind: %s", input.Kind)
	}

	progress := KBProgress{
		KnowledgeBaseID: input.KnowledgeBaseID,
		Kind:            kind,
		Status:          "running",
		CurrentStep:     "init",
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetKBProgress, func() (KBProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	progress.CurrentStep = "list_papers"
	var kb activities.ListKBPapersOutput
	if err := workflow.ExecuteActivity(ctx, "ListKBPapersActivity", activities.ListKBPapersInput{
		KnowledgeBaseID: input.KnowledgeBaseID, UserID: input.UserID,
	}).Get(ctx, &kb); err != nil {
		return "", err
	}
	progress.TotalPapers = len(kb.Papers)

	llmProviders := defaultCount(input.LLMProviders)
	cooldown := durationOrDefault(input.CooldownSeconds, 1800)
	state := newProviderState()

	progress.CurrentStep = "summarize_papers"
	summaries := make([]graph.PaperSummary, 0, len(kb.Papers))
	for _, p := range kb.Papers {
		out, _, err := callLLMWithFailover(ctx, &state, llmProviders, cooldown, activities.LLMGenerateInput{
			Operation:       "kb_paper_summary",
			UserID:          input.UserID,
			KnowledgeBaseID: input.KnowledgeBaseID,
			PaperID:         p.PaperID,
			Prompt:          "Summarize the key contribution of the paper \"" + p.Title + "\" in two sentences.",
			Context:         []string{p.Abstract},
		}, nil)
		summary := strings.TrimSpace(out.Text)
		if err != nil || summary == "" {
			summary = fallbackSummary(p.Abstract)
		}
		summaries = append(summaries, graph.PaperSummary{ID: p.PaperID, Title: p.Title, Summary: summary})
		progress.DonePapers++
	}

	progress.CurrentStep = "synthesize"
	payload := map[string]any{
		"kind":           kind,
		"knowledge_base": kb.Name,
		"paper_count":    len(kb.Papers),
		"generated_at":   workflow.Now(ctx),
	}
	switch kind {
	case "connections":
		raw := ""
		if len(summaries) > 1 {
			out, _, err := callLLMWithFailover(ctx, &state, llmProviders, cooldown, activities.LLMGenerateInput{
				Operation:       "kb_connections",
				UserID:          input.UserID,
				KnowledgeBaseID: input.KnowledgeBaseID,
				Prompt:          graph.BuildConnectionPrompt(summaries),
			}, nil)
			if err == nil {
				raw = out.Text
			}
		}
		var graphOut activities.BuildConnectionGraphOutput
		if err := workflow.ExecuteActivity(ctx, "BuildConnectionGraphActivity", activities.BuildConnectionGraphInput{
			KnowledgeBaseID: input.KnowledgeBaseID,
			UserID:          input.UserID,
			MinWeight:       minWeightOrDefault(input.MinWeight),
			RawConnections:  raw,
		}).Get(ctx, &graphOut); err != nil {
			return "", err
		}
		payload["graph"] = graphOut.Graph
		payload["connection_count"] = len(graphOut.Graph.Edges)
	case "insights":
		out, _, err := callLLMWithFailover(ctx, &state, llmProviders, cooldown, activities.LLMGenerateInput{
			Operation:       "kb_insights",
			UserID:          input.UserID,
			KnowledgeBaseID: input.KnowledgeBaseID,
			Prompt:          "List 3-5 actionable research insights for the collection \"" + kb.Name + "\". For each insight give a short title and one sentence of rationale.",
			Context:         summaryContext(summaries),
		}, nil)
		text := strings.TrimSpace(out.Text)
		if err != nil || text == "" {
			text = "No insights generated."
		}
		payload["insights"] = text
		payload["papers"] = summaries
	default:
		out, _, err := callLLMWithFailover(ctx, &state, llmProviders, cooldown, activities.LLMGenerateInput{
			Operation:       "kb_analysis",
			UserID:          input.UserID,
			KnowledgeBaseID: input.KnowledgeBaseID,
			Prompt:          "Analyze the research collection \"" + kb.Name + "\". Describe the main themes, how the papers relate, and open gaps. Answer in short paragraphs.",
			Context:         summaryContext(summaries),
		}, nil)
		text := strings.TrimSpace(out.Text)
		if err != nil || text == "" {
			text = "No analysis generated."
		}
		payload["summary"] = text
		payload["papers"] = summaries
	}

	progress.CurrentStep = "store"
	var stored activities.StoreKBAnalysisOutput
	if err := workflow.ExecuteActivity(ctx, "StoreKBAnalysisActivity", activities.StoreKBAnalysisInput{
		KnowledgeBaseID: input.KnowledgeBaseID,
		UserID:          input.UserID,
		Kind:            kind,
		Payload:         payload,
	}).Get(ctx, &stored); err != nil {
		return "", err
	}
	_ = workflow.ExecuteActivity(ctx, "WriteKBArtifactActivity", activities.WriteKBArtifactInput{
		KnowledgeBaseID: input.KnowledgeBaseID,
		Kind:            kind,
		Payload:         payload,
	}).Get(ctx, nil)
	_ = workflow.ExecuteActivity(ctx, "LogActivityActivity", activities.LogActivityInput{
		UserID: input.UserID,
		Action: "knowledge_base_analyzed",
		Data:   map[string]any{"knowledge_base_id": input.KnowledgeBaseID, "kind": kind},
	}).Get(ctx, nil)

	progress.CurrentStep = "done"
	progress.Status = "completed"
	return stored.AnalysisID, nil
}

// BackfillWorkflow reprocesses stored data: retry failed papers, re-embed
// every chunk, or regenerate knowledge-base analyses.
func BackfillWorkflow(ctx workflow.Context, input BackfillInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	info := workflow.GetInfo(ctx)
	runID := info.WorkflowExecution.RunID
	manifest := map[string]any{
		"run_id":        runID,
		"mode":          input.Mode,
		"user_id":       input.UserID,
		"embed_version": defaultEmbedVersion(input.EmbedVersion),
		"started_at":    workflow.Now(ctx),
	}

	switch strings.ToUpper(strings.TrimSpace(input.Mode)) {
	case "RETRY_FAILED_PAPERS":
		var failed activities.ListFailedPapersOutput
		if err := workflow.ExecuteActivity(ctx, "ListFailedPapersActivity", activities.ListFailedPapersInput{UserID: input.UserID}).Get(ctx, &failed); err != nil {
			return "", err
		}
		maxChildren := input.MaxChildren
		if maxChildren <= 0 {
			maxChildren = 4
		}
		retried := 0
		for i := 0; i < len(failed.Papers); i += maxChildren {
			end := i + maxChildren
			if end > len(failed.Papers) {
				end = len(failed.Papers)
			}
			futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
			for _, p := range failed.Papers[i:end] {
				cwo := workflow.ChildWorkflowOptions{WorkflowID: IngestWorkflowID(p.PaperID)}
				childCtx := workflow.WithChildOptions(ctx, cwo)
				futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{
					PaperID:         p.PaperID,
					UserID:          input.UserID,
					EmbedVersion:    input.EmbedVersion,
					EmbedBatchSize:  input.EmbedBatchSize,
					EmbedProviders:  input.EmbedProviders,
					CooldownSeconds: input.CooldownSeconds,
				}))
			}
			for _, f := range futures {
				var out string
				if err := f.Get(ctx, &out); err == nil && out == "processed" {
					retried++
				}
			}
		}
		manifest["total_failed"] = len(failed.Papers)
		manifest["reprocessed"] = retried
	case "REEMBED_ALL_CHUNKS":
		var all activities.ListChunkTextsOutput
		if err := workflow.ExecuteActivity(ctx, "ListChunkTextsActivity", activities.ListChunkTextsInput{UserID: input.UserID}).Get(ctx, &all); err != nil {
			return "", err
		}
		batch := input.EmbedBatchSize
		if batch <= 0 {
			batch = 16
		}
		providerCount := defaultCount(input.EmbedProviders)
		cooldown := durationOrDefault(input.CooldownSeconds, 1800)
		state := newProviderState()
		version := defaultEmbedVersion(input.EmbedVersion)
		reembedded := 0
		for i := 0; i < len(all.Chunks); i += batch {
			end := i + batch
			if end > len(all.Chunks) {
				end = len(all.Chunks)
			}
			out, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksBatchInput{
				Operation: "reembed_chunks",
				UserID:    input.UserID,
				Input:     all.Chunks[i:end],
			}, nil)
			if err != nil {
				break
			}
			ids := make([]string, 0, end-i)
			for _, c := range all.Chunks[i:end] {
				ids = append(ids, c.ChunkID)
			}
			if err := workflow.ExecuteActivity(ctx, "UpdateChunkEmbeddingsActivity", activities.UpdateChunkEmbeddingsInput{
				UserID:           input.UserID,
				ChunkIDs:         ids,
				Vectors:          out.Vectors,
				EmbeddingVersion: version,
			}).Get(ctx, nil); err != nil {
				return "", err
			}
			reembedded += len(ids)
		}
		manifest["total_chunks"] = len(all.Chunks)
		manifest["reembedded_chunks"] = reembedded
	case "REGENERATE_KB_ANALYSES":
		var kbs activities.ListKnowledgeBasesOutput
		if err := workflow.ExecuteActivity(ctx, "ListKnowledgeBasesActivity", activities.ListKnowledgeBasesInput{UserID: input.UserID}).Get(ctx, &kbs); err != nil {
			return "", err
		}
		regenerated := 0
		for _, id := range kbs.IDs {
			cwo := workflow.ChildWorkflowOptions{WorkflowID: KBAnalysisWorkflowID("analysis", id)}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			var out string
			if err := workflow.ExecuteChildWorkflow(childCtx, KnowledgeBaseAnalysisWorkflow, KBAnalysisInput{
				KnowledgeBaseID: id,
				UserID:          input.UserID,
				Kind:            "analysis",
				LLMProviders:    input.LLMProviders,
				CooldownSeconds: input.CooldownSeconds,
			}).Get(ctx, &out); err == nil {
				regenerated++
			}
		}
		manifest["total_knowledge_bases"] = len(kbs.IDs)
		manifest["regenerated"] = regenerated
	default:
		return "", fmt.Errorf("unsupported backfill mode: %s", input.Mode)
	}

	var out activities.WriteRunManifestOutput
	if err := workflow.ExecuteActivity(ctx, "WriteRunManifestActivity", activities.WriteRunManifestInput{
		RunID:    runID,
		Manifest: manifest,
	}).Get(ctx, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksBatchInput, retryCounts map[string]int) (activities.EmbedChunksBatchOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksBatchOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksBatchActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
				UserID:      input.UserID,
				Operation:   input.Operation,
				Provider:    out.ProviderName,
				Model:       out.Model,
				OutputChars: len(out.Vectors),
				Status:      "ok",
			}).Get(ctx, nil)
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
			UserID:    input.UserID,
			Operation: input.Operation,
			Provider:  fmt.Sprintf("provider-%d", idx),
			Status:    "failed",
			Error:     string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedChunksBatchOutput{}, lastErr
}

func callLLMWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.LLMGenerateInput, retryCounts map[string]int) (activities.LLMGenerateOutput, string, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.LLMGenerateOutput
		err := workflow.ExecuteActivity(ctx, "LLMGenerateActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
				UserID:      input.UserID,
				Operation:   input.Operation,
				Provider:    out.ProviderName,
				Model:       out.Model,
				PromptChars: len(input.Prompt),
				OutputChars: len(out.Text),
				Status:      "ok",
			}).Get(ctx, nil)
			return out, "", nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
			UserID:      input.UserID,
			Operation:   input.Operation,
			Provider:    fmt.Sprintf("provider-%d", idx),
			PromptChars: len(input.Prompt),
			Status:      "failed",
			Error:       string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("llm-%s-%d", input.Operation, idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		case providers.ErrorContext:
			return activities.LLMGenerateOutput{}, string(providers.ErrorContext), err
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all llm providers exhausted")
	}
	return activities.LLMGenerateOutput{}, string(providers.ClassifyError(lastErr)), lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func defaultEmbedVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "v1"
	}
	return v
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isInvalidTextEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func summaryContext(summaries []graph.PaperSummary) []string {
	out := make([]string, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, fmt.Sprintf("[%s] %s: %s", s.ID, s.Title, s.Summary))
	}
	return out
}

func fallbackSummary(abstract string) string {
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return "No abstract available."
	}
	runes := []rune(abstract)
	if len(runes) > 300 {
		return string(runes[:300]) + "..."
	}
	return abstract
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func minWeightOrDefault(w float64) float64 {
	if w <= 0 {
		return 0.2
	}
	return w
}

func shortReason(err error) string {
	msg := err.Error()
	if len(msg) > 160 {
		msg = msg[:160]
	}
	return msg
}
