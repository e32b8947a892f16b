package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/MetaHackathon/DataEngineX/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func TestPaperIngestWorkflowChunkrSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "PlanChunkingActivity", func(context.Context, activities.PlanChunkingInput) (activities.PlanChunkingOutput, error) {
		return activities.PlanChunkingOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "SubmitChunkrTaskActivity", func(context.Context, activities.SubmitChunkrTaskInput) (activities.SubmitChunkrTaskOutput, error) {
		return activities.SubmitChunkrTaskOutput{}, nil
	})
	registerActivityName(env, "AwaitChunkrTaskActivity", func(context.Context, activities.AwaitChunkrTaskInput) error { return nil })
	registerActivityName(env, "FetchChunkrChunksActivity", func(context.Context, activities.FetchChunkrChunksInput) (activities.FetchChunksOutput, error) {
		return activities.FetchChunksOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksBatchActivity", func(context.Context, activities.EmbedChunksBatchInput) (activities.EmbedChunksBatchOutput, error) {
		return activities.EmbedChunksBatchOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	registerActivityName(env, "LogActivityActivity", func(context.Context, activities.LogActivityInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	env.OnActivity("PlanChunkingActivity", mock.Anything, activities.PlanChunkingInput{PaperID: "2301.00001", UserID: "u1"}).
		Return(activities.PlanChunkingOutput{Strategy: activities.StrategyChunkr, PDFURL: "https://arxiv.org/pdf/2301.00001.pdf"}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("SubmitChunkrTaskActivity", mock.Anything, mock.Anything).Return(activities.SubmitChunkrTaskOutput{TaskID: "task1"}, nil)
	env.OnActivity("AwaitChunkrTaskActivity", mock.Anything, activities.AwaitChunkrTaskInput{TaskID: "task1"}).Return(nil)
	env.OnActivity("FetchChunkrChunksActivity", mock.Anything, mock.Anything).Return(activities.FetchChunksOutput{Chunks: []activities.ChunkItem{
		{ChunkID: "c1", PaperID: "2301.00001", ChunkIndex: 0, Text: "intro"},
		{ChunkID: "c2", PaperID: "2301.00001", ChunkIndex: 1, Text: "method"},
	}}, nil)
	env.OnActivity("EmbedChunksBatchActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksBatchOutput{
		Vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}, ProviderName: "mock", Model: "mock",
	}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogActivityActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "2301.00001", UserID: "u1", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestPaperIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "PlanChunkingActivity", func(context.Context, activities.PlanChunkingInput) (activities.PlanChunkingOutput, error) {
		return activities.PlanChunkingOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "DemoChunksActivity", func(context.Context, activities.DemoChunksInput) (activities.FetchChunksOutput, error) {
		return activities.FetchChunksOutput{}, nil
	})

	env.OnActivity("PlanChunkingActivity", mock.Anything, mock.Anything).Return(activities.PlanChunkingOutput{Strategy: activities.StrategyDemo}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DemoChunksActivity", mock.Anything, mock.Anything).Return(activities.FetchChunksOutput{}, errors.New("no extractable text found in PDF"))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "2301.00002", UserID: "u1", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestPaperIngestWorkflowStoresChunksWhenEmbeddingExhausted(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "PlanChunkingActivity", func(context.Context, activities.PlanChunkingInput) (activities.PlanChunkingOutput, error) {
		return activities.PlanChunkingOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "DemoChunksActivity", func(context.Context, activities.DemoChunksInput) (activities.FetchChunksOutput, error) {
		return activities.FetchChunksOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksBatchActivity", func(context.Context, activities.EmbedChunksBatchInput) (activities.EmbedChunksBatchOutput, error) {
		return activities.EmbedChunksBatchOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	registerActivityName(env, "LogActivityActivity", func(context.Context, activities.LogActivityInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	env.OnActivity("PlanChunkingActivity", mock.Anything, mock.Anything).Return(activities.PlanChunkingOutput{Strategy: activities.StrategyDemo}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DemoChunksActivity", mock.Anything, mock.Anything).Return(activities.FetchChunksOutput{Chunks: []activities.ChunkItem{
		{ChunkID: "c1", PaperID: "p1", ChunkIndex: 0, Text: "body"},
	}}, nil)
	env.OnActivity("EmbedChunksBatchActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksBatchOutput{}, errors.New("quota exceeded"))
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	var stored activities.UpsertChunksInput
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(activities.UpsertChunksInput)
	}).Return(nil)
	env.OnActivity("LogActivityActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p1", UserID: "u1", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
	require.Len(t, stored.Chunks, 1)
	require.Empty(t, stored.Vectors)
}

func TestPaperDownloadWorkflowChainsIntoIngest(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperDownloadWorkflow)
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "DownloadPDFActivity", func(context.Context, activities.DownloadPDFInput) (activities.DownloadPDFOutput, error) {
		return activities.DownloadPDFOutput{}, nil
	})
	registerActivityName(env, "PlanChunkingActivity", func(context.Context, activities.PlanChunkingInput) (activities.PlanChunkingOutput, error) {
		return activities.PlanChunkingOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "DemoChunksActivity", func(context.Context, activities.DemoChunksInput) (activities.FetchChunksOutput, error) {
		return activities.FetchChunksOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksBatchActivity", func(context.Context, activities.EmbedChunksBatchInput) (activities.EmbedChunksBatchOutput, error) {
		return activities.EmbedChunksBatchOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	registerActivityName(env, "LogActivityActivity", func(context.Context, activities.LogActivityInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	var statuses []string
	env.OnActivity("DownloadPDFActivity", mock.Anything, activities.DownloadPDFInput{
		PaperID: "p1", UserID: "u1", URL: "https://arxiv.org/pdf/p1.pdf",
	}).Return(activities.DownloadPDFOutput{Path: "/data/library/p1.pdf"}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		statuses = append(statuses, args.Get(1).(activities.UpdatePaperStatusInput).Status)
	}).Return(nil)
	env.OnActivity("PlanChunkingActivity", mock.Anything, mock.Anything).Return(activities.PlanChunkingOutput{Strategy: activities.StrategyDemo}, nil)
	env.OnActivity("DemoChunksActivity", mock.Anything, mock.Anything).Return(activities.FetchChunksOutput{Chunks: []activities.ChunkItem{
		{ChunkID: "c1", PaperID: "p1", ChunkIndex: 0, Text: "body"},
	}}, nil)
	env.OnActivity("EmbedChunksBatchActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksBatchOutput{
		Vectors: [][]float32{{0.1}}, ProviderName: "mock", Model: "mock",
	}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogActivityActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperDownloadWorkflow, PaperDownloadInput{
		PaperID: "p1", UserID: "u1", URL: "https://arxiv.org/pdf/p1.pdf",
		EmbedProviders: 1, CooldownSeconds: 10,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
	require.Contains(t, statuses, "ready")
}

func TestPaperDownloadWorkflowMarksDownloadFailed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperDownloadWorkflow)
	registerActivityName(env, "DownloadPDFActivity", func(context.Context, activities.DownloadPDFInput) (activities.DownloadPDFOutput, error) {
		return activities.DownloadPDFOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })

	env.OnActivity("DownloadPDFActivity", mock.Anything, mock.Anything).Return(activities.DownloadPDFOutput{}, errors.New("upstream content is not a PDF"))

	var statuses []string
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		statuses = append(statuses, args.Get(1).(activities.UpdatePaperStatusInput).Status)
	}).Return(nil)

	env.ExecuteWorkflow(PaperDownloadWorkflow, PaperDownloadInput{PaperID: "p1", UserID: "u1", URL: "https://example.com/x.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "download_failed", out)
	require.Equal(t, []string{"download_failed"}, statuses)
}

func TestKnowledgeBaseAnalysisWorkflowAnalysis(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(KnowledgeBaseAnalysisWorkflow)
	registerActivityName(env, "ListKBPapersActivity", func(context.Context, activities.ListKBPapersInput) (activities.ListKBPapersOutput, error) {
		return activities.ListKBPapersOutput{}, nil
	})
	registerActivityName(env, "LLMGenerateActivity", func(context.Context, activities.LLMGenerateInput) (activities.LLMGenerateOutput, error) {
		return activities.LLMGenerateOutput{}, nil
	})
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })
	registerActivityName(env, "StoreKBAnalysisActivity", func(context.Context, activities.StoreKBAnalysisInput) (activities.StoreKBAnalysisOutput, error) {
		return activities.StoreKBAnalysisOutput{}, nil
	})
	registerActivityName(env, "WriteKBArtifactActivity", func(context.Context, activities.WriteKBArtifactInput) (activities.WriteKBArtifactOutput, error) {
		return activities.WriteKBArtifactOutput{}, nil
	})
	registerActivityName(env, "LogActivityActivity", func(context.Context, activities.LogActivityInput) error { return nil })

	env.OnActivity("ListKBPapersActivity", mock.Anything, mock.Anything).Return(activities.ListKBPapersOutput{
		Name: "Transformers",
		Papers: []activities.KBPaper{
			{PaperID: "p1", Title: "Paper One", Abstract: "First abstract."},
			{PaperID: "p2", Title: "Paper Two", Abstract: "Second abstract."},
		},
	}, nil)
	env.OnActivity("LLMGenerateActivity", mock.Anything, mock.Anything).Return(activities.LLMGenerateOutput{Text: "Generated text.", ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	var stored activities.StoreKBAnalysisInput
	env.OnActivity("StoreKBAnalysisActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(activities.StoreKBAnalysisInput)
	}).Return(activities.StoreKBAnalysisOutput{AnalysisID: "analysis-1"}, nil)
	env.OnActivity("WriteKBArtifactActivity", mock.Anything, mock.Anything).Return(activities.WriteKBArtifactOutput{Path: "/tmp/a.json"}, nil)
	env.OnActivity("LogActivityActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(KnowledgeBaseAnalysisWorkflow, KBAnalysisInput{KnowledgeBaseID: "kb1", UserID: "u1", Kind: "analysis", LLMProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "analysis-1", out)
	require.Equal(t, "analysis", stored.Kind)
	require.Equal(t, "Generated text.", stored.Payload["summary"])
	require.EqualValues(t, 2, stored.Payload["paper_count"])
}

func TestKnowledgeBaseAnalysisWorkflowRejectsUnknownKind(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(KnowledgeBaseAnalysisWorkflow)

	env.ExecuteWorkflow(KnowledgeBaseAnalysisWorkflow, KBAnalysisInput{KnowledgeBaseID: "kb1", UserID: "u1", Kind: "charts"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestBackfillWorkflowRejectsUnknownMode(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{UserID: "u1", Mode: "DROP_EVERYTHING"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestBackfillWorkflowReembedAllChunks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)
	registerActivityName(env, "ListChunkTextsActivity", func(context.Context, activities.ListChunkTextsInput) (activities.ListChunkTextsOutput, error) {
		return activities.ListChunkTextsOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksBatchActivity", func(context.Context, activities.EmbedChunksBatchInput) (activities.EmbedChunksBatchOutput, error) {
		return activities.EmbedChunksBatchOutput{}, nil
	})
	registerActivityName(env, "UpdateChunkEmbeddingsActivity", func(context.Context, activities.UpdateChunkEmbeddingsInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })
	registerActivityName(env, "WriteRunManifestActivity", func(context.Context, activities.WriteRunManifestInput) (activities.WriteRunManifestOutput, error) {
		return activities.WriteRunManifestOutput{}, nil
	})

	env.OnActivity("ListChunkTextsActivity", mock.Anything, mock.Anything).Return(activities.ListChunkTextsOutput{Chunks: []activities.ChunkItem{
		{ChunkID: "c1", PaperID: "p1", ChunkIndex: 0, Text: "alpha"},
		{ChunkID: "c2", PaperID: "p1", ChunkIndex: 1, Text: "beta"},
	}}, nil)
	env.OnActivity("EmbedChunksBatchActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksBatchOutput{
		Vectors: [][]float32{{0.1}, {0.2}}, ProviderName: "mock", Model: "mock",
	}, nil)

	var updated activities.UpdateChunkEmbeddingsInput
	env.OnActivity("UpdateChunkEmbeddingsActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(1).(activities.UpdateChunkEmbeddingsInput)
	}).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	var manifest activities.WriteRunManifestInput
	env.OnActivity("WriteRunManifestActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		manifest = args.Get(1).(activities.WriteRunManifestInput)
	}).Return(activities.WriteRunManifestOutput{Path: "/tmp/manifest.json"}, nil)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{UserID: "u1", Mode: "reembed_all_chunks", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "/tmp/manifest.json", out)
	require.Equal(t, []string{"c1", "c2"}, updated.ChunkIDs)
	require.EqualValues(t, 2, manifest.Manifest["reembedded_chunks"])
	require.Equal(t, "reembed_all_chunks", manifest.Manifest["mode"])
}
