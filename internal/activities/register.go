package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.PlanChunkingActivity)
	w.RegisterActivity(a.SubmitChunkrTaskActivity)
	w.RegisterActivity(a.AwaitChunkrTaskActivity)
	w.RegisterActivity(a.FetchChunkrChunksActivity)
	w.RegisterActivity(a.ExtractLocalChunksActivity)
	w.RegisterActivity(a.DemoChunksActivity)
	w.RegisterActivity(a.EmbedChunksBatchActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
	w.RegisterActivity(a.UpdateChunkEmbeddingsActivity)
	w.RegisterActivity(a.UpdatePaperStatusActivity)
	w.RegisterActivity(a.LogActivityActivity)
	w.RegisterActivity(a.DownloadPDFActivity)
	w.RegisterActivity(a.ListKBPapersActivity)
	w.RegisterActivity(a.LLMGenerateActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
	w.RegisterActivity(a.BuildConnectionGraphActivity)
	w.RegisterActivity(a.StoreKBAnalysisActivity)
	w.RegisterActivity(a.WriteKBArtifactActivity)
	w.RegisterActivity(a.ListFailedPapersActivity)
	w.RegisterActivity(a.ListChunkTextsActivity)
	w.RegisterActivity(a.ListKnowledgeBasesActivity)
	w.RegisterActivity(a.WriteRunManifestActivity)
}
