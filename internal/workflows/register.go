package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(PaperIngestWorkflow)
	w.RegisterWorkflow(PaperDownloadWorkflow)
	w.RegisterWorkflow(KnowledgeBaseAnalysisWorkflow)
	w.RegisterWorkflow(BackfillWorkflow)
}
