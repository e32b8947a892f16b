package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/workflows"

	"github.com/google/uuid"
	"go.temporal.io/sdk/converter"
)

type paperGetterFunc func(ctx context.Context, userID uuid.UUID, paperID string) (models.Paper, error)

func (f paperGetterFunc) GetByID(ctx context.Context, userID uuid.UUID, paperID string) (models.Paper, error) {
	return f(ctx, userID, paperID)
}

type chunkCounterFunc func(ctx context.Context, userID uuid.UUID) (map[string]int, error)

func (f chunkCounterFunc) CountByPaper(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	return f(ctx, userID)
}

type fakeIngestQuerier struct {
	calls  int
	status *workflows.IngestStatus
}

func (f *fakeIngestQuerier) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	f.calls++
	if f.status == nil {
		return nil, errors.New("workflow execution not found")
	}
	return encodedStatus{status: *f.status}, nil
}

type encodedStatus struct {
	status workflows.IngestStatus
}

func (e encodedStatus) HasValue() bool { return true }

func (e encodedStatus) Get(v interface{}) error {
	out, ok := v.(*workflows.IngestStatus)
	if !ok {
		return errors.New("unexpected query result type")
	}
	*out = e.status
	return nil
}

func TestRAGProgressRequiresPaperOwnership(t *testing.T) {
	papers := paperGetterFunc(func(context.Context, uuid.UUID, string) (models.Paper, error) {
		return models.Paper{}, errors.New("paper 2401.00001 not found")
	})
	chunks := chunkCounterFunc(func(context.Context, uuid.UUID) (map[string]int, error) {
		return nil, nil
	})
	querier := &fakeIngestQuerier{status: &workflows.IngestStatus{Status: "processing"}}

	_, code, err := ragProgress(context.Background(), papers, chunks, querier, uuid.New(), "2401.00001")
	if err == nil || code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owned paper, got code=%d err=%v", code, err)
	}
	// Workflow ids are shared across users, so the run must never be
	// queried for a paper the caller does not own.
	if querier.calls != 0 {
		t.Fatalf("workflow queried before ownership check: %d calls", querier.calls)
	}
}

func TestRAGProgressReturnsLiveWorkflowStatus(t *testing.T) {
	papers := paperGetterFunc(func(context.Context, uuid.UUID, string) (models.Paper, error) {
		return models.Paper{ID: "2401.00001", Status: "processing"}, nil
	})
	chunks := chunkCounterFunc(func(context.Context, uuid.UUID) (map[string]int, error) {
		t.Fatal("stored-state fallback should not run while the workflow is live")
		return nil, nil
	})
	querier := &fakeIngestQuerier{status: &workflows.IngestStatus{
		PaperID: "2401.00001", Status: "processing", CurrentStep: "embed_chunks",
	}}

	status, code, err := ragProgress(context.Background(), papers, chunks, querier, uuid.New(), "2401.00001")
	if err != nil || code != http.StatusOK {
		t.Fatalf("live query: code=%d err=%v", code, err)
	}
	if status.CurrentStep != "embed_chunks" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRAGProgressFallsBackToStoredState(t *testing.T) {
	papers := paperGetterFunc(func(context.Context, uuid.UUID, string) (models.Paper, error) {
		return models.Paper{ID: "2401.00001", Status: "processed"}, nil
	})
	chunks := chunkCounterFunc(func(context.Context, uuid.UUID) (map[string]int, error) {
		return map[string]int{"2401.00001": 7}, nil
	})
	querier := &fakeIngestQuerier{}

	status, code, err := ragProgress(context.Background(), papers, chunks, querier, uuid.New(), "2401.00001")
	if err != nil || code != http.StatusOK {
		t.Fatalf("fallback: code=%d err=%v", code, err)
	}
	if status.Status != "processed" || status.ChunkCount != 7 {
		t.Fatalf("unexpected fallback status: %+v", status)
	}
	if querier.calls != 1 {
		t.Fatalf("expected one workflow query attempt, got %d", querier.calls)
	}
}
