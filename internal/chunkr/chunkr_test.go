package chunkr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "test-key", 5*time.Second, time.Millisecond, 5)
}

func TestSubmitReturnsTaskID(t *testing.T) {
	var gotAuth, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotURL = req["url"]
		_, _ = w.Write([]byte(`{"id":"task-42","status":"processing"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(srv).Submit(context.Background(), "https://arxiv.org/pdf/2401.00001v2.pdf")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "task-42" {
		t.Fatalf("task id: got %q", id)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header: got %q", gotAuth)
	}
	if gotURL != "https://arxiv.org/pdf/2401.00001v2.pdf" {
		t.Fatalf("pdf url forwarded: got %q", gotURL)
	}
}

func TestSubmitRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Submit(context.Background(), "https://example.com/a.pdf")
	if err == nil || !strings.Contains(err.Error(), "chunkr submit error 401") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmitRejectsMissingTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Submit(context.Background(), "https://example.com/a.pdf")
	if err == nil || !strings.Contains(err.Error(), "no task id") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitPollsUntilCompleted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "processing"
		if calls >= 3 {
			status = "completed"
		}
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).Await(context.Background(), "task-42"); err != nil {
		t.Fatalf("await: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
}

func TestAwaitSurfacesFailedTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).Await(context.Background(), "task-42")
	if err == nil || !strings.Contains(err.Error(), "task task-42 failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitTimesOutAfterPollBudget(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).Await(context.Background(), "task-42")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected pollMax polls, got %d", calls)
	}
}

func TestChunksParsesLayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/documents/task-42/chunks") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chunks":[
			{"id":"c1","content":"Intro text","page_number":1,"section":"Introduction","bbox":[0,0,10,10]},
			{"id":"c2","content":"Method text","page_number":3,"section":"Methods","bbox":null}
		]}`))
	}))
	defer srv.Close()

	chunks, err := newTestClient(srv).Chunks(context.Background(), "task-42")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "c1" || chunks[0].PageNumber != 1 || chunks[0].Section != "Introduction" {
		t.Fatalf("first chunk: %+v", chunks[0])
	}
	if string(chunks[0].BBox) != "[0,0,10,10]" {
		t.Fatalf("bbox passthrough: %q", chunks[0].BBox)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("http://x", "", time.Second, time.Second, 1).Configured() {
		t.Fatal("empty key should not be configured")
	}
	if !NewClient("http://x", "key", time.Second, time.Second, 1).Configured() {
		t.Fatal("non-empty key should be configured")
	}
}

func TestDemoChunksDeterministic(t *testing.T) {
	a := DemoChunks("paper-1")
	b := DemoChunks("paper-1")
	if len(a) != 4 || len(b) != 4 {
		t.Fatalf("expected 4 demo chunks, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Content != b[i].Content || a[i].ID != b[i].ID {
			t.Fatalf("demo chunks not deterministic at %d", i)
		}
		if a[i].PaperID != "paper-1" {
			t.Fatalf("paper id not stamped: %+v", a[i])
		}
		if a[i].ChunkIndex != i {
			t.Fatalf("chunk index: got %d want %d", a[i].ChunkIndex, i)
		}
	}
}
