package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestToAPIErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		err    error
		code   string
	}{
		{http.StatusInternalServerError, errors.New(`ERROR: relation "papers" does not exist (SQLSTATE 42P01)`), "DE-DB-5001"},
		{http.StatusInternalServerError, errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DE-DB-5002"},
		{http.StatusInternalServerError, errors.New("failed to connect to `host=localhost`"), "DE-DB-5002"},
		{http.StatusBadGateway, errors.New("arxiv query error 503"), "DE-API-5020"},
		{http.StatusInternalServerError, errors.New("something else broke"), "DE-API-5000"},
		{http.StatusBadRequest, errors.New("query is required"), "DE-API-4001"},
		{http.StatusUnauthorized, errors.New("parse token: bad signature"), "DE-API-4010"},
		{http.StatusNotFound, errors.New("paper x not found"), "DE-API-4040"},
		{http.StatusMethodNotAllowed, errors.New("method not allowed"), "DE-API-4050"},
		{http.StatusConflict, errors.New("workflow already started"), "DE-API-4090"},
	}
	for _, tc := range cases {
		got := toAPIError(tc.status, tc.err)
		if got.Code != tc.code {
			t.Fatalf("status %d err %q: got %s want %s", tc.status, tc.err, got.Code, tc.code)
		}
	}
}

func TestToAPIErrorDetails(t *testing.T) {
	// 4xx responses carry the concrete reason, 5xx responses do not leak it
	e := toAPIError(http.StatusBadRequest, errors.New("limit must be positive"))
	if e.Details != "limit must be positive" {
		t.Fatalf("4xx details: got %q", e.Details)
	}
	e = toAPIError(http.StatusInternalServerError, errors.New("pq: permission denied"))
	if e.Details != "" {
		t.Fatalf("5xx should not expose details, got %q", e.Details)
	}
}

func TestWriteErrEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, http.StatusNotFound, errors.New("paper 123 not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if body.Error.Code != "DE-API-4040" || body.Error.Details != "paper 123 not found" {
		t.Fatalf("unexpected envelope: %+v", body.Error)
	}
}

func TestWriteErrOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, http.StatusInternalServerError, errors.New("boom"))
	if strings.Contains(rec.Body.String(), "details") {
		t.Fatalf("5xx envelope should omit details: %s", rec.Body.String())
	}
}

func TestPathParts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/papers/123/highlights/", nil)
	parts := pathParts(r, "/api/papers/")
	if len(parts) != 2 || parts[0] != "123" || parts[1] != "highlights" {
		t.Fatalf("parts: %#v", parts)
	}
	r = httptest.NewRequest(http.MethodGet, "/api/papers/", nil)
	if parts := pathParts(r, "/api/papers/"); parts != nil {
		t.Fatalf("expected nil for bare prefix, got %#v", parts)
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0, 10, 50); got != 10 {
		t.Fatalf("default: got %d", got)
	}
	if got := clampLimit(-3, 10, 50); got != 10 {
		t.Fatalf("negative: got %d", got)
	}
	if got := clampLimit(200, 10, 50); got != 50 {
		t.Fatalf("cap: got %d", got)
	}
	if got := clampLimit(25, 10, 50); got != 25 {
		t.Fatalf("passthrough: got %d", got)
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=30&bad=oops", nil)
	if got := queryInt(r, "limit", 10); got != 30 {
		t.Fatalf("parse: got %d", got)
	}
	if got := queryInt(r, "bad", 10); got != 10 {
		t.Fatalf("unparseable falls back: got %d", got)
	}
	if got := queryInt(r, "missing", 10); got != 10 {
		t.Fatalf("missing falls back: got %d", got)
	}
}

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList(" nlp , , transformers,")
	if len(got) != 2 || got[0] != "nlp" || got[1] != "transformers" {
		t.Fatalf("split: %#v", got)
	}
	if got := splitCommaList(""); len(got) != 0 {
		t.Fatalf("empty input: %#v", got)
	}
}

func TestFirstNonEmptyLine(t *testing.T) {
	if got := firstNonEmptyLine("```\n\n  ti:attention AND cat:cs.CL  \nsecond\n```"); got != "ti:attention AND cat:cs.CL" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmptyLine("\n \n"); got != "" {
		t.Fatalf("blank input: got %q", got)
	}
}

func TestExtractiveAnalysisFallbacks(t *testing.T) {
	a := extractiveAnalysis("", []string{"cs.LG"}, nil)
	if a.Summary != "No abstract available for this paper." {
		t.Fatalf("summary fallback: %q", a.Summary)
	}
	if len(a.KeyPoints) != 1 || a.KeyPoints[0] != a.Summary {
		t.Fatalf("key points should fall back to summary: %#v", a.KeyPoints)
	}

	a = extractiveAnalysis("We study transformers.", []string{"cs.LG"}, []string{"First excerpt.", "Second excerpt."})
	if a.Summary != "We study transformers." {
		t.Fatalf("summary: %q", a.Summary)
	}
	if len(a.KeyPoints) != 2 {
		t.Fatalf("key points: %#v", a.KeyPoints)
	}
	if len(a.Topics) != 1 || a.Topics[0] != "cs.LG" {
		t.Fatalf("topics passthrough: %#v", a.Topics)
	}
}

func TestExtractiveChatAnswer(t *testing.T) {
	if got := extractiveChatAnswer(nil); !strings.Contains(got, "No indexed content") {
		t.Fatalf("empty citations: %q", got)
	}
	cites := []chatCitation{
		{RefID: "C1", Snippet: "alpha"},
		{RefID: "C2", Snippet: "beta"},
		{RefID: "C3", Snippet: "gamma"},
		{RefID: "C4", Snippet: "delta"},
	}
	got := extractiveChatAnswer(cites)
	if !strings.Contains(got, "- alpha [C1]") || !strings.Contains(got, "- gamma [C3]") {
		t.Fatalf("citation lines missing:\n%s", got)
	}
	if strings.Contains(got, "C4") {
		t.Fatalf("answer should cap at three passages:\n%s", got)
	}
}

func TestWithCORS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := withCORS(inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/papers/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("origin header: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/papers/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("non-preflight should reach handler: got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("cors headers missing on normal requests")
	}
}
