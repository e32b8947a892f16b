package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v2</id>
    <title>Attention  Is
 All   You Need</title>
    <summary>  We propose a new
   architecture. </summary>
    <published>2024-01-05T00:00:00Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>  </name></author>
    <category term="cs.LG"/>
    <category term="stat.ML"/>
  </entry>
  <entry>
    <id></id>
    <title>Entry Without ID</title>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, 5*time.Second)
}

func TestSearchNormalizesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	papers, err := newTestClient(srv).Search(context.Background(), "attention", 0, 10, "", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected the id-less entry to be skipped, got %d papers", len(papers))
	}
	p := papers[0]
	if p.ID != "2401.00001v2" {
		t.Fatalf("id: got %q", p.ID)
	}
	if p.Title != "Attention Is All You Need" {
		t.Fatalf("title not collapsed: %q", p.Title)
	}
	if p.Abstract != "We propose a new architecture." {
		t.Fatalf("abstract not collapsed: %q", p.Abstract)
	}
	if p.Year != 2024 {
		t.Fatalf("year: got %d", p.Year)
	}
	if p.Impact != "high" {
		t.Fatalf("recent major-category paper should be high impact, got %q", p.Impact)
	}
	if p.URL != "https://arxiv.org/pdf/2401.00001v2.pdf" {
		t.Fatalf("pdf url: got %q", p.URL)
	}
	if len(p.Authors) != 1 || p.Authors[0] != "Ashish Vaswani" {
		t.Fatalf("authors: got %#v", p.Authors)
	}
	if len(p.Topics) != 2 || p.Topics[0] != "cs.LG" {
		t.Fatalf("topics: got %#v", p.Topics)
	}
}

func TestSearchQueryPrefixing(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("search_query"))
		_, _ = w.Write([]byte(emptyFeed))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Search(context.Background(), "graph networks", 0, 5, "", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := newTestClient(srv).Search(context.Background(), "cat:cs.CL", 0, 5, "", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	if queries[0] != "all:graph networks" {
		t.Fatalf("free-form query should get all: prefix, got %q", queries[0])
	}
	if queries[1] != "cat:cs.CL" {
		t.Fatalf("field query should pass through, got %q", queries[1])
	}
}

func TestSearchDefaultsSortParams(t *testing.T) {
	var sortBy, sortOrder string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sortBy = r.URL.Query().Get("sortBy")
		sortOrder = r.URL.Query().Get("sortOrder")
		_, _ = w.Write([]byte(emptyFeed))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Search(context.Background(), "x", 0, 5, "", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	if sortBy != "relevance" || sortOrder != "descending" {
		t.Fatalf("defaults: sortBy=%q sortOrder=%q", sortBy, sortOrder)
	}
}

func TestSearchRetriesOnceOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	papers, err := newTestClient(srv).Search(context.Background(), "x", 0, 5, "", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry after 429, got %d calls", calls)
	}
	if len(papers) != 1 {
		t.Fatalf("expected papers from retried response, got %d", len(papers))
	}
}

func TestSearchReportsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend unavailable\nsecond line"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "x", 0, 5, "", "")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(err.Error(), "arxiv query error 500") || !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestByIDUsesIDList(t *testing.T) {
	var idList string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idList = r.URL.Query().Get("id_list")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	p, err := newTestClient(srv).ByID(context.Background(), " 2401.00001v2 ")
	if err != nil {
		t.Fatalf("byid: %v", err)
	}
	if idList != "2401.00001v2" {
		t.Fatalf("id_list param: got %q", idList)
	}
	if p == nil || p.ID != "2401.00001v2" {
		t.Fatalf("unexpected paper: %+v", p)
	}
}

func TestByIDReturnsNilWhenUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(emptyFeed))
	}))
	defer srv.Close()

	p, err := newTestClient(srv).ByID(context.Background(), "0000.00000")
	if err != nil {
		t.Fatalf("byid: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil for unknown id, got %+v", p)
	}
}

func TestNormalizeEntryYearFallbackAndImpact(t *testing.T) {
	p, ok := normalizeEntry(entry{
		ID:         "http://arxiv.org/abs/2507.12345v1",
		Title:      "Old-Style Survey",
		Categories: []category{{Term: "cs.CV"}},
	})
	if !ok {
		t.Fatal("entry with id should normalize")
	}
	if p.Year != time.Now().Year() {
		t.Fatalf("missing published date should fall back to current year, got %d", p.Year)
	}
	if p.Impact != "low" {
		t.Fatalf("non-major category should stay low impact, got %q", p.Impact)
	}
}
