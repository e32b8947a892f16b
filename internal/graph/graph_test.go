package graph

import (
	"strings"
	"testing"
)

func TestCanonicalTopic(t *testing.T) {
	cases := map[string]string{
		" Machine_Learning ":  "machine learning",
		"Deep   Learning":     "deep learning",
		"cs.LG":               "cs.lg",
		"reinforcement_learn": "reinforcement learn",
	}
	for in, want := range cases {
		if got := CanonicalTopic(in); got != want {
			t.Fatalf("canonical %q: got %q want %q", in, got, want)
		}
	}
}

func TestBuildBlendsTopicAndVectorSignals(t *testing.T) {
	g := Build([]PaperInput{
		{ID: "p1", Title: "A", Topics: []string{"x", "y"}, Centroid: []float32{1, 0}},
		{ID: "p2", Title: "B", Topics: []string{"y", "z"}, Centroid: []float32{1, 0}},
	}, 0.2)

	if len(g.Nodes) != 2 {
		t.Fatalf("nodes: got %d", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges: got %d", len(g.Edges))
	}
	e := g.Edges[0]
	// jaccard 1/3 and cosine 1.0 average to 0.667 after rounding
	if e.Weight != 0.667 {
		t.Fatalf("blended weight: got %v", e.Weight)
	}
	if len(e.SharedTopics) != 1 || e.SharedTopics[0] != "y" {
		t.Fatalf("shared topics: %#v", e.SharedTopics)
	}
}

func TestBuildTopicsOnlyAndThreshold(t *testing.T) {
	g := Build([]PaperInput{
		{ID: "p1", Topics: []string{"a", "b"}},
		{ID: "p2", Topics: []string{"b", "c"}},
		{ID: "p3", Topics: []string{"q"}},
	}, 0.2)

	if len(g.Edges) != 1 {
		t.Fatalf("expected only the overlapping pair, got %d edges", len(g.Edges))
	}
	if g.Edges[0].Weight != 0.333 {
		t.Fatalf("jaccard-only weight: got %v", g.Edges[0].Weight)
	}
	if g.Edges[0].Source != "p1" || g.Edges[0].Target != "p2" {
		t.Fatalf("unexpected edge: %+v", g.Edges[0])
	}
}

func TestBuildSortsEdgesByWeightThenIDs(t *testing.T) {
	g := Build([]PaperInput{
		{ID: "p1", Topics: []string{"a", "b"}},
		{ID: "p2", Topics: []string{"a", "b"}},
		{ID: "p3", Topics: []string{"a"}},
	}, 0.1)

	if len(g.Edges) != 3 {
		t.Fatalf("edges: got %d", len(g.Edges))
	}
	if g.Edges[0].Weight != 1.0 {
		t.Fatalf("strongest edge first: got %v", g.Edges[0].Weight)
	}
	if g.Edges[1].Source != "p1" || g.Edges[2].Source != "p2" {
		t.Fatalf("equal weights should tiebreak on ids: %+v then %+v", g.Edges[1], g.Edges[2])
	}
}

func TestMergeConnectionsLabelsExistingEdge(t *testing.T) {
	g := Build([]PaperInput{
		{ID: "p1", Topics: []string{"a"}},
		{ID: "p2", Topics: []string{"a"}},
	}, 0.2)
	if len(g.Edges) != 1 {
		t.Fatalf("setup: expected one computed edge, got %d", len(g.Edges))
	}
	computed := g.Edges[0].Weight

	// reversed pair must still match the existing edge
	g = MergeConnections(g, []Connection{{
		SourceID:   "p2",
		TargetID:   "p1",
		Relation:   RelExtends,
		Evidence:   "builds on the same benchmark",
		Confidence: 0.9,
	}})

	if len(g.Edges) != 1 {
		t.Fatalf("merge should not duplicate the pair, got %d edges", len(g.Edges))
	}
	if g.Edges[0].Relation != RelExtends || g.Edges[0].Evidence == "" {
		t.Fatalf("edge not labeled: %+v", g.Edges[0])
	}
	if g.Edges[0].Weight != computed {
		t.Fatalf("computed weight should win over model confidence: %v", g.Edges[0].Weight)
	}
}

func TestMergeConnectionsAddsNewPairDropsUnknown(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}, Edges: []Edge{}}
	g = MergeConnections(g, []Connection{
		{SourceID: "p1", TargetID: "p3", Relation: RelCompares, Evidence: "same task", Confidence: 0.8},
		{SourceID: "p1", TargetID: "ghost", Relation: RelCompares, Confidence: 0.8},
	})

	if len(g.Edges) != 1 {
		t.Fatalf("expected one merged edge, got %d", len(g.Edges))
	}
	e := g.Edges[0]
	if e.Source != "p1" || e.Target != "p3" || e.Weight != 0.8 || e.Relation != RelCompares {
		t.Fatalf("unexpected edge: %+v", e)
	}
}

func TestParseConnectionsJSON(t *testing.T) {
	raw := "```json\n" + `{
  "connections": [
    {"source_id": "p1", "target_id": "p2", "relation": "extends", "evidence": "x", "confidence": 1.7},
    {"source_id": "p2", "target_id": "p1", "relation": "COMPARES", "evidence": "dup pair", "confidence": 0.5},
    {"source_id": "p1", "target_id": "p1", "relation": "EXTENDS", "confidence": 0.5},
    {"source_id": "p1", "target_id": "p3", "relation": "FRIENDS_WITH", "confidence": 0.5}
  ]
}` + "\n```"

	conns := ParseConnectionsJSON(raw)
	if len(conns) != 1 {
		t.Fatalf("expected 1 surviving connection, got %d: %#v", len(conns), conns)
	}
	c := conns[0]
	if c.Relation != RelExtends {
		t.Fatalf("relation not upcased: %q", c.Relation)
	}
	if c.Confidence != 1 {
		t.Fatalf("confidence not clamped: %v", c.Confidence)
	}
}

func TestParseConnectionsJSONGarbage(t *testing.T) {
	if conns := ParseConnectionsJSON("the model rambled instead"); conns != nil {
		t.Fatalf("expected nil for non-json, got %#v", conns)
	}
	if conns := ParseConnectionsJSON(""); conns != nil {
		t.Fatalf("expected nil for empty input, got %#v", conns)
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid([][]float32{{1, 3}, {3, 5}, {2}})
	if len(c) != 2 || c[0] != 2 || c[1] != 4 {
		t.Fatalf("centroid: got %#v", c)
	}
	if Centroid(nil) != nil {
		t.Fatal("empty input should yield nil")
	}
	if Centroid([][]float32{{}}) != nil {
		t.Fatal("zero-length vectors should yield nil")
	}
}

func TestBuildConnectionPrompt(t *testing.T) {
	p := BuildConnectionPrompt([]PaperSummary{
		{ID: "p1", Title: "Attention Is All You Need", Summary: "Introduces transformers."},
		{ID: "p2", Title: "Untitled Draft"},
	})
	if !strings.Contains(p, `"connections"`) {
		t.Fatal("prompt should carry the output schema")
	}
	if !strings.Contains(p, "- [p1] Attention Is All You Need: Introduces transformers.") {
		t.Fatalf("paper line missing:\n%s", p)
	}
	if !strings.Contains(p, "- [p2] Untitled Draft\n") {
		t.Fatalf("summary-less paper line missing:\n%s", p)
	}
}
