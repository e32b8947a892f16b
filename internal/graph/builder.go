package graph

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var ws = regexp.MustCompile(`\s+`)

func CanonicalTopic(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = ws.ReplaceAllString(s, " ")
	return s
}

// PaperInput is one paper as seen by the builder. Centroid is the mean
// of the paper's chunk embeddings and may be nil when nothing is embedded.
type PaperInput struct {
	ID       string
	Title    string
	Topics   []string
	Centroid []float32
}

// Build links every paper pair whose blended similarity clears minWeight.
// The weight is the mean of topic Jaccard overlap and centroid cosine
// similarity; when only one signal exists it is used alone.
func Build(papers []PaperInput, minWeight float64) Graph {
	g := Graph{Nodes: make([]Node, 0, len(papers)), Edges: []Edge{}}
	topics := make([][]string, len(papers))
	for i, p := range papers {
		topics[i] = canonicalTopics(p.Topics)
		g.Nodes = append(g.Nodes, Node{ID: p.ID, Title: p.Title, Topics: topics[i]})
	}
	for i := 0; i < len(papers); i++ {
		for j := i + 1; j < len(papers); j++ {
			overlap, shared := jaccard(topics[i], topics[j])
			cos := cosine(papers[i].Centroid, papers[j].Centroid)
			w, ok := blend(overlap, len(topics[i]) > 0 && len(topics[j]) > 0, cos, papers[i].Centroid != nil && papers[j].Centroid != nil)
			if !ok || w < minWeight {
				continue
			}
			g.Edges = append(g.Edges, Edge{
				Source:       papers[i].ID,
				Target:       papers[j].ID,
				Weight:       round3(w),
				SharedTopics: shared,
			})
		}
	}
	sort.Slice(g.Edges, func(a, b int) bool {
		if g.Edges[a].Weight != g.Edges[b].Weight {
			return g.Edges[a].Weight > g.Edges[b].Weight
		}
		if g.Edges[a].Source != g.Edges[b].Source {
			return g.Edges[a].Source < g.Edges[b].Source
		}
		return g.Edges[a].Target < g.Edges[b].Target
	})
	return g
}

// MergeConnections folds model-suggested relations into g. Pairs already
// linked keep their computed edge and gain the relation label; unknown
// paper ids are dropped.
func MergeConnections(g Graph, conns []Connection) Graph {
	known := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = struct{}{}
	}
	index := make(map[string]int, len(g.Edges))
	for i, e := range g.Edges {
		index[pairKey(e.Source, e.Target)] = i
	}
	for _, c := range conns {
		if _, ok := known[c.SourceID]; !ok {
			continue
		}
		if _, ok := known[c.TargetID]; !ok {
			continue
		}
		if i, ok := index[pairKey(c.SourceID, c.TargetID)]; ok {
			if g.Edges[i].Relation == "" {
				g.Edges[i].Relation = c.Relation
				g.Edges[i].Evidence = c.Evidence
			}
			continue
		}
		e := Edge{
			Source:   c.SourceID,
			Target:   c.TargetID,
			Weight:   round3(c.Confidence),
			Relation: c.Relation,
			Evidence: c.Evidence,
		}
		index[pairKey(e.Source, e.Target)] = len(g.Edges)
		g.Edges = append(g.Edges, e)
	}
	return g
}

// Centroid averages the given vectors. Vectors whose length differs from
// the first are skipped.
func Centroid(vectors [][]float32) []float32 {
	var out []float64
	var dim, n int
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if out == nil {
			dim = len(v)
			out = make([]float64, dim)
		}
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			out[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	res := make([]float32, dim)
	for i := range out {
		res[i] = float32(out[i] / float64(n))
	}
	return res
}

func canonicalTopics(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		c := CanonicalTopic(t)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func jaccard(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	var shared []string
	for _, t := range b {
		if _, ok := set[t]; ok {
			shared = append(shared, t)
		}
	}
	union := len(a) + len(b) - len(shared)
	if union == 0 {
		return 0, nil
	}
	sort.Strings(shared)
	return float64(len(shared)) / float64(union), shared
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func blend(overlap float64, haveTopics bool, cos float64, haveVectors bool) (float64, bool) {
	switch {
	case haveTopics && haveVectors:
		return (overlap + cos) / 2, true
	case haveTopics:
		return overlap, true
	case haveVectors:
		return cos, true
	default:
		return 0, false
	}
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
