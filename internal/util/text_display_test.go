package util

import (
	"strings"
	"testing"
)

func TestDisplaySnippet(t *testing.T) {
	in := "Hello\x00   world \n\t C\\u0001"
	out := DisplaySnippet(in, 100)
	if out == "" {
		t.Fatalf("expected non-empty snippet")
	}
}

func TestSplitSentencesKeepsAbbreviationsTogether(t *testing.T) {
	got := splitSentences("Smith et al. report a 3.5x speedup. See Fig. 2 for details.")
	if len(got) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %#v", len(got), got)
	}
	if !strings.Contains(got[0], "et al.") || !strings.Contains(got[0], "3.5x") {
		t.Fatalf("abbreviation or decimal split apart: %q", got[0])
	}
}

func TestDisplayEvidenceSnippet(t *testing.T) {
	chunk := "This paper studies edge computing in cloud schedulers. It evaluates latency reduction for edge workloads. Unrelated appendix text."
	q := "What are edge workload latency results?"
	out := DisplayEvidenceSnippet(chunk, q, 200)
	if !strings.Contains(strings.ToLower(out), "latency") {
		t.Fatalf("expected relevance to latency in snippet, got: %q", out)
	}
}
