package graph

import "strings"

const ConnectionPromptTemplate = `You are mapping relationships between research papers in a reading collection.
Use only the paper summaries below. Do not invent papers or relations.

Output STRICT JSON with this schema:
{
  "connections": [
    {
      "source_id": "paper id from the list",
      "target_id": "paper id from the list",
      "relation": "EXTENDS|BUILDS_ON|CONTRADICTS|SHARES_METHOD|SHARES_DATASET|COMPARES",
      "evidence": "short phrase grounded in the summaries",
      "confidence": 0.0
    }
  ]
}

Rules:
- Emit at most 10 connections.
- source_id and target_id must differ and must come from the list.
- confidence must be in [0,1].
- If no connections are supported, return {"connections":[]}.
`

type PaperSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func BuildConnectionPrompt(summaries []PaperSummary) string {
	var b strings.Builder
	b.WriteString(ConnectionPromptTemplate)
	b.WriteString("\nPapers:\n")
	for _, s := range summaries {
		b.WriteString("- [")
		b.WriteString(s.ID)
		b.WriteString("] ")
		b.WriteString(strings.TrimSpace(s.Title))
		if sum := strings.TrimSpace(s.Summary); sum != "" {
			b.WriteString(": ")
			b.WriteString(sum)
		}
		b.WriteString("\n")
	}
	return b.String()
}
