package util

import "strings"

// PageChunk is a text segment that remembers which page it came from, so
// locally extracted chunks line up with the page_number Chunkr reports.
type PageChunk struct {
	Text string
	Page int
}

// ChunkPages chunks each page independently. Overlap never crosses a page
// boundary.
func ChunkPages(pages []string, chunkSize, overlap int) []PageChunk {
	out := make([]PageChunk, 0)
	for i, page := range pages {
		for _, part := range ChunkText(page, chunkSize, overlap) {
			out = append(out, PageChunk{Text: part, Page: i + 1})
		}
	}
	return out
}

func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	out := make([]string, 0)
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
