package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSearchILikeSQLOmitsFilterForNilPaperIDs(t *testing.T) {
	sql, args := searchILikeSQL(uuid.New(), "attention", nil, 10)
	// A nil slice binds as SQL NULL, so the filter must not be rendered at
	// all: ANY(NULL) is never true and would hide every chunk.
	if strings.Contains(sql, "ANY(") {
		t.Fatalf("unfiltered search should not render a paper filter:\n%s", sql)
	}
	if !strings.Contains(sql, "LIMIT $3") {
		t.Fatalf("limit placeholder misnumbered:\n%s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("args: got %d want 3", len(args))
	}
	if args[2] != 10 {
		t.Fatalf("limit arg: got %v", args[2])
	}
}

func TestSearchILikeSQLFiltersByPaperIDs(t *testing.T) {
	ids := []string{"2401.00001", "2401.00002"}
	sql, args := searchILikeSQL(uuid.New(), "attention", ids, 5)
	if !strings.Contains(sql, "c.paper_id = ANY($3)") {
		t.Fatalf("paper filter missing:\n%s", sql)
	}
	if !strings.Contains(sql, "LIMIT $4") {
		t.Fatalf("limit placeholder misnumbered:\n%s", sql)
	}
	if len(args) != 4 {
		t.Fatalf("args: got %d want 4", len(args))
	}
	got, ok := args[2].([]string)
	if !ok || len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Fatalf("paper ids arg: got %#v", args[2])
	}
}
