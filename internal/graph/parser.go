package graph

import (
	"encoding/json"
	"strings"

	"github.com/MetaHackathon/DataEngineX/internal/util"
)

func ParseConnectionsJSON(raw string) []Connection {
	raw = util.StripCodeFence(raw)
	if raw == "" {
		return nil
	}
	var payload struct {
		Connections []Connection `json:"connections"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	out := make([]Connection, 0, len(payload.Connections))
	seen := map[string]struct{}{}
	for _, c := range payload.Connections {
		n, ok := NormalizeConnection(c)
		if !ok {
			continue
		}
		k := pairKey(n.SourceID, n.TargetID)
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}

func NormalizeConnection(c Connection) (Connection, bool) {
	c.SourceID = strings.TrimSpace(c.SourceID)
	c.TargetID = strings.TrimSpace(c.TargetID)
	c.Relation = Relation(strings.ToUpper(strings.TrimSpace(string(c.Relation))))
	c.Evidence = strings.TrimSpace(c.Evidence)
	if c.SourceID == "" || c.TargetID == "" || c.SourceID == c.TargetID {
		return Connection{}, false
	}
	if !isRelation(c.Relation) {
		return Connection{}, false
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return c, true
}

func isRelation(x Relation) bool {
	switch x {
	case RelExtends, RelBuildsOn, RelContradicts, RelSharesMethod, RelSharesDataset, RelCompares:
		return true
	default:
		return false
	}
}
