package graph

type Relation string

const (
	RelExtends       Relation = "EXTENDS"
	RelBuildsOn      Relation = "BUILDS_ON"
	RelContradicts   Relation = "CONTRADICTS"
	RelSharesMethod  Relation = "SHARES_METHOD"
	RelSharesDataset Relation = "SHARES_DATASET"
	RelCompares      Relation = "COMPARES"
)

type Node struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Topics []string `json:"topics,omitempty"`
}

type Edge struct {
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	Weight       float64  `json:"weight"`
	SharedTopics []string `json:"shared_topics,omitempty"`
	Relation     Relation `json:"relation,omitempty"`
	Evidence     string   `json:"evidence,omitempty"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Connection is a model-suggested relation between two papers.
type Connection struct {
	SourceID   string   `json:"source_id"`
	TargetID   string   `json:"target_id"`
	Relation   Relation `json:"relation"`
	Evidence   string   `json:"evidence"`
	Confidence float64  `json:"confidence"`
}
