package domain

// SearchHit is one raw result from a single index. Scores from different
// indexes are not on comparable scales.
type SearchHit struct {
	RecordID string
	Score    float64
}

// ContextCandidate is the fused, ranked retrieval unit handed to the
// generation step. Transient, never persisted.
type ContextCandidate struct {
	RecordID      string  `json:"record_id"`
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`
	FusedScore    float64 `json:"fused_score"`
	Rank          int     `json:"rank"`
}

// RankedContext pairs candidates with their structured records, aligned by
// index. An empty context is a valid outcome, not an error.
type RankedContext struct {
	Candidates []ContextCandidate `json:"candidates"`
	Records    []StructuredRecord `json:"records"`
}

type Answer struct {
	Text    string        `json:"text"`
	Context RankedContext `json:"context"`
}

// RepairReport summarizes one maintenance sweep.
type RepairReport struct {
	Reprocessed int `json:"reprocessed"`
	Reindexed   int `json:"reindexed"`
	Errors      int `json:"errors"`
}
