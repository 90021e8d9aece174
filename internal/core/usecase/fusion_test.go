package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

func noPostedAt(string) (time.Time, bool) { return time.Time{}, false }

func TestFuseDeduplicatesRecordInBothSets(t *testing.T) {
	semantic := []domain.SearchHit{
		{RecordID: "rec-1", Score: 0.9},
		{RecordID: "rec-2", Score: 0.5},
	}
	lexical := []domain.SearchHit{
		{RecordID: "rec-2", Score: 12.0},
		{RecordID: "rec-3", Score: 4.0},
	}

	fused := fuseHybridCandidates(semantic, lexical, FusionWeights{Semantic: 0.5, Lexical: 0.5}, noPostedAt)
	if len(fused) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(fused))
	}
	seen := map[string]int{}
	for _, c := range fused {
		seen[c.RecordID]++
	}
	if seen["rec-2"] != 1 {
		t.Fatalf("expected rec-2 exactly once, got %d", seen["rec-2"])
	}
	// rec-2: best lexical (1.0) + worst semantic (0.0) still beats rec-3
	// (lexical 0.0) and matches rec-1 (semantic 1.0); posted_at unknown so
	// id breaks the tie.
	if fused[0].RecordID != "rec-1" || fused[1].RecordID != "rec-2" {
		t.Fatalf("unexpected order: %v %v", fused[0].RecordID, fused[1].RecordID)
	}
}

func TestFuseLexicalOnlyMatchKeepsFullLexicalWeight(t *testing.T) {
	lexical := []domain.SearchHit{{RecordID: "rec-1", Score: 3.7}}

	fused := fuseHybridCandidates(nil, lexical, FusionWeights{Semantic: 0.5, Lexical: 0.5}, noPostedAt)
	if len(fused) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(fused))
	}
	if math.Abs(fused[0].FusedScore-0.5) > 1e-9 {
		t.Fatalf("expected fused score w_lex*1.0 = 0.5, got %f", fused[0].FusedScore)
	}
	if fused[0].SemanticScore != 0 {
		t.Fatalf("missing semantic appearance must score 0, got %f", fused[0].SemanticScore)
	}
}

func TestFuseNormalizesBeforeWeighting(t *testing.T) {
	// Lexical raw scores are magnitudes larger; normalization must stop
	// them from dominating.
	semantic := []domain.SearchHit{
		{RecordID: "sem-best", Score: 0.99},
		{RecordID: "sem-worst", Score: 0.10},
	}
	lexical := []domain.SearchHit{
		{RecordID: "lex-best", Score: 900.0},
		{RecordID: "lex-worst", Score: 100.0},
	}

	fused := fuseHybridCandidates(semantic, lexical, FusionWeights{Semantic: 0.5, Lexical: 0.5}, noPostedAt)
	var semBest, lexBest float64
	for _, c := range fused {
		switch c.RecordID {
		case "sem-best":
			semBest = c.FusedScore
		case "lex-best":
			lexBest = c.FusedScore
		}
	}
	if math.Abs(semBest-lexBest) > 1e-9 {
		t.Fatalf("normalized best hits must fuse equally, got sem=%f lex=%f", semBest, lexBest)
	}
}

func TestFuseTieBreakByPostedAtThenID(t *testing.T) {
	semantic := []domain.SearchHit{
		{RecordID: "older", Score: 1.0},
		{RecordID: "newer", Score: 1.0},
		{RecordID: "also-newer", Score: 1.0},
	}
	posted := map[string]time.Time{
		"older":      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		"newer":      time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		"also-newer": time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	}
	postedAt := func(id string) (time.Time, bool) {
		ts, ok := posted[id]
		return ts, ok
	}

	first := fuseHybridCandidates(semantic, nil, FusionWeights{Semantic: 1, Lexical: 1}, postedAt)
	if first[0].RecordID != "also-newer" || first[1].RecordID != "newer" || first[2].RecordID != "older" {
		t.Fatalf("unexpected tie-break order: %v", first)
	}

	// Determinism: same inputs, identical ordering on every run.
	for range 10 {
		again := fuseHybridCandidates(semantic, nil, FusionWeights{Semantic: 1, Lexical: 1}, postedAt)
		for i := range first {
			if again[i].RecordID != first[i].RecordID {
				t.Fatalf("ordering not deterministic: %v vs %v", again, first)
			}
		}
	}
}

func TestFuseRanksAreSequential(t *testing.T) {
	semantic := []domain.SearchHit{
		{RecordID: "a", Score: 0.3},
		{RecordID: "b", Score: 0.9},
	}
	fused := fuseHybridCandidates(semantic, nil, FusionWeights{Semantic: 0.5, Lexical: 0.5}, noPostedAt)
	for i, c := range fused {
		if c.Rank != i+1 {
			t.Fatalf("expected rank %d at position %d, got %d", i+1, i, c.Rank)
		}
	}
}

func TestFusionWeightsNormalize(t *testing.T) {
	w := FusionWeights{Semantic: 2, Lexical: 6}.Normalize()
	if math.Abs(w.Semantic-0.25) > 1e-9 || math.Abs(w.Lexical-0.75) > 1e-9 {
		t.Fatalf("unexpected normalized weights: %+v", w)
	}
	def := FusionWeights{}.Normalize()
	if def.Semantic != 0.5 || def.Lexical != 0.5 {
		t.Fatalf("zero weights must fall back to equal weighting, got %+v", def)
	}
}

func TestTrimCandidates(t *testing.T) {
	candidates := []domain.ContextCandidate{{RecordID: "a"}, {RecordID: "b"}, {RecordID: "c"}}
	if got := trimCandidates(candidates, 2); len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got := trimCandidates(candidates, 10); len(got) != 3 {
		t.Fatalf("fewer than k candidates must be returned whole, got %d", len(got))
	}
}
