package usecase

import (
	"sort"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

// FusionWeights are the fixed fusion configuration. Only the ratio
// matters; Normalize scales them to sum to 1.
type FusionWeights struct {
	Semantic float64
	Lexical  float64
}

func (w FusionWeights) Normalize() FusionWeights {
	total := w.Semantic + w.Lexical
	if total <= 0 {
		return FusionWeights{Semantic: 0.5, Lexical: 0.5}
	}
	return FusionWeights{Semantic: w.Semantic / total, Lexical: w.Lexical / total}
}

// fuseHybridCandidates merges the two result sets into one deduplicated
// candidate list. Each set's scores are min–max normalized independently
// before weighting: raw scores of the two indexes are not on comparable
// scales and must never be summed as-is. A record missing from one set
// scores zero there rather than being excluded. Ties are broken by
// posted_at descending, then id, so repeated queries over an unchanged
// index return identical ordering.
func fuseHybridCandidates(
	semantic, lexical []domain.SearchHit,
	weights FusionWeights,
	postedAt func(id string) (time.Time, bool),
) []domain.ContextCandidate {
	semNorm := normalizeScores(semantic)
	lexNorm := normalizeScores(lexical)

	ids := make([]string, 0, len(semNorm)+len(lexNorm))
	seen := make(map[string]struct{}, len(semNorm)+len(lexNorm))
	for _, hits := range [][]domain.SearchHit{semantic, lexical} {
		for _, hit := range hits {
			if _, ok := seen[hit.RecordID]; ok {
				continue
			}
			seen[hit.RecordID] = struct{}{}
			ids = append(ids, hit.RecordID)
		}
	}

	out := make([]domain.ContextCandidate, 0, len(ids))
	for _, id := range ids {
		sem := semNorm[id]
		lex := lexNorm[id]
		out = append(out, domain.ContextCandidate{
			RecordID:      id,
			SemanticScore: sem,
			LexicalScore:  lex,
			FusedScore:    weights.Semantic*sem + weights.Lexical*lex,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		ti, iok := postedAt(out[i].RecordID)
		tj, jok := postedAt(out[j].RecordID)
		if iok && jok && !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].RecordID < out[j].RecordID
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// normalizeScores maps one result set's scores onto [0,1] by min–max over
// that set. A degenerate set (single hit, or all scores equal) normalizes
// positive scores to 1 so a lone exact match keeps full weight.
func normalizeScores(hits []domain.SearchHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	scoreRange := maxScore - minScore
	for _, hit := range hits {
		if scoreRange <= 0 {
			if hit.Score > 0 {
				out[hit.RecordID] = 1
			} else {
				out[hit.RecordID] = 0
			}
			continue
		}
		out[hit.RecordID] = (hit.Score - minScore) / scoreRange
	}
	return out
}

func trimCandidates(candidates []domain.ContextCandidate, limit int) []domain.ContextCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
