package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
)

const defaultTopK = 5

// RetrieveUseCase is the hybrid retriever: both indexes are searched
// concurrently with an over-fetch, fused over independently normalized
// scores, deduplicated, and windowed to top-k. Empty results are a valid
// outcome for the generation step, never an error.
type RetrieveUseCase struct {
	semantic  ports.SemanticIndex
	lexical   ports.LexicalIndex
	store     ports.KnowledgeStore
	generator ports.AnswerGenerator

	weights   FusionWeights
	overfetch int
}

func NewRetrieveUseCase(
	semantic ports.SemanticIndex,
	lexical ports.LexicalIndex,
	store ports.KnowledgeStore,
	generator ports.AnswerGenerator,
	weights FusionWeights,
	overfetchFactor int,
) *RetrieveUseCase {
	if overfetchFactor < 1 {
		overfetchFactor = 3
	}
	return &RetrieveUseCase{
		semantic:  semantic,
		lexical:   lexical,
		store:     store,
		generator: generator,
		weights:   weights.Normalize(),
		overfetch: overfetchFactor,
	}
}

type searchResult struct {
	hits []domain.SearchHit
	err  error
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string, k int) (domain.RankedContext, error) {
	if k <= 0 {
		k = defaultTopK
	}
	m := k * uc.overfetch

	// The two sub-searches are independent; fusion only needs a join point.
	semanticCh := make(chan searchResult, 1)
	lexicalCh := make(chan searchResult, 1)
	go func() {
		hits, err := uc.semantic.Search(ctx, query, m)
		semanticCh <- searchResult{hits: hits, err: err}
	}()
	go func() {
		hits, err := uc.lexical.Search(ctx, query, m)
		lexicalCh <- searchResult{hits: hits, err: err}
	}()
	semantic, lexical := <-semanticCh, <-lexicalCh

	if semantic.err != nil {
		return domain.RankedContext{}, fmt.Errorf("semantic search: %w", semantic.err)
	}
	if lexical.err != nil {
		return domain.RankedContext{}, fmt.Errorf("lexical search: %w", lexical.err)
	}

	records, err := uc.hydrateRecords(ctx, semantic.hits, lexical.hits)
	if err != nil {
		return domain.RankedContext{}, err
	}

	// Ids the store no longer holds are stale index entries; the store is
	// the source of truth, so they are dropped from the candidate set.
	semantic.hits = filterKnown(semantic.hits, records)
	lexical.hits = filterKnown(lexical.hits, records)

	candidates := fuseHybridCandidates(semantic.hits, lexical.hits, uc.weights, func(id string) (time.Time, bool) {
		rec, ok := records[id]
		if !ok {
			return time.Time{}, false
		}
		return rec.PostedAt, true
	})
	candidates = trimCandidates(candidates, k)

	ranked := domain.RankedContext{
		Candidates: candidates,
		Records:    make([]domain.StructuredRecord, 0, len(candidates)),
	}
	for _, c := range candidates {
		ranked.Records = append(ranked.Records, records[c.RecordID])
	}
	return ranked, nil
}

// Answer retrieves context and hands it to the generation step. The
// generator owns the "no information found" wording for an empty context.
func (uc *RetrieveUseCase) Answer(ctx context.Context, question string, k int) (*domain.Answer, error) {
	contextSet, err := uc.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	text, err := uc.generator.GenerateAnswer(ctx, question, contextSet)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{Text: text, Context: contextSet}, nil
}

func (uc *RetrieveUseCase) hydrateRecords(
	ctx context.Context,
	semantic, lexical []domain.SearchHit,
) (map[string]domain.StructuredRecord, error) {
	records := make(map[string]domain.StructuredRecord, len(semantic)+len(lexical))
	for _, hits := range [][]domain.SearchHit{semantic, lexical} {
		for _, hit := range hits {
			if _, ok := records[hit.RecordID]; ok {
				continue
			}
			rec, err := uc.store.GetStructured(ctx, hit.RecordID)
			if err != nil {
				if domain.IsKind(err, domain.ErrNotFound) {
					slog.Warn("stale_index_entry", "record_id", hit.RecordID)
					continue
				}
				return nil, fmt.Errorf("hydrate record %s: %w", hit.RecordID, err)
			}
			records[hit.RecordID] = *rec
		}
	}
	return records, nil
}

func filterKnown(hits []domain.SearchHit, records map[string]domain.StructuredRecord) []domain.SearchHit {
	out := hits[:0]
	for _, hit := range hits {
		if _, ok := records[hit.RecordID]; ok {
			out = append(out, hit)
		}
	}
	return out
}
