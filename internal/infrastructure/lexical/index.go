package lexical

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Index is an in-process BM25 index over record texts. It is derived
// state: the worker rebuilds it from the knowledge store at startup, so
// nothing here is persisted. Indexing a known id replaces its previous
// entry in one step.
type Index struct {
	mu sync.RWMutex

	docs     map[string]docEntry
	postings map[string]map[string]int
	totalLen int
}

type docEntry struct {
	terms  map[string]int
	length int
}

func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]docEntry),
		postings: make(map[string]map[string]int),
	}
}

func (ix *Index) Index(_ context.Context, id, text string) error {
	terms := termFrequencies(tokenizeText(text))

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(id)

	length := 0
	for term, freq := range terms {
		length += freq
		posting, ok := ix.postings[term]
		if !ok {
			posting = make(map[string]int)
			ix.postings[term] = posting
		}
		posting[id] = freq
	}
	ix.docs[id] = docEntry{terms: terms, length: length}
	ix.totalLen += length
	return nil
}

func (ix *Index) Remove(_ context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
	return nil
}

func (ix *Index) removeLocked(id string) {
	entry, ok := ix.docs[id]
	if !ok {
		return
	}
	for term := range entry.terms {
		posting := ix.postings[term]
		delete(posting, id)
		if len(posting) == 0 {
			delete(ix.postings, term)
		}
	}
	ix.totalLen -= entry.length
	delete(ix.docs, id)
}

func (ix *Index) Search(_ context.Context, query string, k int) ([]domain.SearchHit, error) {
	queryTerms := tokenizeText(query)
	if len(queryTerms) == 0 || k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docCount := len(ix.docs)
	if docCount == 0 {
		return nil, nil
	}
	avgLen := float64(ix.totalLen) / float64(docCount)
	if avgLen <= 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, term := range queryTerms {
		posting, ok := ix.postings[term]
		if !ok {
			continue
		}
		df := float64(len(posting))
		idf := math.Log(1 + (float64(docCount)-df+0.5)/(df+0.5))
		for id, freq := range posting {
			tf := float64(freq)
			lenNorm := 1 - bm25B + bm25B*float64(ix.docs[id].length)/avgLen
			scores[id] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*lenNorm)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	hits := make([]domain.SearchHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, domain.SearchHit{RecordID: id, Score: score})
	}
	// Deterministic order: score desc, then id asc for equal scores.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, token := range tokens {
		tf[token]++
	}
	return tf
}

// tokenizeText splits on any non-letter, non-digit rune and lowercases.
// Letter covers Hangul, so Korean course text like "3주차" survives where
// an ascii-only tokenizer would drop it.
func tokenizeText(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
