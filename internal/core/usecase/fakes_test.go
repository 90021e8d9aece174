package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

type statusCall struct {
	id     string
	status domain.RecordStatus
	errMsg string
}

type storeFake struct {
	mu          sync.Mutex
	raws        map[string]*domain.RawRecord
	structured  map[string]*domain.StructuredRecord
	statusCalls []statusCall

	getRawErr    error
	upsertErr    error
	statusErr    error
	validateSkip bool
}

func newStoreFake() *storeFake {
	return &storeFake{
		raws:       make(map[string]*domain.RawRecord),
		structured: make(map[string]*domain.StructuredRecord),
	}
}

func (f *storeFake) CreateRaw(_ context.Context, raw *domain.RawRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.raws[raw.ID]; ok {
		return nil
	}
	copyRaw := *raw
	f.raws[raw.ID] = &copyRaw
	return nil
}

func (f *storeFake) GetRaw(_ context.Context, id string) (*domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRawErr != nil {
		return nil, f.getRawErr
	}
	raw, ok := f.raws[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get raw", fmt.Errorf("id %s", id))
	}
	copyRaw := *raw
	return &copyRaw, nil
}

func (f *storeFake) UpdateStatus(_ context.Context, id string, status domain.RecordStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusCalls = append(f.statusCalls, statusCall{id: id, status: status, errMsg: errMessage})
	if raw, ok := f.raws[id]; ok {
		raw.Status = status
		raw.Error = errMessage
	}
	return nil
}

func (f *storeFake) ListByStatus(_ context.Context, status domain.RecordStatus, limit int) ([]domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RawRecord, 0)
	for _, raw := range f.raws {
		if raw.Status == status && len(out) < limit {
			out = append(out, *raw)
		}
	}
	return out, nil
}

func (f *storeFake) UpsertStructured(_ context.Context, rec *domain.StructuredRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if !f.validateSkip {
		if err := domain.ValidateStructured(rec); err != nil {
			return err
		}
	}
	copyRec := *rec
	f.structured[rec.ID] = &copyRec
	return nil
}

func (f *storeFake) GetStructured(_ context.Context, id string) (*domain.StructuredRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.structured[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get structured", fmt.Errorf("id %s", id))
	}
	copyRec := *rec
	return &copyRec, nil
}

func (f *storeFake) AllStructured(_ context.Context) ([]domain.StructuredRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StructuredRecord, 0, len(f.structured))
	for _, rec := range f.structured {
		out = append(out, *rec)
	}
	return out, nil
}

type indexFake struct {
	mu        sync.Mutex
	entries   map[string]string
	hits      []domain.SearchHit
	indexErr  error
	searchErr error
	removed   []string
}

func newIndexFake() *indexFake {
	return &indexFake{entries: make(map[string]string)}
}

func (f *indexFake) Index(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.entries[id] = text
	return nil
}

func (f *indexFake) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *indexFake) Search(_ context.Context, _ string, k int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type structurerFake struct {
	mu       sync.Mutex
	payloads []*domain.ExtractionPayload
	errs     []error
	requests []domain.StructuringRequest
}

func (f *structurerFake) Structure(_ context.Context, req domain.StructuringRequest) (*domain.ExtractionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	call := len(f.requests) - 1
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	if err != nil {
		return nil, err
	}
	if call < len(f.payloads) {
		return f.payloads[call], nil
	}
	return nil, fmt.Errorf("structurer fake: no scripted response for call %d", call)
}

type generatorFake struct {
	answer   string
	err      error
	question string
	context  domain.RankedContext
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, contextSet domain.RankedContext) (string, error) {
	f.question = question
	f.context = contextSet
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type queueFake struct {
	mu         sync.Mutex
	published  []string
	publishErr error
}

func (f *queueFake) PublishRecordIngested(_ context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, recordID)
	return nil
}

func (f *queueFake) SubscribeRecordIngested(context.Context, func(context.Context, string) error) error {
	return nil
}
