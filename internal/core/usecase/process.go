package usecase

import (
	"context"
	"fmt"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
)

// ProcessRecordUseCase drives one raw record through the pipeline state
// machine: new → extracting → {stored | pending | failed}. The knowledge
// store is written before the indexes and is never rolled back for an
// index failure; a post-store index failure marks the record inconsistent
// and leaves it for the repair pass.
type ProcessRecordUseCase struct {
	store     ports.KnowledgeStore
	extractor *FactExtractor
	semantic  ports.SemanticIndex
	lexical   ports.LexicalIndex
}

func NewProcessRecordUseCase(
	store ports.KnowledgeStore,
	extractor *FactExtractor,
	semantic ports.SemanticIndex,
	lexical ports.LexicalIndex,
) *ProcessRecordUseCase {
	return &ProcessRecordUseCase{
		store:     store,
		extractor: extractor,
		semantic:  semantic,
		lexical:   lexical,
	}
}

func (uc *ProcessRecordUseCase) ProcessByID(ctx context.Context, recordID string) error {
	raw, err := uc.store.GetRaw(ctx, recordID)
	if err != nil {
		return fmt.Errorf("fetch raw record: %w", err)
	}

	if err := uc.markStatus(ctx, recordID, domain.StatusExtracting, ""); err != nil {
		return fmt.Errorf("set status=extracting: %w", err)
	}

	rec, err := uc.extractor.Extract(ctx, raw)
	if err != nil {
		return uc.markExtractionFailure(ctx, recordID, err)
	}

	if err := uc.store.UpsertStructured(ctx, rec); err != nil {
		// The store re-validates at its boundary; a rejection there is a
		// schema problem, anything else a transient store fault.
		return uc.markExtractionFailure(ctx, recordID, err)
	}

	if err := uc.indexRecord(ctx, rec, raw.Text); err != nil {
		if markErr := uc.markStatus(ctx, recordID, domain.StatusInconsistent, err.Error()); markErr != nil {
			return fmt.Errorf("%w; mark inconsistent: %v", err, markErr)
		}
		return domain.WrapError(domain.ErrInconsistentIndex, "index record", err)
	}

	if err := uc.markStatus(ctx, recordID, domain.StatusStored, ""); err != nil {
		return fmt.Errorf("set status=stored: %w", err)
	}
	return nil
}

// indexRecord replaces both index entries for the record id. Index
// implementations overwrite per id, so re-extraction leaves no stale
// duplicate behind.
func (uc *ProcessRecordUseCase) indexRecord(ctx context.Context, rec *domain.StructuredRecord, rawText string) error {
	text := rec.IndexText(rawText)
	if err := uc.semantic.Index(ctx, rec.ID, text); err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}
	if err := uc.lexical.Index(ctx, rec.ID, text); err != nil {
		return fmt.Errorf("lexical index: %w", err)
	}
	return nil
}

func (uc *ProcessRecordUseCase) markExtractionFailure(ctx context.Context, recordID string, cause error) error {
	status := domain.StatusFailed
	if domain.IsKind(cause, domain.ErrSchemaViolation) {
		status = domain.StatusPending
	}
	if markErr := uc.markStatus(ctx, recordID, status, cause.Error()); markErr != nil {
		return fmt.Errorf("%w; mark %s status: %v", cause, status, markErr)
	}
	return cause
}

func (uc *ProcessRecordUseCase) markStatus(ctx context.Context, recordID string, status domain.RecordStatus, errMessage string) error {
	return uc.store.UpdateStatus(ctx, recordID, status, errMessage)
}
