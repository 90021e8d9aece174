package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
)

const repairBatchLimit = 200

// MaintainUseCase re-drives stuck records and keeps the derived indexes
// consistent with the knowledge store. Pending and failed records go back
// through the full pipeline; inconsistent ones only need re-indexing since
// their structured fields are already stored.
type MaintainUseCase struct {
	store     ports.KnowledgeStore
	processor ports.RecordProcessor
	semantic  ports.SemanticIndex
	lexical   ports.LexicalIndex
}

func NewMaintainUseCase(
	store ports.KnowledgeStore,
	processor ports.RecordProcessor,
	semantic ports.SemanticIndex,
	lexical ports.LexicalIndex,
) *MaintainUseCase {
	return &MaintainUseCase{
		store:     store,
		processor: processor,
		semantic:  semantic,
		lexical:   lexical,
	}
}

func (uc *MaintainUseCase) RepairPass(ctx context.Context) (domain.RepairReport, error) {
	var report domain.RepairReport

	for _, status := range []domain.RecordStatus{domain.StatusNew, domain.StatusPending, domain.StatusFailed} {
		raws, err := uc.store.ListByStatus(ctx, status, repairBatchLimit)
		if err != nil {
			return report, fmt.Errorf("list %s records: %w", status, err)
		}
		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := uc.processor.ProcessByID(ctx, raw.ID); err != nil {
				// Isolation: one record's failure never blocks the sweep.
				slog.Warn("repair_reprocess_failed", "record_id", raw.ID, "prior_status", string(status), "error", err)
				report.Errors++
				continue
			}
			report.Reprocessed++
		}
	}

	raws, err := uc.store.ListByStatus(ctx, domain.StatusInconsistent, repairBatchLimit)
	if err != nil {
		return report, fmt.Errorf("list inconsistent records: %w", err)
	}
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := uc.reindexRecord(ctx, raw.ID); err != nil {
			slog.Warn("repair_reindex_failed", "record_id", raw.ID, "error", err)
			report.Errors++
			continue
		}
		report.Reindexed++
	}

	return report, nil
}

// reindexRecord rebuilds both index entries from stored state and clears
// the inconsistency without touching the structured fields.
func (uc *MaintainUseCase) reindexRecord(ctx context.Context, id string) error {
	rec, err := uc.store.GetStructured(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch structured record: %w", err)
	}
	raw, err := uc.store.GetRaw(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch raw record: %w", err)
	}

	text := rec.IndexText(raw.Text)
	if err := uc.semantic.Index(ctx, id, text); err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}
	if err := uc.lexical.Index(ctx, id, text); err != nil {
		return fmt.Errorf("lexical index: %w", err)
	}
	return uc.store.UpdateStatus(ctx, id, domain.StatusStored, "")
}

// RebuildIndexes reconstructs both indexes from the knowledge store alone.
// The indexes are derived state; the store is always sufficient to rebuild
// them.
func (uc *MaintainUseCase) RebuildIndexes(ctx context.Context) error {
	return uc.rebuild(ctx, true)
}

// WarmLexicalIndex fills the in-process lexical index at worker startup.
func (uc *MaintainUseCase) WarmLexicalIndex(ctx context.Context) error {
	return uc.rebuild(ctx, false)
}

func (uc *MaintainUseCase) rebuild(ctx context.Context, includeSemantic bool) error {
	records, err := uc.store.AllStructured(ctx)
	if err != nil {
		return fmt.Errorf("load structured records: %w", err)
	}

	for i := range records {
		rec := &records[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := uc.store.GetRaw(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("fetch raw record %s: %w", rec.ID, err)
		}
		text := rec.IndexText(raw.Text)
		if includeSemantic {
			if err := uc.semantic.Index(ctx, rec.ID, text); err != nil {
				return fmt.Errorf("semantic index %s: %w", rec.ID, err)
			}
		}
		if err := uc.lexical.Index(ctx, rec.ID, text); err != nil {
			return fmt.Errorf("lexical index %s: %w", rec.ID, err)
		}
	}

	slog.Info("index_rebuild_complete", "records", len(records), "semantic", includeSemantic)
	return nil
}
