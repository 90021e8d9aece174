package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
)

type IngestRecordsUseCase struct {
	store ports.KnowledgeStore
	queue ports.MessageQueue
}

func NewIngestRecordsUseCase(store ports.KnowledgeStore, queue ports.MessageQueue) *IngestRecordsUseCase {
	return &IngestRecordsUseCase{store: store, queue: queue}
}

// IngestBatch persists each raw record under its content-hash id and
// publishes it for asynchronous extraction. One bad record never blocks
// its siblings; the returned error aggregates per-record failures.
func (uc *IngestRecordsUseCase) IngestBatch(ctx context.Context, raws []domain.RawRecord) ([]string, error) {
	accepted := make([]string, 0, len(raws))
	var errs []error

	for i := range raws {
		raw := raws[i]
		if err := normalizeRaw(&raw); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := uc.store.CreateRaw(ctx, &raw); err != nil {
			errs = append(errs, fmt.Errorf("store raw record %s: %w", raw.ID, err))
			continue
		}
		if err := uc.queue.PublishRecordIngested(ctx, raw.ID); err != nil {
			// The record is durable; the repair pass will pick it up.
			slog.Warn("publish_ingested_failed", "record_id", raw.ID, "error", err)
			errs = append(errs, fmt.Errorf("publish record %s: %w", raw.ID, err))
		}
		accepted = append(accepted, raw.ID)
	}

	return accepted, errors.Join(errs...)
}

func normalizeRaw(raw *domain.RawRecord) error {
	if strings.TrimSpace(raw.Text) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ingest record", fmt.Errorf("empty text"))
	}
	if raw.PostedAt.IsZero() {
		return domain.WrapError(domain.ErrInvalidInput, "ingest record", fmt.Errorf("missing posted_at"))
	}
	if raw.ID == "" {
		raw.ID = domain.ContentID(raw.SourceURL, raw.Text)
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now().UTC()
	}
	raw.Status = domain.StatusNew
	raw.Error = ""
	return nil
}
