package ports

import (
	"context"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

// RecordIngestor accepts crawler batches and enqueues them for processing.
type RecordIngestor interface {
	IngestBatch(ctx context.Context, raws []domain.RawRecord) ([]string, error)
}

// RecordProcessor runs the extraction pipeline for one raw record.
type RecordProcessor interface {
	ProcessByID(ctx context.Context, recordID string) error
}

// ContextRetriever is the inbound contract for hybrid retrieval and
// retrieval-backed answering.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RankedContext, error)
	Answer(ctx context.Context, question string, k int) (*domain.Answer, error)
}

// Maintainer re-processes stuck records and keeps indexes consistent with
// the knowledge store.
type Maintainer interface {
	RepairPass(ctx context.Context) (domain.RepairReport, error)
	RebuildIndexes(ctx context.Context) error
	WarmLexicalIndex(ctx context.Context) error
}
