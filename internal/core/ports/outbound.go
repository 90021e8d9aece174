package ports

import (
	"context"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

// KnowledgeStore is the durable record store and the source of truth.
// Structured upserts are atomic per id; partial updates are never visible.
type KnowledgeStore interface {
	CreateRaw(ctx context.Context, raw *domain.RawRecord) error
	GetRaw(ctx context.Context, id string) (*domain.RawRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.RecordStatus, errMessage string) error
	ListByStatus(ctx context.Context, status domain.RecordStatus, limit int) ([]domain.RawRecord, error)

	UpsertStructured(ctx context.Context, rec *domain.StructuredRecord) error
	GetStructured(ctx context.Context, id string) (*domain.StructuredRecord, error)
	AllStructured(ctx context.Context) ([]domain.StructuredRecord, error)
}

// SemanticIndex and LexicalIndex share one capability set so the fusion
// algorithm stays backend-agnostic. Index is an atomic per-id replace;
// readers see either the old or the new entry, never a torn one.
type SemanticIndex interface {
	Index(ctx context.Context, id, text string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}

type LexicalIndex interface {
	Index(ctx context.Context, id, text string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
}

// FactStructurer is the external structuring interface. Transport failures
// wrap domain.ErrUnavailable; responses that do not parse as the fixed
// payload shape wrap domain.ErrSchemaViolation.
type FactStructurer interface {
	Structure(ctx context.Context, req domain.StructuringRequest) (*domain.ExtractionPayload, error)
}

// Embedder builds one vector per call, for index entries and query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MessageQueue carries record ids from ingestion to the pipeline workers.
type MessageQueue interface {
	PublishRecordIngested(ctx context.Context, recordID string) error
	SubscribeRecordIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// AnswerGenerator is the external generation step. It owns the
// "no information found" fallback for an empty context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, contextSet domain.RankedContext) (string, error)
}
