package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/observability/metrics"
)

type blockingProcessor struct {
	started chan string
	release chan struct{}
}

func (p *blockingProcessor) ProcessByID(ctx context.Context, recordID string) error {
	p.started <- recordID
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type emptyStore struct{}

func (emptyStore) CreateRaw(context.Context, *domain.RawRecord) error { return nil }

func (emptyStore) GetRaw(_ context.Context, id string) (*domain.RawRecord, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get raw record", fmt.Errorf("id %s", id))
}

func (emptyStore) UpdateStatus(context.Context, string, domain.RecordStatus, string) error {
	return nil
}

func (emptyStore) ListByStatus(context.Context, domain.RecordStatus, int) ([]domain.RawRecord, error) {
	return nil, nil
}

func (emptyStore) UpsertStructured(context.Context, *domain.StructuredRecord) error { return nil }

func (emptyStore) GetStructured(_ context.Context, id string) (*domain.StructuredRecord, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get structured record", fmt.Errorf("id %s", id))
}

func (emptyStore) AllStructured(context.Context) ([]domain.StructuredRecord, error) {
	return nil, nil
}

func TestIngestedHandlerDoesNotSerializeRecords(t *testing.T) {
	processor := &blockingProcessor{started: make(chan string, 4), release: make(chan struct{})}
	handler := newIngestedHandler(processor, emptyStore{}, metrics.NewPipelineMetrics("test"), slog.Default(), 2, time.Second)
	ctx := context.Background()

	// The queue delivers sequentially; both calls must return before either
	// record finishes processing.
	if err := handler(ctx, "rec-1"); err != nil {
		t.Fatalf("first handler call error = %v", err)
	}
	if err := handler(ctx, "rec-2"); err != nil {
		t.Fatalf("second handler call error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-processor.started:
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 records started while none finished", i)
		}
	}
	close(processor.release)
}

func TestIngestedHandlerBoundsInFlightRecords(t *testing.T) {
	processor := &blockingProcessor{started: make(chan string, 4), release: make(chan struct{})}
	handler := newIngestedHandler(processor, emptyStore{}, metrics.NewPipelineMetrics("test"), slog.Default(), 1, time.Second)

	if err := handler(context.Background(), "rec-1"); err != nil {
		t.Fatalf("first handler call error = %v", err)
	}
	<-processor.started

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := handler(waitCtx, "rec-2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("saturated pool must report the context error, got %v", err)
	}

	close(processor.release)
	if err := handler(context.Background(), "rec-3"); err != nil {
		t.Fatalf("handler after release error = %v", err)
	}
	select {
	case <-processor.started:
	case <-time.After(time.Second):
		t.Fatalf("freed slot never admitted the next record")
	}
}

func TestTerminalStatusMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want domain.RecordStatus
	}{
		{nil, domain.StatusStored},
		{domain.WrapError(domain.ErrSchemaViolation, "validate record", fmt.Errorf("importance 7 outside [1,5]")), domain.StatusPending},
		{domain.WrapError(domain.ErrInconsistentIndex, "index record", fmt.Errorf("qdrant status 503")), domain.StatusInconsistent},
		{domain.WrapError(domain.ErrUnavailable, "structuring call", fmt.Errorf("connection refused")), domain.StatusFailed},
		{fmt.Errorf("unexpected"), domain.StatusFailed},
	}
	for _, tc := range cases {
		if got := terminalStatus(tc.err); got != tc.want {
			t.Fatalf("terminalStatus(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
