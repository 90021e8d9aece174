package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func sampleRaw() *domain.RawRecord {
	return &domain.RawRecord{
		ID:        "rec-1",
		Text:      "3주차 과제: 다음 주 금요일까지 제출",
		SourceURL: "https://lms.example.ac.kr/courses/42/assignments/7",
		CourseID:  "42",
		PostedAt:  time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestExtractValidPayloadFirstAttempt(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{{
			Category:   "assignment",
			RealDate:   strPtr("2025-03-14"),
			Importance: 4,
			Summary:    "3주차 과제를 3월 14일까지 제출",
			WeekIndex:  3,
		}},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.Category != domain.CategoryAssignment || rec.Importance != 4 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.RealDueDate == nil || rec.RealDueDate.Format("2006-01-02") != "2025-03-14" {
		t.Fatalf("unexpected due date: %v", rec.RealDueDate)
	}
	if len(structurer.requests) != 1 {
		t.Fatalf("expected a single structuring call, got %d", len(structurer.requests))
	}
}

func TestExtractOutOfRangeImportanceRepairedOnce(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{
			{Category: "assignment", Importance: 7, Summary: "과제"},
			{Category: "assignment", Importance: 4, Summary: "과제"},
		},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.Importance != 4 {
		t.Fatalf("expected repaired importance 4, got %d", rec.Importance)
	}
	if len(structurer.requests) != 2 {
		t.Fatalf("expected one repair attempt, got %d calls", len(structurer.requests))
	}
	if !strings.Contains(structurer.requests[1].Instruction, "importance 7") {
		t.Fatalf("repair instruction must name the violated constraint: %s", structurer.requests[1].Instruction)
	}
}

func TestExtractRepairFailureIsSchemaViolation(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{
			{Category: "lunch-menu", Importance: 3, Summary: "?"},
			{Category: "lunch-menu", Importance: 3, Summary: "?"},
		},
	}

	_, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if len(structurer.requests) != 2 {
		t.Fatalf("repair budget is exactly one retry, got %d calls", len(structurer.requests))
	}
}

func TestExtractTransportFailureIsUnavailable(t *testing.T) {
	structurer := &structurerFake{errs: []error{errors.New("connection refused")}}

	_, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(structurer.requests) != 1 {
		t.Fatalf("transport failures get no schema-repair retry, got %d calls", len(structurer.requests))
	}
}

func TestExtractUnparseablePayloadGetsRepairAttempt(t *testing.T) {
	parseErr := domain.WrapError(domain.ErrSchemaViolation, "parse structuring payload", errors.New("not json"))
	structurer := &structurerFake{
		errs: []error{parseErr, nil},
		payloads: []*domain.ExtractionPayload{
			nil,
			{Category: "notice", Importance: 2, Summary: "공지"},
		},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.Category != domain.CategoryNotice {
		t.Fatalf("unexpected category %s", rec.Category)
	}
}

func TestExtractResolvesResidualRelativeDate(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{{
			Category:   "assignment",
			RealDate:   strPtr("다음 주 금요일"),
			Importance: 5,
			Summary:    "과제 제출",
		}},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.RealDueDate == nil || rec.RealDueDate.Format("2006-01-02") != "2025-03-14" {
		t.Fatalf("expected residual phrase resolved from posted_at to 2025-03-14, got %v", rec.RealDueDate)
	}
}

func TestExtractNullDateMeansNoDueDate(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{{
			Category:   "material",
			RealDate:   nil,
			Importance: 1,
			Summary:    "강의 자료",
		}},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec.RealDueDate != nil {
		t.Fatalf("unresolvable or absent date must stay null, got %v", rec.RealDueDate)
	}
}

func TestExtractDueDateBeforePostedAtRejected(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{
			{Category: "assignment", RealDate: strPtr("2025-02-01"), Importance: 3, Summary: "과제"},
			{Category: "assignment", RealDate: strPtr("2025-02-01"), Importance: 3, Summary: "과제"},
		},
	}

	_, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if !domain.IsKind(err, domain.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation for due date before posted_at, got %v", err)
	}
}

func TestExtractPastDueCorrectionAccepted(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{{
			Category:   "assignment",
			RealDate:   strPtr("2025-02-01"),
			Importance: 3,
			Summary:    "기한 경과 과제 안내",
			PastDue:    true,
		}},
	}

	rec, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !rec.PastDue {
		t.Fatalf("expected past_due flag preserved")
	}
}

func TestExtractInstructionEmbedsAnchorNotWallClock(t *testing.T) {
	structurer := &structurerFake{
		payloads: []*domain.ExtractionPayload{{Category: "notice", Importance: 2, Summary: "공지"}},
	}

	if _, err := NewFactExtractor(structurer).Extract(context.Background(), sampleRaw()); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	req := structurer.requests[0]
	if !strings.Contains(req.Instruction, "2025-03-03") {
		t.Fatalf("instruction must embed the record's posted_at: %s", req.Instruction)
	}
	if !req.Anchor.Equal(sampleRaw().PostedAt) {
		t.Fatalf("anchor must be posted_at, got %v", req.Anchor)
	}
}
