package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/core/temporal"
)

// FactExtractor turns a raw record into a validated structured record via
// the external structuring interface. Model output is untrusted input: it
// is validated against the closed schema, repaired once with an
// instruction naming the violated constraint, and rejected after that.
type FactExtractor struct {
	structurer ports.FactStructurer
}

func NewFactExtractor(structurer ports.FactStructurer) *FactExtractor {
	return &FactExtractor{structurer: structurer}
}

func (e *FactExtractor) Extract(ctx context.Context, raw *domain.RawRecord) (*domain.StructuredRecord, error) {
	payload, err := e.structurer.Structure(ctx, domain.StructuringRequest{
		Instruction: buildInstruction(raw),
		RawText:     raw.Text,
		Anchor:      raw.PostedAt,
	})

	var violation error
	if err != nil {
		if !domain.IsKind(err, domain.ErrSchemaViolation) {
			return nil, domain.WrapError(domain.ErrUnavailable, "structuring call", err)
		}
		// Unparseable payload shape counts as a schema violation and gets
		// the same single repair attempt as a field-level violation.
		violation = err
	} else if rec, verr := e.payloadToRecord(payload, raw); verr == nil {
		return rec, nil
	} else {
		violation = verr
	}

	payload, err = e.structurer.Structure(ctx, domain.StructuringRequest{
		Instruction: buildRepairInstruction(raw, violation),
		RawText:     raw.Text,
		Anchor:      raw.PostedAt,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrSchemaViolation) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrUnavailable, "structuring repair call", err)
	}

	rec, verr := e.payloadToRecord(payload, raw)
	if verr != nil {
		return nil, verr
	}
	return rec, nil
}

// payloadToRecord converts and validates. The temporal resolver handles any
// residual relative phrase the model left in real_date, anchored at the
// record's posted_at.
func (e *FactExtractor) payloadToRecord(payload *domain.ExtractionPayload, raw *domain.RawRecord) (*domain.StructuredRecord, error) {
	rec := &domain.StructuredRecord{
		ID:         raw.ID,
		CourseID:   raw.CourseID,
		Category:   normalizeCategory(payload.Category),
		PastDue:    payload.PastDue,
		Importance: payload.Importance,
		WeekIndex:  payload.WeekIndex,
		Summary:    strings.TrimSpace(payload.Summary),
		PostedAt:   raw.PostedAt,
		RawRef:     raw.SourceURL,
		UpdatedAt:  time.Now().UTC(),
	}

	if payload.RealDate != nil && strings.TrimSpace(*payload.RealDate) != "" {
		due, err := resolveDueDate(*payload.RealDate, raw.PostedAt)
		if err != nil {
			return nil, err
		}
		rec.RealDueDate = &due
	}

	if err := domain.ValidateStructured(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func resolveDueDate(value string, anchor time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if res, ok := temporal.Resolve(value, anchor); ok {
		return res.Date, nil
	}
	return time.Time{}, domain.WrapError(domain.ErrSchemaViolation, "validate record",
		fmt.Errorf("real_date %q is not a parseable or resolvable date", value))
}

// normalizeCategory maps loose model vocabulary onto the closed set;
// anything unmapped stays as-is and fails validation.
func normalizeCategory(category string) domain.Category {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "assignment", "homework", "quiz":
		return domain.CategoryAssignment
	case "exam", "midterm", "final":
		return domain.CategoryExam
	case "notice", "announcement":
		return domain.CategoryNotice
	case "material", "lecture", "resource":
		return domain.CategoryMaterial
	default:
		return domain.Category(strings.ToLower(strings.TrimSpace(category)))
	}
}

func buildInstruction(raw *domain.RawRecord) string {
	return fmt.Sprintf(`You are a strict data refinement specialist for campus course records.
The record below was posted at %s. Extract the following fields and return a single JSON object, nothing else:
- "category": one of "assignment", "exam", "notice", "material".
- "real_date": the due or event date as "YYYY-MM-DD" (or "YYYY-MM-DD HH:MM"). Calculate relative phrases like "next Friday" from the posted-at date above, never from today. Use null when no date applies.
- "importance": integer 1 (trivial) to 5 (critical deadline or exam).
- "summary": one concise, action-oriented sentence in the record's language.
- "week_index": the course week number when the text carries one (e.g. "3주차"), else 0.
- "past_due": true only when the record intentionally refers to a deadline before its own posting date.`,
		raw.PostedAt.Format("2006-01-02 (Monday)"))
}

func buildRepairInstruction(raw *domain.RawRecord, violation error) string {
	reason := "the previous output did not match the schema"
	if violation != nil {
		reason = violation.Error()
	}
	return buildInstruction(raw) + fmt.Sprintf(`

Your previous output was rejected: %s.
Return a corrected JSON object that satisfies every constraint above.`, reason)
}
