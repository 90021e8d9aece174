package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

type RecordStatus string

const (
	StatusNew          RecordStatus = "new"
	StatusExtracting   RecordStatus = "extracting"
	StatusStored       RecordStatus = "stored"
	StatusPending      RecordStatus = "pending"
	StatusFailed       RecordStatus = "failed"
	StatusInconsistent RecordStatus = "inconsistent"
)

type Category string

const (
	CategoryAssignment Category = "assignment"
	CategoryExam       Category = "exam"
	CategoryNotice     Category = "notice"
	CategoryMaterial   Category = "material"
)

// RawRecord is one crawled text unit. Identity is a content hash of
// (source_url, text) so re-crawls of unchanged pages map to the same id.
type RawRecord struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	SourceURL string       `json:"source_url"`
	CourseID  string       `json:"course_id"`
	PostedAt  time.Time    `json:"posted_at"`
	FetchedAt time.Time    `json:"fetched_at"`
	Status    RecordStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
}

// StructuredRecord is the validated extraction result for one raw record.
// It is immutable after validation; re-extraction replaces it whole.
type StructuredRecord struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Category    Category   `json:"category"`
	RealDueDate *time.Time `json:"real_due_date,omitempty"`
	PastDue     bool       `json:"past_due,omitempty"`
	Importance  int        `json:"importance"`
	WeekIndex   int        `json:"week_index,omitempty"`
	Summary     string     `json:"summary"`
	PostedAt    time.Time  `json:"posted_at"`
	RawRef      string     `json:"raw_ref"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IndexText is the text both indexes derive their entry from.
func (r *StructuredRecord) IndexText(rawText string) string {
	if r.Summary == "" {
		return rawText
	}
	return r.Summary + "\n" + rawText
}

// ContentID derives the stable raw record id from its identity fields.
func ContentID(sourceURL, text string) string {
	sum := sha1.Sum([]byte(sourceURL + "|" + text))
	return hex.EncodeToString(sum[:])
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryAssignment, CategoryExam, CategoryNotice, CategoryMaterial:
		return true
	default:
		return false
	}
}

// ValidateStructured enforces the closed schema. The fact extractor runs it
// on model output and the knowledge store re-runs it at the write boundary.
func ValidateStructured(rec *StructuredRecord) error {
	if rec == nil {
		return WrapError(ErrSchemaViolation, "validate record", fmt.Errorf("nil record"))
	}
	if rec.ID == "" {
		return WrapError(ErrSchemaViolation, "validate record", fmt.Errorf("empty id"))
	}
	if !ValidCategory(rec.Category) {
		return WrapError(ErrSchemaViolation, "validate record", fmt.Errorf("category %q outside closed set", rec.Category))
	}
	if rec.Importance < 1 || rec.Importance > 5 {
		return WrapError(ErrSchemaViolation, "validate record", fmt.Errorf("importance %d outside [1,5]", rec.Importance))
	}
	if rec.PostedAt.IsZero() {
		return WrapError(ErrSchemaViolation, "validate record", fmt.Errorf("missing posted_at"))
	}
	// Compared at day granularity in posted_at's location: a midnight due
	// date on the posting day is not "earlier" than an afternoon posted_at,
	// and an instant must not change calendar days just because the due
	// date was parsed in a different zone.
	if rec.RealDueDate != nil && !rec.PastDue {
		due := rec.RealDueDate.In(rec.PostedAt.Location()).Format("2006-01-02")
		posted := rec.PostedAt.Format("2006-01-02")
		if due < posted {
			return WrapError(ErrSchemaViolation, "validate record",
				fmt.Errorf("real_due_date %s earlier than posted_at %s without past_due flag", due, posted))
		}
	}
	return nil
}
