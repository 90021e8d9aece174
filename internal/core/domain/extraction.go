package domain

import "time"

// StructuringRequest is the fixed-shape request to the external structuring
// interface. Anchor is always the record's posted_at, never wall clock.
type StructuringRequest struct {
	Instruction string
	RawText     string
	Anchor      time.Time
}

// ExtractionPayload is the fixed-shape response of the structuring
// interface. It is untrusted model output; nothing downstream consumes it
// before it passes ValidateStructured.
type ExtractionPayload struct {
	Category   string  `json:"category"`
	RealDate   *string `json:"real_date"`
	Importance int     `json:"importance"`
	Summary    string  `json:"summary"`
	WeekIndex  int     `json:"week_index,omitempty"`
	PastDue    bool    `json:"past_due,omitempty"`
}
