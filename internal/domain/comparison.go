package domain

import (
	"time"
)

// ComparisonRequest asks for the same shipment to be resolved against
// several candidate origins, for sourcing decisions.
type ComparisonRequest struct {
	ComparisonID string `json:"comparisonId,omitempty"`

	// Request is the base resolution request; its origin field is ignored
	// and replaced per candidate.
	Request ResolutionRequest `json:"request"`

	Origins []string `json:"origins"`
}

// OriginOutcome is the per-origin result of a comparison. Exactly one of
// Result and Error is set; a failing origin never hides the others.
type OriginOutcome struct {
	OriginISO3 string            `json:"originIso3"`
	Result     *ResolutionResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
}

// ComparisonResult is the outcome of a comparison run.
type ComparisonResult struct {
	ComparisonID string          `json:"comparisonId,omitempty"`
	Outcomes     []OriginOutcome `json:"outcomes"`

	// BestOrigin is the origin with the lowest computed duty. Empty when no
	// origin produced a computable duty.
	BestOrigin string `json:"bestOrigin,omitempty"`

	CompletedAt time.Time `json:"completedAt"`
}
