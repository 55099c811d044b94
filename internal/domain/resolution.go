package domain

import (
	"time"
)

// CostBreakdown holds the five cost components and the reference value used
// by the regional value content test.
type CostBreakdown struct {
	MaterialCost     float64 `json:"materialCost"`
	LabourCost       float64 `json:"labourCost"`
	OverheadCost     float64 `json:"overheadCost"`
	Profit           float64 `json:"profit"`
	OtherCosts       float64 `json:"otherCosts"`
	FreeOnBoardValue float64 `json:"fob"`
}

// Shipment carries the value and optional quantity duty is computed over.
type Shipment struct {
	TotalValue float64  `json:"totalValue"`
	Quantity   *float64 `json:"quantity,omitempty"`
}

// ResolutionRequest is the input to a single resolution call.
type ResolutionRequest struct {
	ImporterISO3 string `json:"importerIso3"`

	// OriginISO3 is optional; when absent only the default basis applies.
	OriginISO3 string `json:"originIso3,omitempty"`

	HSCode string `json:"hsCode"`

	// HSVersion defaults to the catalog's current version when empty.
	HSVersion string `json:"hsVersion,omitempty"`

	// AsOf defaults to the current date when zero.
	AsOf time.Time `json:"asOf,omitzero"`

	// Costs are required only when a preferential qualification test is to
	// be attempted.
	Costs *CostBreakdown `json:"costs,omitempty"`

	Shipment Shipment `json:"shipment"`

	IncludeSalesTax bool `json:"includeSalesTax,omitempty"`
}

// ResolutionResult is the outcome of a resolution call.
type ResolutionResult struct {
	Basis     Basis  `json:"basis"`
	ProductID string `json:"productId"`
	RateID    string `json:"rateId"`

	AppliedRateDescription string   `json:"appliedRateDescription"`
	RateType               RateType `json:"rateType"`

	// AppliedRate is the ad-valorem fraction for ad-valorem rates, or the
	// per-unit amount for specific rates. Zero for non-computable rates.
	AppliedRate float64 `json:"appliedRate"`

	TotalDuty float64 `json:"totalDuty"`

	// ManualAssessmentRequired is set when the applied rate is free text and
	// duty cannot be computed numerically; TotalDuty is zero in that case.
	ManualAssessmentRequired bool `json:"manualAssessmentRequired,omitempty"`

	// RVCPercent and RVCThreshold are nil when no qualification test ran.
	RVCPercent   *float64 `json:"rvcPercent,omitempty"`
	RVCThreshold *float64 `json:"rvcThreshold,omitempty"`

	// RequiresCertificate reports the rule-of-origin certificate requirement
	// when a preferential rate was selected.
	RequiresCertificate bool `json:"requiresCertificate,omitempty"`

	AgreementName string `json:"agreementName,omitempty"`

	// SalesTaxRate is set only when the request asked for it and the importer
	// has a configured rate. Applying it is the caller's choice.
	SalesTaxRate *float64 `json:"salesTaxRate,omitempty"`

	SourceRef string `json:"sourceRef,omitempty"`
}

// Calculation is a persisted resolution outcome, saved for audit.
type Calculation struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Notes string `json:"notes,omitempty"`

	Request ResolutionRequest `json:"request"`
	Result  ResolutionResult  `json:"result"`

	CreatedAt time.Time `json:"createdAt"`
}
