// Package domain defines the core types and interfaces for tariffd.
package domain

import (
	"strconv"
	"time"
)

// Basis identifies which duty regime a tariff rate belongs to.
type Basis string

const (
	// BasisDefault is the most-favoured-nation rate, applied regardless of origin.
	BasisDefault Basis = "MFN"

	// BasisPreferential is a reduced rate available under a trade agreement
	// when the origin country qualifies.
	BasisPreferential Basis = "PREF"
)

// RateType identifies how a tariff rate is expressed.
type RateType string

const (
	// RateTypeAdValorem is a percentage of shipment value (stored as a decimal fraction).
	RateTypeAdValorem RateType = "ad_valorem"

	// RateTypeSpecific is a fixed amount per unit.
	RateTypeSpecific RateType = "specific"

	// RateTypeCompound combines an ad-valorem component with a per-unit component.
	RateTypeCompound RateType = "compound"

	// RateTypeOther is a free-text rate that cannot be computed numerically
	// (e.g. tariff-quota text). Duty requires manual assessment.
	RateTypeOther RateType = "other"
)

// AgreementStatus is the lifecycle state of a trade agreement.
type AgreementStatus string

const (
	AgreementInForce  AgreementStatus = "in_force"
	AgreementSigned   AgreementStatus = "signed"
	AgreementInactive AgreementStatus = "inactive"
)

// Country is immutable reference data.
type Country struct {
	ID   string `json:"id"`
	ISO2 string `json:"iso2"`
	ISO3 string `json:"iso3"`
	Name string `json:"name"`
}

// Product is a product classification, unique per (destination, hs version, hs code).
type Product struct {
	ID              string `json:"id"`
	DestinationISO3 string `json:"destinationIso3"`
	HSVersion       string `json:"hsVersion"`
	HSCode          string `json:"hsCode"`
	Label           string `json:"label"`
}

// Agreement is a trade agreement carrying the RVC qualification threshold.
type Agreement struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Status           AgreementStatus `json:"status"`
	RVCThreshold     float64         `json:"rvcThreshold"` // percent, e.g. 40.0
	EnteredIntoForce *time.Time      `json:"enteredIntoForce,omitempty"`
	PartyISO3s       []string        `json:"parties,omitempty"`
}

// RooRule is a rule of origin: the qualification method gating preferential
// treatment for one (agreement, product) pair. At most one rule per pair.
type RooRule struct {
	ID          string `json:"id"`
	AgreementID string `json:"agreementId"`
	ProductID   string `json:"productId"`

	// Method is "rvc" for the built-in value-content test, or "cel" for a
	// custom expression evaluated by the roo engine.
	Method string `json:"method"`

	// Threshold overrides the agreement-level RVC threshold when set (> 0).
	Threshold float64 `json:"threshold"`

	// Expression is the CEL qualification expression for method "cel".
	Expression string `json:"expression,omitempty"`

	RequiresCertificate bool `json:"requiresCertificate"`
}

// TariffRate is one rate row in the catalog. Rows are returned in full by
// catalog queries; for preferential rows the agreement is embedded so the
// engine never triggers a further fetch mid-computation.
type TariffRate struct {
	ID           string `json:"id"`
	ImporterISO3 string `json:"importerIso3"`

	// OriginISO3 is empty for default-basis rows (they apply to any origin).
	OriginISO3 string `json:"originIso3,omitempty"`

	ProductID string `json:"productId"`
	Basis     Basis  `json:"basis"`

	// AgreementID and Agreement are set only when Basis is PREF.
	AgreementID string     `json:"agreementId,omitempty"`
	Agreement   *Agreement `json:"agreement,omitempty"`

	RateType RateType `json:"rateType"`

	// AdValoremRate is a decimal fraction (0.10 means 10%).
	AdValoremRate float64 `json:"adValoremRate,omitempty"`

	SpecificAmount float64 `json:"specificAmount,omitempty"`
	SpecificUnit   string  `json:"specificUnit,omitempty"`

	// NonAdValoremNote carries the free-text description for RateTypeOther.
	NonAdValoremNote string `json:"nonAdValoremNote,omitempty"`

	// Validity window: ValidFrom inclusive, ValidTo inclusive when present.
	ValidFrom time.Time  `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo,omitempty"`

	SourceRef string `json:"sourceRef,omitempty"`
}

// ActiveOn reports whether the rate's validity window covers the given date.
// Both window edges are inclusive.
func (r *TariffRate) ActiveOn(asOf time.Time) bool {
	if asOf.Before(r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && asOf.After(*r.ValidTo) {
		return false
	}
	return true
}

// Describe returns a human-readable description of the rate for results and logs.
func (r *TariffRate) Describe() string {
	switch r.RateType {
	case RateTypeAdValorem:
		return formatPercent(r.AdValoremRate*100) + "% ad valorem"
	case RateTypeSpecific:
		return formatAmount(r.SpecificAmount) + " per " + unitOrDefault(r.SpecificUnit)
	case RateTypeCompound:
		return formatPercent(r.AdValoremRate*100) + "% + " + formatAmount(r.SpecificAmount) + " per " + unitOrDefault(r.SpecificUnit)
	default:
		if r.NonAdValoremNote != "" {
			return r.NonAdValoremNote
		}
		return "non-ad-valorem rate"
	}
}

// SalesTaxRate is the importer's standard sales-tax (VAT/GST) rate.
type SalesTaxRate struct {
	ImporterISO3 string  `json:"importerIso3"`
	StandardRate float64 `json:"standardRate"` // decimal fraction
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unitOrDefault(unit string) string {
	if unit == "" {
		return "unit"
	}
	return unit
}
