package engine

import (
	"fmt"
	"math"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// dutyOutcome is the computed duty for a selected rate.
type dutyOutcome struct {
	AppliedRate float64
	TotalDuty   float64
	Manual      bool
}

// computeDuty prices a shipment against a selected rate.
//
// Ad-valorem duty is rate * total value. Specific duty is amount * quantity
// and fails validation when the shipment carries no quantity. Compound duty
// is the sum of both components. Free-text rates produce no number; the
// outcome is flagged for manual assessment instead.
//
// Monetary results are rounded half-up to 2 decimal places.
func computeDuty(rate *domain.TariffRate, shipment domain.Shipment) (dutyOutcome, error) {
	if shipment.TotalValue < 0 {
		return dutyOutcome{}, fmt.Errorf("%w: totalValue must not be negative", ErrValidation)
	}
	if shipment.Quantity != nil && *shipment.Quantity < 0 {
		return dutyOutcome{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	switch rate.RateType {
	case domain.RateTypeAdValorem:
		return dutyOutcome{
			AppliedRate: rate.AdValoremRate,
			TotalDuty:   roundMoney(rate.AdValoremRate * shipment.TotalValue),
		}, nil

	case domain.RateTypeSpecific:
		if shipment.Quantity == nil {
			return dutyOutcome{}, fmt.Errorf("%w: quantity is required for a per-unit rate", ErrValidation)
		}
		return dutyOutcome{
			AppliedRate: rate.SpecificAmount,
			TotalDuty:   roundMoney(rate.SpecificAmount * *shipment.Quantity),
		}, nil

	case domain.RateTypeCompound:
		if shipment.Quantity == nil {
			return dutyOutcome{}, fmt.Errorf("%w: quantity is required for a compound rate", ErrValidation)
		}
		duty := rate.AdValoremRate*shipment.TotalValue + rate.SpecificAmount**shipment.Quantity
		return dutyOutcome{
			AppliedRate: rate.AdValoremRate,
			TotalDuty:   roundMoney(duty),
		}, nil

	default:
		// Free-text rate. There is nothing to compute; the caller gets the
		// rate description and a manual-assessment flag.
		return dutyOutcome{Manual: true}, nil
	}
}

// roundMoney rounds half-up to 2 decimal places. math.Round is
// half-away-from-zero, which matches half-up for the non-negative amounts
// duty math produces.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
