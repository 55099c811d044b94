package engine

import (
	"fmt"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// ComputeRVC returns the regional value content percentage for a cost
// breakdown:
//
//	RVC% = (material + labour + overhead + profit + other) / FOB * 100
//
// Negative cost components are rejected with ErrValidation. A zero or
// negative free-on-board value cannot anchor the formula and returns
// ErrComputation instead of producing an infinity or NaN artifact.
func ComputeRVC(costs *domain.CostBreakdown) (float64, error) {
	if costs == nil {
		return 0, fmt.Errorf("%w: cost breakdown is required", ErrValidation)
	}

	components := []struct {
		name  string
		value float64
	}{
		{"materialCost", costs.MaterialCost},
		{"labourCost", costs.LabourCost},
		{"overheadCost", costs.OverheadCost},
		{"profit", costs.Profit},
		{"otherCosts", costs.OtherCosts},
	}
	for _, c := range components {
		if c.value < 0 {
			return 0, fmt.Errorf("%w: %s must not be negative", ErrValidation, c.name)
		}
	}

	if costs.FreeOnBoardValue <= 0 {
		return 0, fmt.Errorf("%w: free on board value must be positive", ErrComputation)
	}

	originating := costs.MaterialCost + costs.LabourCost + costs.OverheadCost + costs.Profit + costs.OtherCosts
	return originating / costs.FreeOnBoardValue * 100, nil
}

// Qualifies reports whether an RVC percentage meets a qualification
// threshold. The boundary is inclusive: a shipment exactly at the threshold
// qualifies.
func Qualifies(rvcPercent, threshold float64) bool {
	return rvcPercent >= threshold
}
