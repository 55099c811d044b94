package engine

import (
	"errors"
	"testing"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

func TestComputeDutyAdValorem(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeAdValorem, AdValoremRate: 0.10}

	out, err := computeDuty(rate, domain.Shipment{TotalValue: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalDuty != 100.0 {
		t.Errorf("expected duty 100.00, got %.2f", out.TotalDuty)
	}
	if out.AppliedRate != 0.10 {
		t.Errorf("expected applied rate 0.10, got %.4f", out.AppliedRate)
	}
	if out.Manual {
		t.Error("ad-valorem duty must not require manual assessment")
	}
}

func TestComputeDutyRoundsHalfUp(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeAdValorem, AdValoremRate: 0.0333}

	// 0.0333 * 123.45 = 4.110885 -> 4.11
	out, err := computeDuty(rate, domain.Shipment{TotalValue: 123.45})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalDuty != 4.11 {
		t.Errorf("expected duty 4.11, got %.4f", out.TotalDuty)
	}

	// 0.05 * 12.49 = 0.6245 -> 0.62, while 0.05 * 12.50 = 0.625 -> 0.63
	half := &domain.TariffRate{RateType: domain.RateTypeAdValorem, AdValoremRate: 0.05}
	out, _ = computeDuty(half, domain.Shipment{TotalValue: 12.50})
	if out.TotalDuty != 0.63 {
		t.Errorf("expected half-up rounding to 0.63, got %.4f", out.TotalDuty)
	}
}

func TestComputeDutySpecific(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeSpecific, SpecificAmount: 2.5, SpecificUnit: "kg"}

	qty := 40.0
	out, err := computeDuty(rate, domain.Shipment{TotalValue: 1000, Quantity: &qty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalDuty != 100.0 {
		t.Errorf("expected duty 100.00, got %.2f", out.TotalDuty)
	}
}

func TestComputeDutySpecificWithoutQuantity(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeSpecific, SpecificAmount: 2.5}

	_, err := computeDuty(rate, domain.Shipment{TotalValue: 1000})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing quantity, got %v", err)
	}
}

func TestComputeDutyCompound(t *testing.T) {
	rate := &domain.TariffRate{
		RateType:       domain.RateTypeCompound,
		AdValoremRate:  0.05,
		SpecificAmount: 1.25,
		SpecificUnit:   "kg",
	}

	qty := 20.0
	out, err := computeDuty(rate, domain.Shipment{TotalValue: 1000, Quantity: &qty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.05*1000 + 1.25*20 = 75.00
	if out.TotalDuty != 75.0 {
		t.Errorf("expected duty 75.00, got %.2f", out.TotalDuty)
	}
}

func TestComputeDutyFreeTextRate(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeOther, NonAdValoremNote: "see tariff quota 09.1234"}

	out, err := computeDuty(rate, domain.Shipment{TotalValue: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Manual {
		t.Error("free-text rate must flag manual assessment")
	}
	if out.TotalDuty != 0 {
		t.Errorf("expected zero duty for free-text rate, got %.2f", out.TotalDuty)
	}
}

func TestComputeDutyNegativeShipment(t *testing.T) {
	rate := &domain.TariffRate{RateType: domain.RateTypeAdValorem, AdValoremRate: 0.10}

	_, err := computeDuty(rate, domain.Shipment{TotalValue: -10})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for negative value, got %v", err)
	}

	qty := -1.0
	_, err = computeDuty(rate, domain.Shipment{TotalValue: 10, Quantity: &qty})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for negative quantity, got %v", err)
	}
}
