package engine

import (
	"context"
	"testing"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

func TestCompareRanksOrigins(t *testing.T) {
	catalog := newFixtureCatalog()
	// Add a second preferential lane from Thailand at 5%.
	catalog.rates = append(catalog.rates, &domain.TariffRate{
		ID: "rate-pref-tha", ImporterISO3: "SGP", OriginISO3: "THA", ProductID: "prod-1",
		Basis: domain.BasisPreferential, AgreementID: "agr-asean", Agreement: catalog.rates[1].Agreement,
		RateType: domain.RateTypeAdValorem, AdValoremRate: 0.05,
		ValidFrom: date(2022, 1, 1),
	})

	comparator := NewComparator(NewResolver(catalog, nil, nil), 4)

	base := baseRequest()
	base.OriginISO3 = ""

	result := comparator.Compare(context.Background(), base, []string{"THA", "VNM", "CHN"})

	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}

	// Input order is preserved
	if result.Outcomes[0].OriginISO3 != "THA" || result.Outcomes[1].OriginISO3 != "VNM" {
		t.Errorf("expected outcomes in input order, got %s then %s",
			result.Outcomes[0].OriginISO3, result.Outcomes[1].OriginISO3)
	}

	// VNM qualifies at 0%, THA at 5%, CHN falls back to the 10% default
	if result.BestOrigin != "VNM" {
		t.Errorf("expected best origin VNM, got %s", result.BestOrigin)
	}
	if result.Outcomes[1].Result == nil || result.Outcomes[1].Result.TotalDuty != 0 {
		t.Errorf("expected zero duty for VNM, got %+v", result.Outcomes[1].Result)
	}
	if result.Outcomes[2].Result == nil || result.Outcomes[2].Result.Basis != domain.BasisDefault {
		t.Errorf("expected default basis for CHN, got %+v", result.Outcomes[2].Result)
	}
}

func TestCompareIsolatesFailures(t *testing.T) {
	comparator := NewComparator(NewResolver(newFixtureCatalog(), nil, nil), 4)

	base := baseRequest()
	base.OriginISO3 = ""

	// Lowercase origin fails validation; the other origin still resolves.
	result := comparator.Compare(context.Background(), base, []string{"vnm", "VNM"})

	if result.Outcomes[0].Error == "" || result.Outcomes[0].ErrorKind != KindValidation {
		t.Errorf("expected validation outcome for bad origin, got %+v", result.Outcomes[0])
	}
	if result.Outcomes[1].Result == nil {
		t.Errorf("expected successful outcome for VNM, got %+v", result.Outcomes[1])
	}
	if result.BestOrigin != "VNM" {
		t.Errorf("expected best origin VNM, got %s", result.BestOrigin)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrValidation, KindValidation},
		{ErrNotFound, KindNotFound},
		{domain.ErrNotFound, KindNotFound},
		{ErrAmbiguousData, KindAmbiguousData},
		{ErrComputation, KindComputation},
		{context.DeadlineExceeded, KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.kind)
		}
	}
}

func TestCompareManualAssessmentNotBest(t *testing.T) {
	catalog := newFixtureCatalog()
	// Replace the VNM preferential rate with a free-text rate.
	catalog.rates[1].RateType = domain.RateTypeOther
	catalog.rates[1].NonAdValoremNote = "see tariff quota"

	comparator := NewComparator(NewResolver(catalog, nil, nil), 2)

	base := baseRequest()
	base.OriginISO3 = ""

	result := comparator.Compare(context.Background(), base, []string{"VNM", "CHN"})

	// VNM's outcome requires manual assessment and cannot win the ranking;
	// CHN's computable default duty does.
	if result.Outcomes[0].Result == nil || !result.Outcomes[0].Result.ManualAssessmentRequired {
		t.Fatalf("expected manual-assessment outcome for VNM, got %+v", result.Outcomes[0])
	}
	if result.BestOrigin != "CHN" {
		t.Errorf("expected best origin CHN, got %s", result.BestOrigin)
	}
}
