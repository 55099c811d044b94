package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "tariffd-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCountry", func(t *testing.T) {
		country := &domain.Country{ID: "c-sgp", ISO2: "SG", ISO3: "SGP", Name: "Singapore"}
		if err := repo.SaveCountry(ctx, country); err != nil {
			t.Fatalf("SaveCountry failed: %v", err)
		}

		retrieved, err := repo.GetCountry(ctx, "SGP")
		if err != nil {
			t.Fatalf("GetCountry failed: %v", err)
		}
		if retrieved.Name != "Singapore" {
			t.Errorf("expected Singapore, got %s", retrieved.Name)
		}

		// Upsert keeps a single row
		country.Name = "Republic of Singapore"
		if err := repo.SaveCountry(ctx, country); err != nil {
			t.Fatalf("SaveCountry upsert failed: %v", err)
		}
		all, err := repo.ListCountries(ctx)
		if err != nil {
			t.Fatalf("ListCountries failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 country after upsert, got %d", len(all))
		}
	})

	t.Run("SaveAndResolveProduct", func(t *testing.T) {
		product := &domain.Product{
			ID:              "prod-1",
			DestinationISO3: "SGP",
			HSVersion:       "HS2022",
			HSCode:          "850760",
			Label:           "Lithium-ion accumulators",
		}
		if err := repo.SaveProduct(ctx, product); err != nil {
			t.Fatalf("SaveProduct failed: %v", err)
		}

		resolved, err := repo.ResolveProduct(ctx, "SGP", "HS2022", "850760")
		if err != nil {
			t.Fatalf("ResolveProduct failed: %v", err)
		}
		if resolved.ID != "prod-1" {
			t.Errorf("expected prod-1, got %s", resolved.ID)
		}

		_, err = repo.ResolveProduct(ctx, "SGP", "HS2022", "999999")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown hs code, got: %v", err)
		}
	})

	t.Run("CurrentHSVersion", func(t *testing.T) {
		version, err := repo.CurrentHSVersion(ctx)
		if err != nil {
			t.Fatalf("CurrentHSVersion failed: %v", err)
		}
		if version != "HS2022" {
			t.Errorf("expected HS2022, got %s", version)
		}
	})

	t.Run("SaveAndGetAgreement", func(t *testing.T) {
		inForce := time.Date(2010, 5, 17, 0, 0, 0, 0, time.UTC)
		agreement := &domain.Agreement{
			ID:               "agr-asean",
			Name:             "ASEAN Trade in Goods Agreement",
			Type:             "multilateral",
			Status:           domain.AgreementInForce,
			RVCThreshold:     40,
			EnteredIntoForce: &inForce,
			PartyISO3s:       []string{"SGP", "VNM", "THA"},
		}
		if err := repo.SaveAgreement(ctx, agreement); err != nil {
			t.Fatalf("SaveAgreement failed: %v", err)
		}

		retrieved, err := repo.GetAgreement(ctx, "agr-asean")
		if err != nil {
			t.Fatalf("GetAgreement failed: %v", err)
		}
		if retrieved.RVCThreshold != 40 {
			t.Errorf("expected threshold 40, got %.1f", retrieved.RVCThreshold)
		}
		if len(retrieved.PartyISO3s) != 3 {
			t.Errorf("expected 3 parties, got %d", len(retrieved.PartyISO3s))
		}

		// Party list is replaced, not appended
		agreement.PartyISO3s = []string{"SGP", "VNM"}
		if err := repo.SaveAgreement(ctx, agreement); err != nil {
			t.Fatalf("SaveAgreement upsert failed: %v", err)
		}
		retrieved, _ = repo.GetAgreement(ctx, "agr-asean")
		if len(retrieved.PartyISO3s) != 2 {
			t.Errorf("expected 2 parties after upsert, got %d", len(retrieved.PartyISO3s))
		}
	})

	t.Run("SaveRooRule", func(t *testing.T) {
		rule := &domain.RooRule{
			ID:                  "roo-1",
			AgreementID:         "agr-asean",
			ProductID:           "prod-1",
			Method:              "rvc",
			Threshold:           40,
			RequiresCertificate: true,
		}
		if err := repo.SaveRooRule(ctx, rule); err != nil {
			t.Fatalf("SaveRooRule failed: %v", err)
		}

		retrieved, err := repo.FetchRooRule(ctx, "agr-asean", "prod-1")
		if err != nil {
			t.Fatalf("FetchRooRule failed: %v", err)
		}
		if !retrieved.RequiresCertificate {
			t.Error("expected certificate requirement")
		}

		// One rule per (agreement, product): saving again replaces it
		rule.ID = "roo-1b"
		rule.Threshold = 45
		if err := repo.SaveRooRule(ctx, rule); err != nil {
			t.Fatalf("SaveRooRule upsert failed: %v", err)
		}
		retrieved, _ = repo.FetchRooRule(ctx, "agr-asean", "prod-1")
		if retrieved.Threshold != 45 {
			t.Errorf("expected replaced threshold 45, got %.1f", retrieved.Threshold)
		}

		_, err = repo.FetchRooRule(ctx, "agr-asean", "prod-none")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("TariffRateCandidates", func(t *testing.T) {
		rates := []*domain.TariffRate{
			{
				ID: "rate-mfn-old", ImporterISO3: "SGP", ProductID: "prod-1",
				Basis: domain.BasisDefault, RateType: domain.RateTypeAdValorem, AdValoremRate: 0.12,
				ValidFrom: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: "rate-mfn", ImporterISO3: "SGP", ProductID: "prod-1",
				Basis: domain.BasisDefault, RateType: domain.RateTypeAdValorem, AdValoremRate: 0.10,
				ValidFrom: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: "rate-pref", ImporterISO3: "SGP", OriginISO3: "VNM", ProductID: "prod-1",
				Basis: domain.BasisPreferential, AgreementID: "agr-asean",
				RateType: domain.RateTypeAdValorem, AdValoremRate: 0,
				ValidFrom: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		}
		for _, rate := range rates {
			if err := repo.SaveTariffRate(ctx, rate); err != nil {
				t.Fatalf("SaveTariffRate %s failed: %v", rate.ID, err)
			}
		}

		asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		defaults, err := repo.FetchDefaultCandidates(ctx, "SGP", "prod-1", asOf)
		if err != nil {
			t.Fatalf("FetchDefaultCandidates failed: %v", err)
		}
		if len(defaults) != 2 {
			t.Fatalf("expected 2 default candidates, got %d", len(defaults))
		}
		if defaults[0].ID != "rate-mfn" {
			t.Errorf("expected most recently effective first, got %s", defaults[0].ID)
		}

		prefs, err := repo.FetchPreferentialCandidates(ctx, "SGP", "VNM", "prod-1", asOf)
		if err != nil {
			t.Fatalf("FetchPreferentialCandidates failed: %v", err)
		}
		if len(prefs) != 1 {
			t.Fatalf("expected 1 preferential candidate, got %d", len(prefs))
		}
		if prefs[0].Agreement == nil {
			t.Fatal("expected agreement embedded on preferential candidate")
		}
		if prefs[0].Agreement.RVCThreshold != 40 {
			t.Errorf("expected embedded threshold 40, got %.1f", prefs[0].Agreement.RVCThreshold)
		}

		// Origin without a preferential rate yields no candidates
		prefs, err = repo.FetchPreferentialCandidates(ctx, "SGP", "CHN", "prod-1", asOf)
		if err != nil {
			t.Fatalf("FetchPreferentialCandidates failed: %v", err)
		}
		if len(prefs) != 0 {
			t.Errorf("expected no candidates for CHN, got %d", len(prefs))
		}

		// Before any window opens nothing applies
		early := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
		defaults, err = repo.FetchDefaultCandidates(ctx, "SGP", "prod-1", early)
		if err != nil {
			t.Fatalf("FetchDefaultCandidates failed: %v", err)
		}
		if len(defaults) != 0 {
			t.Errorf("expected no candidates before validity, got %d", len(defaults))
		}
	})

	t.Run("TariffRateValidityWindow", func(t *testing.T) {
		validTo := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
		rate := &domain.TariffRate{
			ID: "rate-closed", ImporterISO3: "THA", ProductID: "prod-1",
			Basis: domain.BasisDefault, RateType: domain.RateTypeAdValorem, AdValoremRate: 0.05,
			ValidFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			ValidTo:   &validTo,
		}
		if err := repo.SaveTariffRate(ctx, rate); err != nil {
			t.Fatalf("SaveTariffRate failed: %v", err)
		}

		// Inclusive on the closing date
		got, err := repo.FetchDefaultCandidates(ctx, "THA", "prod-1", validTo)
		if err != nil {
			t.Fatalf("FetchDefaultCandidates failed: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected candidate on closing date, got %d", len(got))
		}

		// Excluded the day after
		got, err = repo.FetchDefaultCandidates(ctx, "THA", "prod-1", validTo.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("FetchDefaultCandidates failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no candidate after window closed, got %d", len(got))
		}
	})

	t.Run("SaveTariffRateValidation", func(t *testing.T) {
		err := repo.SaveTariffRate(ctx, &domain.TariffRate{
			ID: "rate-bad", ImporterISO3: "SGP", ProductID: "prod-1",
			Basis: domain.BasisPreferential, RateType: domain.RateTypeAdValorem,
			ValidFrom: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected invalid-input for preferential rate without origin, got: %v", err)
		}

		badTo := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		err = repo.SaveTariffRate(ctx, &domain.TariffRate{
			ID: "rate-bad2", ImporterISO3: "SGP", ProductID: "prod-1",
			Basis: domain.BasisDefault, RateType: domain.RateTypeAdValorem,
			ValidFrom: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			ValidTo:   &badTo,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected invalid-input for inverted window, got: %v", err)
		}
	})

	t.Run("SalesTaxRate", func(t *testing.T) {
		if err := repo.SaveSalesTaxRate(ctx, &domain.SalesTaxRate{ImporterISO3: "SGP", StandardRate: 0.08}); err != nil {
			t.Fatalf("SaveSalesTaxRate failed: %v", err)
		}
		// Upsert replaces the rate
		if err := repo.SaveSalesTaxRate(ctx, &domain.SalesTaxRate{ImporterISO3: "SGP", StandardRate: 0.09}); err != nil {
			t.Fatalf("SaveSalesTaxRate upsert failed: %v", err)
		}

		rate, err := repo.FetchSalesTaxRate(ctx, "SGP")
		if err != nil {
			t.Fatalf("FetchSalesTaxRate failed: %v", err)
		}
		if rate.StandardRate != 0.09 {
			t.Errorf("expected 0.09, got %.2f", rate.StandardRate)
		}

		_, err = repo.FetchSalesTaxRate(ctx, "ZZZ")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("Calculations", func(t *testing.T) {
		calc := &domain.Calculation{
			ID:    "calc-001",
			Name:  "battery import baseline",
			Notes: "Q2 sourcing review",
			Request: domain.ResolutionRequest{
				ImporterISO3: "SGP",
				OriginISO3:   "VNM",
				HSCode:       "850760",
				Shipment:     domain.Shipment{TotalValue: 1000},
			},
			Result: domain.ResolutionResult{
				Basis:     domain.BasisPreferential,
				ProductID: "prod-1",
				RateID:    "rate-pref",
				TotalDuty: 0,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.SaveCalculation(ctx, calc); err != nil {
			t.Fatalf("SaveCalculation failed: %v", err)
		}

		retrieved, err := repo.GetCalculation(ctx, "calc-001")
		if err != nil {
			t.Fatalf("GetCalculation failed: %v", err)
		}
		if retrieved.Request.HSCode != "850760" {
			t.Errorf("expected saved request round-trip, got hs code %s", retrieved.Request.HSCode)
		}
		if retrieved.Result.Basis != domain.BasisPreferential {
			t.Errorf("expected saved result round-trip, got basis %s", retrieved.Result.Basis)
		}

		list, err := repo.ListCalculations(ctx, 10, 0)
		if err != nil {
			t.Fatalf("ListCalculations failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 calculation, got %d", len(list))
		}

		if err := repo.DeleteCalculation(ctx, "calc-001"); err != nil {
			t.Fatalf("DeleteCalculation failed: %v", err)
		}
		if err := repo.DeleteCalculation(ctx, "calc-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetTariffRate(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetAgreement(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetCalculation(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestEmptyCatalogHSVersion(t *testing.T) {
	repo := newTestRepo(t)

	version, err := repo.CurrentHSVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentHSVersion failed: %v", err)
	}
	if version != defaultHSVersion {
		t.Errorf("expected fallback %s, got %s", defaultHSVersion, version)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
