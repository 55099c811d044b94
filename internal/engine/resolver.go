package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// Qualifier evaluates custom rule-of-origin expressions. Rules with the
// built-in "rvc" method never reach the qualifier.
type Qualifier interface {
	Evaluate(ctx context.Context, rule *domain.RooRule, costs *domain.CostBreakdown, rvcPercent float64) (bool, error)
}

// Resolver turns a resolution request into a priced result. It is stateless
// and safe for concurrent use; all data comes from the catalog per call.
type Resolver struct {
	catalog   domain.Catalog
	qualifier Qualifier
	logger    *slog.Logger
}

// NewResolver creates a resolver over the given catalog. The qualifier may
// be nil, in which case expression-based rules fall back to the threshold
// test.
func NewResolver(catalog domain.Catalog, qualifier Qualifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		catalog:   catalog,
		qualifier: qualifier,
		logger:    logger,
	}
}

// Resolve executes the full decision procedure:
//
//  1. Validate the request and resolve the product classification.
//  2. Fetch default and preferential candidates concurrently.
//  3. Reduce each candidate set to one rate (latest effective date wins).
//  4. Run the rule-of-origin test if a preferential rate is in play.
//  5. Compute duty on the selected rate.
//
// A preferential rate applies only when the origin is known, its agreement
// is in force, cost inputs were supplied, and the qualification test passes.
// In every other case resolution falls back to the default basis; falling
// back is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, req *domain.ResolutionRequest) (*domain.ResolutionResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	hsVersion := req.HSVersion
	if hsVersion == "" {
		v, err := r.catalog.CurrentHSVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve current hs version: %w", err)
		}
		hsVersion = v
	}

	product, err := r.catalog.ResolveProduct(ctx, req.ImporterISO3, hsVersion, req.HSCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no classification for hs code %s (%s) in %s",
				ErrNotFound, req.HSCode, hsVersion, req.ImporterISO3)
		}
		return nil, fmt.Errorf("resolve product: %w", err)
	}

	defaults, preferentials, err := r.fetchCandidates(ctx, req, product.ID, asOf)
	if err != nil {
		return nil, err
	}

	defaultRate, err := pickCandidate(defaults)
	if err != nil {
		return nil, err
	}
	preferentialRate, err := pickCandidate(preferentials)
	if err != nil {
		return nil, err
	}

	selected := defaultRate
	basis := domain.BasisDefault
	var rvcPercent, rvcThreshold *float64
	requiresCertificate := false
	agreementName := ""

	if preferentialRate != nil {
		q, err := r.qualify(ctx, preferentialRate, product.ID, req.Costs)
		if err != nil {
			return nil, err
		}
		rvcPercent = q.rvcPercent
		rvcThreshold = q.threshold
		if q.qualified {
			selected = preferentialRate
			basis = domain.BasisPreferential
			requiresCertificate = q.requiresCertificate
			if preferentialRate.Agreement != nil {
				agreementName = preferentialRate.Agreement.Name
			}
		}
	}

	if selected == nil {
		return nil, fmt.Errorf("%w: no tariff rate for product %s into %s on %s",
			ErrNotFound, product.ID, req.ImporterISO3, asOf.Format("2006-01-02"))
	}

	duty, err := computeDuty(selected, req.Shipment)
	if err != nil {
		return nil, err
	}

	result := &domain.ResolutionResult{
		Basis:                    basis,
		ProductID:                product.ID,
		RateID:                   selected.ID,
		AppliedRateDescription:   selected.Describe(),
		RateType:                 selected.RateType,
		AppliedRate:              duty.AppliedRate,
		TotalDuty:                duty.TotalDuty,
		ManualAssessmentRequired: duty.Manual,
		RVCPercent:               rvcPercent,
		RVCThreshold:             rvcThreshold,
		RequiresCertificate:      requiresCertificate,
		AgreementName:            agreementName,
		SourceRef:                selected.SourceRef,
	}

	if req.IncludeSalesTax {
		tax, err := r.catalog.FetchSalesTaxRate(ctx, req.ImporterISO3)
		switch {
		case err == nil:
			rate := tax.StandardRate
			result.SalesTaxRate = &rate
		case errors.Is(err, domain.ErrNotFound):
			// No configured rate is fine; the field stays unset.
		default:
			return nil, fmt.Errorf("fetch sales tax rate: %w", err)
		}
	}

	r.logger.Debug("resolution complete",
		"importer", req.ImporterISO3,
		"origin", req.OriginISO3,
		"hs_code", req.HSCode,
		"basis", result.Basis,
		"rate_id", result.RateID,
		"total_duty", result.TotalDuty)

	return result, nil
}

// fetchCandidates loads both candidate sets in parallel. The preferential
// fetch only runs when an origin was given. Context cancellation inside
// either query surfaces as that query's error.
func (r *Resolver) fetchCandidates(ctx context.Context, req *domain.ResolutionRequest, productID string, asOf time.Time) ([]*domain.TariffRate, []*domain.TariffRate, error) {
	var (
		wg            sync.WaitGroup
		defaults      []*domain.TariffRate
		preferentials []*domain.TariffRate
		defErr        error
		prefErr       error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defaults, defErr = r.catalog.FetchDefaultCandidates(ctx, req.ImporterISO3, productID, asOf)
	}()

	if req.OriginISO3 != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			preferentials, prefErr = r.catalog.FetchPreferentialCandidates(ctx, req.ImporterISO3, req.OriginISO3, productID, asOf)
		}()
	}

	wg.Wait()

	if defErr != nil {
		return nil, nil, fmt.Errorf("fetch default candidates: %w", defErr)
	}
	if prefErr != nil {
		return nil, nil, fmt.Errorf("fetch preferential candidates: %w", prefErr)
	}
	return defaults, preferentials, nil
}

type qualification struct {
	qualified           bool
	rvcPercent          *float64
	threshold           *float64
	requiresCertificate bool
}

// qualify runs the rule-of-origin test for a preferential candidate.
// Cost-input validation and computation errors are surfaced; an absent cost
// breakdown or an unmet threshold simply fails to qualify.
func (r *Resolver) qualify(ctx context.Context, rate *domain.TariffRate, productID string, costs *domain.CostBreakdown) (qualification, error) {
	if rate.Agreement != nil && rate.Agreement.Status != domain.AgreementInForce {
		return qualification{}, nil
	}

	var rule *domain.RooRule
	if rate.AgreementID != "" {
		got, err := r.catalog.FetchRooRule(ctx, rate.AgreementID, productID)
		switch {
		case err == nil:
			rule = got
		case errors.Is(err, domain.ErrNotFound):
			// The agreement-level threshold applies.
		default:
			return qualification{}, fmt.Errorf("fetch roo rule: %w", err)
		}
	}

	if costs == nil {
		// Qualification cannot be evaluated without cost inputs.
		return qualification{}, nil
	}

	rvc, err := ComputeRVC(costs)
	if err != nil {
		return qualification{}, err
	}

	q := qualification{rvcPercent: &rvc}
	threshold, ok := qualificationThreshold(rate, rule)
	if !ok {
		return q, nil
	}
	q.threshold = &threshold

	if rule != nil && rule.Method == "cel" && rule.Expression != "" && r.qualifier != nil {
		qualified, err := r.qualifier.Evaluate(ctx, rule, costs, rvc)
		if err != nil {
			return qualification{}, fmt.Errorf("%w: evaluate origin rule %s: %v", ErrComputation, rule.ID, err)
		}
		q.qualified = qualified
	} else {
		q.qualified = Qualifies(rvc, threshold)
	}

	if q.qualified && rule != nil {
		q.requiresCertificate = rule.RequiresCertificate
	}
	return q, nil
}

func validateRequest(req *domain.ResolutionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", ErrValidation)
	}
	if !isISO3(req.ImporterISO3) {
		return fmt.Errorf("%w: importerIso3 must be a 3-letter country code", ErrValidation)
	}
	if req.OriginISO3 != "" && !isISO3(req.OriginISO3) {
		return fmt.Errorf("%w: originIso3 must be a 3-letter country code", ErrValidation)
	}
	if !isHSCode(req.HSCode) {
		return fmt.Errorf("%w: hsCode must be 4 to 10 digits", ErrValidation)
	}
	return nil
}

func isISO3(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func isHSCode(code string) bool {
	if len(code) < 4 || len(code) > 10 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
