package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// Error kind labels used in API payloads and comparison outcomes.
const (
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindAmbiguousData = "ambiguous_data"
	KindComputation   = "computation"
	KindInternal      = "internal"
)

// KindOf classifies an error against the resolution taxonomy.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound), errors.Is(err, domain.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAmbiguousData):
		return KindAmbiguousData
	case errors.Is(err, ErrComputation):
		return KindComputation
	default:
		return KindInternal
	}
}

// Comparator resolves one shipment against several candidate origins in
// parallel. Each origin is an independent scenario; one failing origin is
// reported in its own outcome and never aborts the rest.
type Comparator struct {
	resolver      *Resolver
	maxConcurrent int
}

// NewComparator creates a comparator with a bounded fan-out.
func NewComparator(resolver *Resolver, maxConcurrent int) *Comparator {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Comparator{
		resolver:      resolver,
		maxConcurrent: maxConcurrent,
	}
}

// Compare runs the base request once per origin and ranks the outcomes.
// Outcomes keep the input origin order.
func (c *Comparator) Compare(ctx context.Context, base *domain.ResolutionRequest, origins []string) *domain.ComparisonResult {
	outcomes := make([]domain.OriginOutcome, len(origins))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConcurrent)

	for i, origin := range origins {
		wg.Add(1)
		go func(idx int, originISO3 string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			req := *base
			req.OriginISO3 = originISO3

			outcome := domain.OriginOutcome{OriginISO3: originISO3}
			result, err := c.resolver.Resolve(ctx, &req)
			if err != nil {
				outcome.Error = err.Error()
				outcome.ErrorKind = KindOf(err)
			} else {
				outcome.Result = result
			}
			outcomes[idx] = outcome
		}(i, origin)
	}

	wg.Wait()

	return &domain.ComparisonResult{
		Outcomes:    outcomes,
		BestOrigin:  bestOrigin(outcomes),
		CompletedAt: time.Now().UTC(),
	}
}

// bestOrigin picks the origin with the lowest computed duty. Origins needing
// manual assessment carry no number and are skipped.
func bestOrigin(outcomes []domain.OriginOutcome) string {
	best := ""
	bestDuty := 0.0
	for _, o := range outcomes {
		if o.Result == nil || o.Result.ManualAssessmentRequired {
			continue
		}
		if best == "" || o.Result.TotalDuty < bestDuty {
			best = o.OriginISO3
			bestDuty = o.Result.TotalDuty
		}
	}
	return best
}
