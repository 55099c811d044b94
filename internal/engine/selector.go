package engine

import (
	"fmt"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// pickCandidate reduces a candidate list to the single applicable rate.
//
// The catalog may legitimately hold several rows whose validity windows
// overlap the as-of date (a new rate published before the old one is
// closed). The most recently effective row wins. Two rows sharing the same
// basis and the same effective date cannot be ordered and are reported as
// ambiguous rather than picked arbitrarily.
//
// Returns nil, nil when the list is empty.
func pickCandidate(candidates []*domain.TariffRate) (*domain.TariffRate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	tied := false
	for _, c := range candidates[1:] {
		switch {
		case c.ValidFrom.After(best.ValidFrom):
			best = c
			tied = false
		case c.ValidFrom.Equal(best.ValidFrom):
			tied = true
		}
	}
	if tied {
		return nil, fmt.Errorf("%w: multiple %s rates effective from %s",
			ErrAmbiguousData, best.Basis, best.ValidFrom.Format("2006-01-02"))
	}
	return best, nil
}

// qualificationThreshold returns the RVC threshold applying to a
// preferential rate: the rule-of-origin threshold when one is set, else the
// agreement-level threshold. ok is false when neither is configured, which
// means preferential treatment cannot be granted.
func qualificationThreshold(rate *domain.TariffRate, rule *domain.RooRule) (float64, bool) {
	if rule != nil && rule.Threshold > 0 {
		return rule.Threshold, true
	}
	if rate.Agreement != nil && rate.Agreement.RVCThreshold > 0 {
		return rate.Agreement.RVCThreshold, true
	}
	return 0, false
}
