// Package engine implements tariff-rate resolution and duty calculation:
// classification lookup, candidate selection between default (MFN) and
// preferential bases, regional value content evaluation, and duty math.
//
// Every stage is a pure function over its explicit inputs. The engine holds
// no state across calls and never writes to the catalog.
package engine

import (
	"errors"
)

// Error taxonomy. All resolution failures wrap exactly one of these
// sentinels so batch callers can classify scenarios with errors.Is and
// continue independent resolutions.
var (
	// ErrValidation marks malformed input: bad country or product codes,
	// negative cost components, missing quantity for a per-unit rate.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks a missing classification or a missing applicable
	// rate. It is an explicit result variant, not a crash.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousData marks multiple active rate rows for the same basis
	// that the tie-break cannot order. Surfaced rather than silently picking
	// a row, since an arbitrary pick would produce an unauditable duty.
	ErrAmbiguousData = errors.New("ambiguous rate data")

	// ErrComputation marks an RVC computation attempted without a positive
	// reference value.
	ErrComputation = errors.New("computation error")
)
