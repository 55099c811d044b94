package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by catalog and repository lookups when no record
// matches. It is a valid outcome, not a failure: callers decide whether a
// missing record is an error for their scenario.
var ErrNotFound = errors.New("record not found")

// Catalog is the narrow read-only interface the resolution engine consumes.
// Implementations return immutable value records in full; the engine never
// triggers an implicit further fetch mid-computation.
type Catalog interface {
	// CurrentHSVersion returns the catalog's current taxonomy version, used
	// when a resolution request omits one.
	CurrentHSVersion(ctx context.Context) (string, error)

	// ResolveProduct maps (destination, hs version, hs code) to the canonical
	// product record. Returns ErrNotFound when no classification exists.
	ResolveProduct(ctx context.Context, destinationISO3, hsVersion, hsCode string) (*Product, error)

	// FetchDefaultCandidates returns default-basis rates whose validity
	// window covers asOf. Zero, one, or multiple rows may be returned;
	// tie-breaking is the selector's concern.
	FetchDefaultCandidates(ctx context.Context, importerISO3, productID string, asOf time.Time) ([]*TariffRate, error)

	// FetchPreferentialCandidates returns preferential-basis rates for the
	// given origin whose validity window covers asOf, with agreements embedded.
	FetchPreferentialCandidates(ctx context.Context, importerISO3, originISO3, productID string, asOf time.Time) ([]*TariffRate, error)

	// FetchRooRule returns the rule of origin for (agreement, product), or
	// ErrNotFound when the agreement has no product-specific rule.
	FetchRooRule(ctx context.Context, agreementID, productID string) (*RooRule, error)

	// FetchSalesTaxRate returns the importer's standard sales-tax rate, or
	// ErrNotFound when none is configured.
	FetchSalesTaxRate(ctx context.Context, importerISO3 string) (*SalesTaxRate, error)
}
