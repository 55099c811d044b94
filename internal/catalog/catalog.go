// Package catalog provides a caching layer over the tariff catalog.
//
// Reference data (classifications, rules of origin, sales tax rates) changes
// rarely and is read on every resolution, so it is served from cache with a
// TTL. Rate candidate queries pass straight through: they depend on the
// as-of date and staleness there would change duty outcomes.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

// notFoundMarker is cached for missing records so repeated lookups of an
// unknown code do not hammer the database.
const notFoundMarker = "!"

// Cached wraps a Catalog with read-through caching.
type Cached struct {
	inner  domain.Catalog
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached creates a caching catalog. A zero TTL defaults to 5 minutes.
func NewCached(inner domain.Catalog, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// CurrentHSVersion serves the taxonomy version from cache.
func (c *Cached) CurrentHSVersion(ctx context.Context) (string, error) {
	key := "hsversion"
	if data := c.lookup(ctx, key); data != nil && string(data) != notFoundMarker {
		return string(data), nil
	}

	version, err := c.inner.CurrentHSVersion(ctx)
	if err != nil {
		return "", err
	}
	c.store(ctx, key, []byte(version))
	return version, nil
}

// ResolveProduct serves classifications from cache, including negative hits.
func (c *Cached) ResolveProduct(ctx context.Context, destinationISO3, hsVersion, hsCode string) (*domain.Product, error) {
	key := "product:" + destinationISO3 + ":" + hsVersion + ":" + hsCode

	if data := c.lookup(ctx, key); data != nil {
		if string(data) == notFoundMarker {
			return nil, domain.ErrNotFound
		}
		var p domain.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	product, err := c.inner.ResolveProduct(ctx, destinationISO3, hsVersion, hsCode)
	if errors.Is(err, domain.ErrNotFound) {
		c.store(ctx, key, []byte(notFoundMarker))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		c.store(ctx, key, data)
	}
	return product, nil
}

// FetchDefaultCandidates passes through to the underlying catalog.
func (c *Cached) FetchDefaultCandidates(ctx context.Context, importerISO3, productID string, asOf time.Time) ([]*domain.TariffRate, error) {
	return c.inner.FetchDefaultCandidates(ctx, importerISO3, productID, asOf)
}

// FetchPreferentialCandidates passes through to the underlying catalog.
func (c *Cached) FetchPreferentialCandidates(ctx context.Context, importerISO3, originISO3, productID string, asOf time.Time) ([]*domain.TariffRate, error) {
	return c.inner.FetchPreferentialCandidates(ctx, importerISO3, originISO3, productID, asOf)
}

// FetchRooRule serves rules of origin from cache, including negative hits.
func (c *Cached) FetchRooRule(ctx context.Context, agreementID, productID string) (*domain.RooRule, error) {
	key := "roo:" + agreementID + ":" + productID

	if data := c.lookup(ctx, key); data != nil {
		if string(data) == notFoundMarker {
			return nil, domain.ErrNotFound
		}
		var rule domain.RooRule
		if err := json.Unmarshal(data, &rule); err == nil {
			return &rule, nil
		}
	}

	rule, err := c.inner.FetchRooRule(ctx, agreementID, productID)
	if errors.Is(err, domain.ErrNotFound) {
		c.store(ctx, key, []byte(notFoundMarker))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rule); err == nil {
		c.store(ctx, key, data)
	}
	return rule, nil
}

// FetchSalesTaxRate serves sales-tax rates from cache, including negative hits.
func (c *Cached) FetchSalesTaxRate(ctx context.Context, importerISO3 string) (*domain.SalesTaxRate, error) {
	key := "vat:" + importerISO3

	if data := c.lookup(ctx, key); data != nil {
		if string(data) == notFoundMarker {
			return nil, domain.ErrNotFound
		}
		var rate domain.SalesTaxRate
		if err := json.Unmarshal(data, &rate); err == nil {
			return &rate, nil
		}
	}

	rate, err := c.inner.FetchSalesTaxRate(ctx, importerISO3)
	if errors.Is(err, domain.ErrNotFound) {
		c.store(ctx, key, []byte(notFoundMarker))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rate); err == nil {
		c.store(ctx, key, data)
	}
	return rate, nil
}

// Invalidate drops cached entries for a product lookup, rule, or tax rate.
// Called by the admin API after writes.
func (c *Cached) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.Warn("cache invalidation failed", "key", key, "error", err)
		}
	}
}

// lookup reads the cache, treating errors as misses. A broken cache slows
// resolution down but never breaks it.
func (c *Cached) lookup(ctx context.Context, key string) []byte {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil
	}
	return data
}

func (c *Cached) store(ctx context.Context, key string, data []byte) {
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
