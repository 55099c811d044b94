package domain

import (
	"context"
	"time"
)

// Repository is the persistence interface. It embeds the read-only Catalog
// the engine consumes and adds the administrative write surface used by the
// reference-data API. The engine itself only ever sees the Catalog subset.
type Repository interface {
	Catalog

	// Country reference data
	SaveCountry(ctx context.Context, c *Country) error
	GetCountry(ctx context.Context, iso3 string) (*Country, error)
	ListCountries(ctx context.Context) ([]*Country, error)

	// Product classifications
	SaveProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, destinationISO3 string) ([]*Product, error)

	// Trade agreements and rules of origin
	SaveAgreement(ctx context.Context, a *Agreement) error
	GetAgreement(ctx context.Context, id string) (*Agreement, error)
	ListAgreements(ctx context.Context) ([]*Agreement, error)
	SaveRooRule(ctx context.Context, r *RooRule) error

	// Tariff rates
	SaveTariffRate(ctx context.Context, r *TariffRate) error
	GetTariffRate(ctx context.Context, id string) (*TariffRate, error)
	ListTariffRates(ctx context.Context, importerISO3, productID string) ([]*TariffRate, error)

	// Sales tax
	SaveSalesTaxRate(ctx context.Context, r *SalesTaxRate) error

	// Saved calculations (audit trail)
	SaveCalculation(ctx context.Context, c *Calculation) error
	GetCalculation(ctx context.Context, id string) (*Calculation, error)
	ListCalculations(ctx context.Context, limit, offset int) ([]*Calculation, error)
	DeleteCalculation(ctx context.Context, id string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
