// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tariffsheriff/tariffd/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
)

// defaultHSVersion is assumed when the catalog holds no classifications yet.
const defaultHSVersion = "HS2022"

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CurrentHSVersion returns the highest taxonomy version present in the
// catalog. HS version labels sort lexically (HS2017 < HS2022), so MAX picks
// the most recent one.
func (r *SQLRepository) CurrentHSVersion(ctx context.Context) (string, error) {
	var version sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MAX(hs_version) FROM hs_products`).Scan(&version)
	if err != nil {
		return "", err
	}
	if !version.Valid || version.String == "" {
		return defaultHSVersion, nil
	}
	return version.String, nil
}

// ResolveProduct maps (destination, hs version, hs code) to the canonical
// classification.
func (r *SQLRepository) ResolveProduct(ctx context.Context, destinationISO3, hsVersion, hsCode string) (*domain.Product, error) {
	query := `
		SELECT id, destination_iso3, hs_version, hs_code, label
		FROM hs_products
		WHERE destination_iso3 = ? AND hs_version = ? AND hs_code = ?
	`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, r.rebind(query), destinationISO3, hsVersion, hsCode).Scan(
		&p.ID, &p.DestinationISO3, &p.HSVersion, &p.HSCode, &p.Label,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchDefaultCandidates returns default-basis rates whose validity window
// covers asOf, most recently effective first.
func (r *SQLRepository) FetchDefaultCandidates(ctx context.Context, importerISO3, productID string, asOf time.Time) ([]*domain.TariffRate, error) {
	query := `
		SELECT id, importer_iso3, origin_iso3, product_id, basis, agreement_id,
		       rate_type, ad_valorem_rate, specific_amount, specific_unit,
		       non_ad_valorem_note, valid_from, valid_to, source_ref
		FROM tariff_rates
		WHERE importer_iso3 = ? AND product_id = ? AND basis = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		importerISO3, productID, string(domain.BasisDefault), asOf, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRates(rows)
}

// FetchPreferentialCandidates returns preferential-basis rates for the given
// origin whose validity window covers asOf, with agreements embedded so the
// engine needs no follow-up fetch.
func (r *SQLRepository) FetchPreferentialCandidates(ctx context.Context, importerISO3, originISO3, productID string, asOf time.Time) ([]*domain.TariffRate, error) {
	query := `
		SELECT t.id, t.importer_iso3, t.origin_iso3, t.product_id, t.basis, t.agreement_id,
		       t.rate_type, t.ad_valorem_rate, t.specific_amount, t.specific_unit,
		       t.non_ad_valorem_note, t.valid_from, t.valid_to, t.source_ref,
		       a.id, a.name, a.type, a.status, a.rvc_threshold, a.entered_into_force
		FROM tariff_rates t
		LEFT JOIN agreements a ON a.id = t.agreement_id
		WHERE t.importer_iso3 = ? AND t.origin_iso3 = ? AND t.product_id = ? AND t.basis = ?
		  AND t.valid_from <= ?
		  AND (t.valid_to IS NULL OR t.valid_to >= ?)
		ORDER BY t.valid_from DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		importerISO3, originISO3, productID, string(domain.BasisPreferential), asOf, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []*domain.TariffRate
	for rows.Next() {
		var (
			rate        domain.TariffRate
			agreementID sql.NullString
			unit        sql.NullString
			note        sql.NullString
			validTo     sql.NullTime
			sourceRef   sql.NullString

			aID        sql.NullString
			aName      sql.NullString
			aType      sql.NullString
			aStatus    sql.NullString
			aThreshold sql.NullFloat64
			aInForce   sql.NullTime
		)

		if err := rows.Scan(
			&rate.ID, &rate.ImporterISO3, &rate.OriginISO3, &rate.ProductID, &rate.Basis, &agreementID,
			&rate.RateType, &rate.AdValoremRate, &rate.SpecificAmount, &unit,
			&note, &rate.ValidFrom, &validTo, &sourceRef,
			&aID, &aName, &aType, &aStatus, &aThreshold, &aInForce,
		); err != nil {
			return nil, err
		}

		rate.AgreementID = agreementID.String
		rate.SpecificUnit = unit.String
		rate.NonAdValoremNote = note.String
		rate.SourceRef = sourceRef.String
		if validTo.Valid {
			t := validTo.Time
			rate.ValidTo = &t
		}

		if aID.Valid {
			agreement := &domain.Agreement{
				ID:           aID.String,
				Name:         aName.String,
				Type:         aType.String,
				Status:       domain.AgreementStatus(aStatus.String),
				RVCThreshold: aThreshold.Float64,
			}
			if aInForce.Valid {
				t := aInForce.Time
				agreement.EnteredIntoForce = &t
			}
			rate.Agreement = agreement
		}

		rates = append(rates, &rate)
	}

	return rates, rows.Err()
}

// FetchRooRule returns the rule of origin for (agreement, product).
func (r *SQLRepository) FetchRooRule(ctx context.Context, agreementID, productID string) (*domain.RooRule, error) {
	query := `
		SELECT id, agreement_id, product_id, method, threshold, expression, requires_certificate
		FROM roo_rules
		WHERE agreement_id = ? AND product_id = ?
	`

	var (
		rule       domain.RooRule
		expression sql.NullString
		certFlag   int
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), agreementID, productID).Scan(
		&rule.ID, &rule.AgreementID, &rule.ProductID, &rule.Method,
		&rule.Threshold, &expression, &certFlag,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Expression = expression.String
	rule.RequiresCertificate = certFlag == 1
	return &rule, nil
}

// FetchSalesTaxRate returns the importer's standard sales-tax rate.
func (r *SQLRepository) FetchSalesTaxRate(ctx context.Context, importerISO3 string) (*domain.SalesTaxRate, error) {
	query := `SELECT importer_iso3, standard_rate FROM sales_tax_rates WHERE importer_iso3 = ?`

	var rate domain.SalesTaxRate
	err := r.db.QueryRowContext(ctx, r.rebind(query), importerISO3).Scan(
		&rate.ImporterISO3, &rate.StandardRate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// SaveCountry inserts or updates a country.
func (r *SQLRepository) SaveCountry(ctx context.Context, c *domain.Country) error {
	if c == nil || c.ISO3 == "" {
		return fmt.Errorf("%w: iso3 is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO countries (id, iso2, iso3, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iso2 = excluded.iso2,
			iso3 = excluded.iso3,
			name = excluded.name
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), c.ID, c.ISO2, c.ISO3, c.Name)
	return err
}

// GetCountry retrieves a country by its ISO3 code.
func (r *SQLRepository) GetCountry(ctx context.Context, iso3 string) (*domain.Country, error) {
	query := `SELECT id, iso2, iso3, name FROM countries WHERE iso3 = ?`

	var c domain.Country
	err := r.db.QueryRowContext(ctx, r.rebind(query), iso3).Scan(&c.ID, &c.ISO2, &c.ISO3, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCountries returns all countries ordered by name.
func (r *SQLRepository) ListCountries(ctx context.Context) ([]*domain.Country, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, iso2, iso3, name FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []*domain.Country
	for rows.Next() {
		var c domain.Country
		if err := rows.Scan(&c.ID, &c.ISO2, &c.ISO3, &c.Name); err != nil {
			return nil, err
		}
		countries = append(countries, &c)
	}
	return countries, rows.Err()
}

// SaveProduct inserts or updates a product classification.
func (r *SQLRepository) SaveProduct(ctx context.Context, p *domain.Product) error {
	if p == nil || p.DestinationISO3 == "" || p.HSVersion == "" || p.HSCode == "" {
		return fmt.Errorf("%w: destination, hs version and hs code are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO hs_products (id, destination_iso3, hs_version, hs_code, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			destination_iso3 = excluded.destination_iso3,
			hs_version = excluded.hs_version,
			hs_code = excluded.hs_code,
			label = excluded.label
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.DestinationISO3, p.HSVersion, p.HSCode, p.Label)
	return err
}

// GetProduct retrieves a product by ID.
func (r *SQLRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT id, destination_iso3, hs_version, hs_code, label FROM hs_products WHERE id = ?`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&p.ID, &p.DestinationISO3, &p.HSVersion, &p.HSCode, &p.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns classifications for a destination, or all of them
// when destination is empty.
func (r *SQLRepository) ListProducts(ctx context.Context, destinationISO3 string) ([]*domain.Product, error) {
	query := `SELECT id, destination_iso3, hs_version, hs_code, label FROM hs_products`
	args := []any{}
	if destinationISO3 != "" {
		query += ` WHERE destination_iso3 = ?`
		args = append(args, destinationISO3)
	}
	query += ` ORDER BY hs_code`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.DestinationISO3, &p.HSVersion, &p.HSCode, &p.Label); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// SaveAgreement inserts or updates an agreement and replaces its party list
// in a single transaction.
func (r *SQLRepository) SaveAgreement(ctx context.Context, a *domain.Agreement) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: agreement id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var inForce sql.NullTime
	if a.EnteredIntoForce != nil {
		inForce = sql.NullTime{Time: *a.EnteredIntoForce, Valid: true}
	}

	query := `
		INSERT INTO agreements (id, name, type, status, rvc_threshold, entered_into_force)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			status = excluded.status,
			rvc_threshold = excluded.rvc_threshold,
			entered_into_force = excluded.entered_into_force
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		a.ID, a.Name, a.Type, string(a.Status), a.RVCThreshold, inForce); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM agreement_parties WHERE agreement_id = ?`), a.ID); err != nil {
		return err
	}
	for _, iso3 := range a.PartyISO3s {
		if _, err := tx.ExecContext(ctx,
			r.rebind(`INSERT INTO agreement_parties (agreement_id, country_iso3) VALUES (?, ?)`),
			a.ID, iso3); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAgreement retrieves an agreement with its party list.
func (r *SQLRepository) GetAgreement(ctx context.Context, id string) (*domain.Agreement, error) {
	query := `SELECT id, name, type, status, rvc_threshold, entered_into_force FROM agreements WHERE id = ?`

	var (
		a       domain.Agreement
		status  string
		inForce sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &a.Name, &a.Type, &status, &a.RVCThreshold, &inForce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = domain.AgreementStatus(status)
	if inForce.Valid {
		t := inForce.Time
		a.EnteredIntoForce = &t
	}

	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT country_iso3 FROM agreement_parties WHERE agreement_id = ? ORDER BY country_iso3`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var iso3 string
		if err := rows.Scan(&iso3); err != nil {
			return nil, err
		}
		a.PartyISO3s = append(a.PartyISO3s, iso3)
	}
	return &a, rows.Err()
}

// ListAgreements returns all agreements ordered by name. Party lists are not
// loaded; use GetAgreement for the full record.
func (r *SQLRepository) ListAgreements(ctx context.Context) ([]*domain.Agreement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, status, rvc_threshold, entered_into_force FROM agreements ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agreements []*domain.Agreement
	for rows.Next() {
		var (
			a       domain.Agreement
			status  string
			inForce sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &status, &a.RVCThreshold, &inForce); err != nil {
			return nil, err
		}
		a.Status = domain.AgreementStatus(status)
		if inForce.Valid {
			t := inForce.Time
			a.EnteredIntoForce = &t
		}
		agreements = append(agreements, &a)
	}
	return agreements, rows.Err()
}

// SaveRooRule inserts or updates a rule of origin. The unique constraint on
// (agreement, product) keeps at most one rule per pair.
func (r *SQLRepository) SaveRooRule(ctx context.Context, rule *domain.RooRule) error {
	if rule == nil || rule.AgreementID == "" || rule.ProductID == "" {
		return fmt.Errorf("%w: agreement and product are required", ErrInvalidInput)
	}

	cert := 0
	if rule.RequiresCertificate {
		cert = 1
	}

	query := `
		INSERT INTO roo_rules (id, agreement_id, product_id, method, threshold, expression, requires_certificate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agreement_id, product_id) DO UPDATE SET
			method = excluded.method,
			threshold = excluded.threshold,
			expression = excluded.expression,
			requires_certificate = excluded.requires_certificate
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.AgreementID, rule.ProductID, rule.Method,
		rule.Threshold, rule.Expression, cert)
	return err
}

// SaveTariffRate inserts or updates a tariff rate row.
func (r *SQLRepository) SaveTariffRate(ctx context.Context, rate *domain.TariffRate) error {
	if rate == nil || rate.ImporterISO3 == "" || rate.ProductID == "" {
		return fmt.Errorf("%w: importer and product are required", ErrInvalidInput)
	}
	if rate.Basis == domain.BasisPreferential && rate.OriginISO3 == "" {
		return fmt.Errorf("%w: preferential rates require an origin", ErrInvalidInput)
	}
	if rate.ValidFrom.IsZero() {
		return fmt.Errorf("%w: validFrom is required", ErrInvalidInput)
	}
	if rate.ValidTo != nil && rate.ValidTo.Before(rate.ValidFrom) {
		return fmt.Errorf("%w: validTo precedes validFrom", ErrInvalidInput)
	}

	var validTo sql.NullTime
	if rate.ValidTo != nil {
		validTo = sql.NullTime{Time: *rate.ValidTo, Valid: true}
	}

	query := `
		INSERT INTO tariff_rates (
			id, importer_iso3, origin_iso3, product_id, basis, agreement_id,
			rate_type, ad_valorem_rate, specific_amount, specific_unit,
			non_ad_valorem_note, valid_from, valid_to, source_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			importer_iso3 = excluded.importer_iso3,
			origin_iso3 = excluded.origin_iso3,
			product_id = excluded.product_id,
			basis = excluded.basis,
			agreement_id = excluded.agreement_id,
			rate_type = excluded.rate_type,
			ad_valorem_rate = excluded.ad_valorem_rate,
			specific_amount = excluded.specific_amount,
			specific_unit = excluded.specific_unit,
			non_ad_valorem_note = excluded.non_ad_valorem_note,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			source_ref = excluded.source_ref
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rate.ID, rate.ImporterISO3, rate.OriginISO3, rate.ProductID,
		string(rate.Basis), rate.AgreementID, string(rate.RateType),
		rate.AdValoremRate, rate.SpecificAmount, rate.SpecificUnit,
		rate.NonAdValoremNote, rate.ValidFrom, validTo, rate.SourceRef)
	return err
}

// GetTariffRate retrieves a tariff rate by ID.
func (r *SQLRepository) GetTariffRate(ctx context.Context, id string) (*domain.TariffRate, error) {
	query := `
		SELECT id, importer_iso3, origin_iso3, product_id, basis, agreement_id,
		       rate_type, ad_valorem_rate, specific_amount, specific_unit,
		       non_ad_valorem_note, valid_from, valid_to, source_ref
		FROM tariff_rates
		WHERE id = ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates, err := scanRates(rows)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, ErrNotFound
	}
	return rates[0], nil
}

// ListTariffRates returns rate rows for an importer, optionally narrowed to
// one product, most recently effective first.
func (r *SQLRepository) ListTariffRates(ctx context.Context, importerISO3, productID string) ([]*domain.TariffRate, error) {
	query := `
		SELECT id, importer_iso3, origin_iso3, product_id, basis, agreement_id,
		       rate_type, ad_valorem_rate, specific_amount, specific_unit,
		       non_ad_valorem_note, valid_from, valid_to, source_ref
		FROM tariff_rates
		WHERE importer_iso3 = ?
	`
	args := []any{importerISO3}
	if productID != "" {
		query += ` AND product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY valid_from DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRates(rows)
}

// SaveSalesTaxRate inserts or updates the importer's standard sales-tax rate.
func (r *SQLRepository) SaveSalesTaxRate(ctx context.Context, rate *domain.SalesTaxRate) error {
	if rate == nil || rate.ImporterISO3 == "" {
		return fmt.Errorf("%w: importer is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sales_tax_rates (importer_iso3, standard_rate, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(importer_iso3) DO UPDATE SET
			standard_rate = excluded.standard_rate,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rate.ImporterISO3, rate.StandardRate, time.Now().UTC())
	return err
}

// SaveCalculation stores a resolution outcome for audit.
func (r *SQLRepository) SaveCalculation(ctx context.Context, c *domain.Calculation) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: calculation id is required", ErrInvalidInput)
	}

	request, _ := json.Marshal(c.Request)
	result, _ := json.Marshal(c.Result)

	query := `
		INSERT INTO calculations (id, name, notes, request, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.Name, c.Notes, string(request), string(result), c.CreatedAt)
	return err
}

// GetCalculation retrieves a saved calculation by ID.
func (r *SQLRepository) GetCalculation(ctx context.Context, id string) (*domain.Calculation, error) {
	query := `SELECT id, name, notes, request, result, created_at FROM calculations WHERE id = ?`

	var (
		c               domain.Calculation
		request, result string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&c.ID, &c.Name, &c.Notes, &request, &result, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(request), &c.Request); err != nil {
		return nil, fmt.Errorf("failed to parse saved request: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &c.Result); err != nil {
		return nil, fmt.Errorf("failed to parse saved result: %w", err)
	}
	return &c, nil
}

// ListCalculations returns saved calculations, newest first.
func (r *SQLRepository) ListCalculations(ctx context.Context, limit, offset int) ([]*domain.Calculation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, name, notes, request, result, created_at
		FROM calculations
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calculations []*domain.Calculation
	for rows.Next() {
		var (
			c               domain.Calculation
			request, result string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Notes, &request, &result, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(request), &c.Request); err != nil {
			return nil, fmt.Errorf("failed to parse saved request %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(result), &c.Result); err != nil {
			return nil, fmt.Errorf("failed to parse saved result %s: %w", c.ID, err)
		}
		calculations = append(calculations, &c)
	}
	return calculations, rows.Err()
}

// DeleteCalculation removes a saved calculation.
func (r *SQLRepository) DeleteCalculation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM calculations WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanRates reads tariff rate rows produced by the 14-column rate SELECT.
func scanRates(rows *sql.Rows) ([]*domain.TariffRate, error) {
	var rates []*domain.TariffRate
	for rows.Next() {
		var (
			rate        domain.TariffRate
			agreementID sql.NullString
			unit        sql.NullString
			note        sql.NullString
			validTo     sql.NullTime
			sourceRef   sql.NullString
		)
		if err := rows.Scan(
			&rate.ID, &rate.ImporterISO3, &rate.OriginISO3, &rate.ProductID, &rate.Basis, &agreementID,
			&rate.RateType, &rate.AdValoremRate, &rate.SpecificAmount, &unit,
			&note, &rate.ValidFrom, &validTo, &sourceRef,
		); err != nil {
			return nil, err
		}

		rate.AgreementID = agreementID.String
		rate.SpecificUnit = unit.String
		rate.NonAdValoremNote = note.String
		rate.SourceRef = sourceRef.String
		if validTo.Valid {
			t := validTo.Time
			rate.ValidTo = &t
		}
		rates = append(rates, &rate)
	}
	return rates, rows.Err()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
