package repository

// Schema definitions for the tariffd catalog.
// Compatible with both SQLite and PostgreSQL.

const schemaCountries = `
CREATE TABLE IF NOT EXISTS countries (
    id TEXT PRIMARY KEY,
    iso2 TEXT NOT NULL UNIQUE,
    iso3 TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);
`

const schemaProducts = `
CREATE TABLE IF NOT EXISTS hs_products (
    id TEXT PRIMARY KEY,
    destination_iso3 TEXT NOT NULL,
    hs_version TEXT NOT NULL,
    hs_code TEXT NOT NULL,
    label TEXT NOT NULL,
    UNIQUE (destination_iso3, hs_version, hs_code)
);

CREATE INDEX IF NOT EXISTS idx_hs_products_lookup ON hs_products(destination_iso3, hs_version, hs_code);
`

const schemaAgreements = `
CREATE TABLE IF NOT EXISTS agreements (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT,
    status TEXT NOT NULL,
    rvc_threshold REAL NOT NULL DEFAULT 0,
    entered_into_force TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agreement_parties (
    agreement_id TEXT NOT NULL,
    country_iso3 TEXT NOT NULL,
    PRIMARY KEY (agreement_id, country_iso3)
);
`

const schemaRooRules = `
CREATE TABLE IF NOT EXISTS roo_rules (
    id TEXT PRIMARY KEY,
    agreement_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    method TEXT NOT NULL,
    threshold REAL NOT NULL DEFAULT 0,
    expression TEXT,
    requires_certificate INTEGER NOT NULL DEFAULT 0,
    UNIQUE (agreement_id, product_id)
);
`

const schemaTariffRates = `
CREATE TABLE IF NOT EXISTS tariff_rates (
    id TEXT PRIMARY KEY,
    importer_iso3 TEXT NOT NULL,
    origin_iso3 TEXT NOT NULL DEFAULT '',
    product_id TEXT NOT NULL,
    basis TEXT NOT NULL,
    agreement_id TEXT,
    rate_type TEXT NOT NULL,
    ad_valorem_rate REAL NOT NULL DEFAULT 0,
    specific_amount REAL NOT NULL DEFAULT 0,
    specific_unit TEXT,
    non_ad_valorem_note TEXT,
    valid_from TIMESTAMP NOT NULL,
    valid_to TIMESTAMP,
    source_ref TEXT
);

CREATE INDEX IF NOT EXISTS idx_tariff_rates_default ON tariff_rates(importer_iso3, product_id, basis, valid_from);
CREATE INDEX IF NOT EXISTS idx_tariff_rates_origin ON tariff_rates(importer_iso3, origin_iso3, product_id, basis, valid_from);
`

const schemaSalesTaxRates = `
CREATE TABLE IF NOT EXISTS sales_tax_rates (
    importer_iso3 TEXT PRIMARY KEY,
    standard_rate REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaCalculations = `
CREATE TABLE IF NOT EXISTS calculations (
    id TEXT PRIMARY KEY,
    name TEXT,
    notes TEXT,
    request TEXT NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calculations_created ON calculations(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCountries,
		schemaProducts,
		schemaAgreements,
		schemaRooRules,
		schemaTariffRates,
		schemaSalesTaxRates,
		schemaCalculations,
	}
}
