package repository

// Schema definitions for the ratesync database.
// Compatible with both SQLite and PostgreSQL.

// schemaRateTables stores immutable rate-table snapshots. Rows are never
// updated; the current table for a group is the newest row.
const schemaRateTables = `
CREATE TABLE IF NOT EXISTS rate_tables (
    id TEXT PRIMARY KEY,
    brand TEXT NOT NULL,
    model TEXT NOT NULL,
    valid_month TEXT NOT NULL,
    region TEXT,
    money_factor TEXT NOT NULL,
    residuals TEXT NOT NULL,
    incentives TEXT,
    constraints TEXT,
    source_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rate_tables_group ON rate_tables(brand, model, created_at);
`

const schemaPrograms = `
CREATE TABLE IF NOT EXISTS programs (
    id TEXT PRIMARY KEY,
    brand TEXT NOT NULL,
    model_pattern TEXT,
    trim_pattern TEXT,
    year_from INTEGER NOT NULL,
    year_to INTEGER NOT NULL,
    states TEXT NOT NULL,
    active_from TIMESTAMP NOT NULL,
    active_to TIMESTAMP NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    eligibility TEXT,
    fee_defaults TEXT NOT NULL,
    lender_name TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_programs_brand ON programs(brand);
`

const schemaTaxConfigs = `
CREATE TABLE IF NOT EXISTS tax_configs (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    zip_prefixes TEXT,
    tax_rate REAL NOT NULL,
    tax_on_fees INTEGER NOT NULL DEFAULT 0,
    breakdown TEXT
);

CREATE INDEX IF NOT EXISTS idx_tax_configs_state ON tax_configs(state);
`

// schemaDeals holds the marketplace deals. The version column is the
// optimistic-concurrency token for calculated-field writes.
const schemaDeals = `
CREATE TABLE IF NOT EXISTS deals (
    id TEXT PRIMARY KEY,
    brand TEXT NOT NULL,
    model TEXT NOT NULL,
    trim TEXT,
    year INTEGER NOT NULL,
    msrp REAL NOT NULL,
    selling_price REAL NOT NULL,
    term_months INTEGER NOT NULL,
    annual_mileage INTEGER NOT NULL,
    region TEXT,
    bank_label TEXT,
    state TEXT NOT NULL,
    zip TEXT,
    down_payment REAL NOT NULL DEFAULT 0,
    calculated TEXT,
    version INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_vehicle ON deals(brand, model);
`

const schemaSyncLogs = `
CREATE TABLE IF NOT EXISTS sync_logs (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    brand TEXT NOT NULL,
    model TEXT NOT NULL,
    changes TEXT NOT NULL,
    snapshot TEXT NOT NULL,
    deal_ids TEXT,
    deals_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_logs_group ON sync_logs(brand, model, timestamp);
CREATE INDEX IF NOT EXISTS idx_sync_logs_timestamp ON sync_logs(timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRateTables,
		schemaPrograms,
		schemaTaxConfigs,
		schemaDeals,
		schemaSyncLogs,
	}
}
