// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openlease/ratesync/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleDeal is returned when a calculated-fields write carries a
	// version that no longer matches the stored row.
	ErrStaleDeal = errors.New("deal version is stale")
)

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

// SaveRateTable inserts a new rate-table snapshot. Tables are immutable, so
// there is no conflict clause: re-ingesting produces a new row.
func (r *SQLRepository) SaveRateTable(ctx context.Context, table *domain.RateTable) error {
	if table.ID == "" || table.Brand == "" || table.Model == "" {
		return fmt.Errorf("%w: id, brand and model are required", ErrInvalidInput)
	}

	moneyFactor, _ := json.Marshal(table.MoneyFactor)
	residuals, _ := json.Marshal(table.Residuals)
	incentives, _ := json.Marshal(table.Incentives)
	constraints, _ := json.Marshal(table.Constraints)

	query := `
		INSERT INTO rate_tables (
			id, brand, model, valid_month, region,
			money_factor, residuals, incentives, constraints,
			source_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		table.ID, table.Brand, table.Model, table.ValidMonth, table.Region,
		string(moneyFactor), string(residuals), string(incentives), string(constraints),
		table.SourceID, table.CreatedAt,
	)
	return err
}

const rateTableColumns = `id, brand, model, valid_month, region,
		   money_factor, residuals, incentives, constraints,
		   source_id, created_at`

func scanRateTable(row interface{ Scan(...any) error }) (*domain.RateTable, error) {
	var t domain.RateTable
	var moneyFactor, residuals, incentives, constraints string

	err := row.Scan(
		&t.ID, &t.Brand, &t.Model, &t.ValidMonth, &t.Region,
		&moneyFactor, &residuals, &incentives, &constraints,
		&t.SourceID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(moneyFactor), &t.MoneyFactor)
	json.Unmarshal([]byte(residuals), &t.Residuals)
	json.Unmarshal([]byte(incentives), &t.Incentives)
	json.Unmarshal([]byte(constraints), &t.Constraints)

	return &t, nil
}

// GetRateTable retrieves a rate table by ID.
func (r *SQLRepository) GetRateTable(ctx context.Context, id string) (*domain.RateTable, error) {
	query := `SELECT ` + rateTableColumns + ` FROM rate_tables WHERE id = ?`

	table, err := scanRateTable(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return table, err
}

// GetCurrentRateTable retrieves the newest snapshot for a brand and model.
// Matching is case-insensitive.
func (r *SQLRepository) GetCurrentRateTable(ctx context.Context, brand, model string) (*domain.RateTable, error) {
	query := `
		SELECT ` + rateTableColumns + `
		FROM rate_tables
		WHERE LOWER(brand) = LOWER(?) AND LOWER(model) = LOWER(?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	table, err := scanRateTable(r.db.QueryRowContext(ctx, r.rebind(query), brand, model))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return table, err
}

// ListCurrentRateTables retrieves the newest snapshot per (brand, model).
func (r *SQLRepository) ListCurrentRateTables(ctx context.Context) ([]*domain.RateTable, error) {
	query := `
		SELECT ` + rateTableColumns + `
		FROM rate_tables rt
		WHERE NOT EXISTS (
			SELECT 1 FROM rate_tables newer
			WHERE newer.brand = rt.brand AND newer.model = rt.model
			  AND (newer.created_at > rt.created_at
			       OR (newer.created_at = rt.created_at AND newer.id > rt.id))
		)
		ORDER BY brand, model
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*domain.RateTable
	for rows.Next() {
		table, err := scanRateTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	return tables, rows.Err()
}

// SaveProgram stores a program definition, replacing an existing record with
// the same ID.
func (r *SQLRepository) SaveProgram(ctx context.Context, program *domain.ProgramDefinition) error {
	if program.ID == "" || program.Brand == "" {
		return fmt.Errorf("%w: id and brand are required", ErrInvalidInput)
	}

	states, _ := json.Marshal(program.States)
	feeDefaults, _ := json.Marshal(program.FeeDefaults)

	active := 0
	if program.Active {
		active = 1
	}

	query := `
		INSERT INTO programs (
			id, brand, model_pattern, trim_pattern, year_from, year_to,
			states, active_from, active_to, active, eligibility,
			fee_defaults, lender_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brand = excluded.brand,
			model_pattern = excluded.model_pattern,
			trim_pattern = excluded.trim_pattern,
			year_from = excluded.year_from,
			year_to = excluded.year_to,
			states = excluded.states,
			active_from = excluded.active_from,
			active_to = excluded.active_to,
			active = excluded.active,
			eligibility = excluded.eligibility,
			fee_defaults = excluded.fee_defaults,
			lender_name = excluded.lender_name
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		program.ID, program.Brand, program.ModelPattern, program.TrimPattern,
		program.YearFrom, program.YearTo,
		string(states), program.ActiveFrom, program.ActiveTo, active,
		program.Eligibility, string(feeDefaults), program.LenderName, program.CreatedAt,
	)
	return err
}

// ListPrograms retrieves program definitions, optionally filtered by brand.
// The resolver applies the remaining filters in memory.
func (r *SQLRepository) ListPrograms(ctx context.Context, brand string) ([]*domain.ProgramDefinition, error) {
	query := `
		SELECT id, brand, model_pattern, trim_pattern, year_from, year_to,
			   states, active_from, active_to, active, eligibility,
			   fee_defaults, lender_name, created_at
		FROM programs
	`
	var args []any
	if brand != "" {
		query += ` WHERE LOWER(brand) = LOWER(?)`
		args = append(args, brand)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []*domain.ProgramDefinition
	for rows.Next() {
		var p domain.ProgramDefinition
		var states, feeDefaults string
		var active int

		if err := rows.Scan(
			&p.ID, &p.Brand, &p.ModelPattern, &p.TrimPattern,
			&p.YearFrom, &p.YearTo,
			&states, &p.ActiveFrom, &p.ActiveTo, &active,
			&p.Eligibility, &feeDefaults, &p.LenderName, &p.CreatedAt,
		); err != nil {
			return nil, err
		}

		p.Active = active == 1
		json.Unmarshal([]byte(states), &p.States)
		json.Unmarshal([]byte(feeDefaults), &p.FeeDefaults)
		programs = append(programs, &p)
	}

	return programs, rows.Err()
}

// SaveTaxConfig stores a tax configuration, replacing an existing record
// with the same ID.
func (r *SQLRepository) SaveTaxConfig(ctx context.Context, cfg *domain.TaxConfig) error {
	if cfg.ID == "" || cfg.State == "" {
		return fmt.Errorf("%w: id and state are required", ErrInvalidInput)
	}

	zipPrefixes, _ := json.Marshal(cfg.ZipPrefixes)
	breakdown, _ := json.Marshal(cfg.Breakdown)

	taxOnFees := 0
	if cfg.TaxOnFees {
		taxOnFees = 1
	}

	query := `
		INSERT INTO tax_configs (
			id, state, zip_prefixes, tax_rate, tax_on_fees, breakdown
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			zip_prefixes = excluded.zip_prefixes,
			tax_rate = excluded.tax_rate,
			tax_on_fees = excluded.tax_on_fees,
			breakdown = excluded.breakdown
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cfg.ID, cfg.State, string(zipPrefixes), cfg.TaxRate, taxOnFees, string(breakdown),
	)
	return err
}

// ListTaxConfigs retrieves tax configurations, optionally filtered by state.
func (r *SQLRepository) ListTaxConfigs(ctx context.Context, state string) ([]*domain.TaxConfig, error) {
	query := `
		SELECT id, state, zip_prefixes, tax_rate, tax_on_fees, breakdown
		FROM tax_configs
	`
	var args []any
	if state != "" {
		query += ` WHERE LOWER(state) = LOWER(?)`
		args = append(args, state)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.TaxConfig
	for rows.Next() {
		var cfg domain.TaxConfig
		var zipPrefixes, breakdown string
		var taxOnFees int

		if err := rows.Scan(
			&cfg.ID, &cfg.State, &zipPrefixes, &cfg.TaxRate, &taxOnFees, &breakdown,
		); err != nil {
			return nil, err
		}

		cfg.TaxOnFees = taxOnFees == 1
		json.Unmarshal([]byte(zipPrefixes), &cfg.ZipPrefixes)
		json.Unmarshal([]byte(breakdown), &cfg.Breakdown)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveDeal stores a deal. On conflict the vehicle and requested-term fields
// are replaced but the calculated fields and version token are preserved, so
// catalog updates never race the sync path.
func (r *SQLRepository) SaveDeal(ctx context.Context, deal *domain.Deal) error {
	if deal.ID == "" || deal.Brand == "" || deal.Model == "" {
		return fmt.Errorf("%w: id, brand and model are required", ErrInvalidInput)
	}

	calculated := ""
	if deal.Calculated != nil {
		b, _ := json.Marshal(deal.Calculated)
		calculated = string(b)
	}

	query := `
		INSERT INTO deals (
			id, brand, model, trim, year, msrp, selling_price,
			term_months, annual_mileage, region, bank_label, state, zip,
			down_payment, calculated, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brand = excluded.brand,
			model = excluded.model,
			trim = excluded.trim,
			year = excluded.year,
			msrp = excluded.msrp,
			selling_price = excluded.selling_price,
			term_months = excluded.term_months,
			annual_mileage = excluded.annual_mileage,
			region = excluded.region,
			bank_label = excluded.bank_label,
			state = excluded.state,
			zip = excluded.zip,
			down_payment = excluded.down_payment,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		deal.ID, deal.Brand, deal.Model, deal.Trim, deal.Year,
		deal.MSRP, deal.SellingPrice,
		deal.TermMonths, deal.AnnualMileage, deal.Region, deal.BankLabel,
		deal.State, deal.Zip, deal.DownPayment,
		calculated, deal.Version, deal.CreatedAt, deal.UpdatedAt,
	)
	return err
}

const dealColumns = `id, brand, model, trim, year, msrp, selling_price,
		   term_months, annual_mileage, region, bank_label, state, zip,
		   down_payment, calculated, version, created_at, updated_at`

func scanDeal(row interface{ Scan(...any) error }) (*domain.Deal, error) {
	var d domain.Deal
	var calculated string

	err := row.Scan(
		&d.ID, &d.Brand, &d.Model, &d.Trim, &d.Year,
		&d.MSRP, &d.SellingPrice,
		&d.TermMonths, &d.AnnualMileage, &d.Region, &d.BankLabel,
		&d.State, &d.Zip, &d.DownPayment,
		&calculated, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if calculated != "" {
		d.Calculated = &domain.CalculatedFields{}
		json.Unmarshal([]byte(calculated), d.Calculated)
	}

	return &d, nil
}

// GetDeal retrieves a deal by ID.
func (r *SQLRepository) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = ?`

	deal, err := scanDeal(r.db.QueryRowContext(ctx, r.rebind(query), dealID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return deal, err
}

// ListDealsByVehicle retrieves all deals for a brand and model.
func (r *SQLRepository) ListDealsByVehicle(ctx context.Context, brand, model string) ([]*domain.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE LOWER(brand) = LOWER(?) AND LOWER(model) = LOWER(?)
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), brand, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*domain.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}

	return deals, rows.Err()
}

// UpdateDealCalculated writes a deal's calculated fields conditionally on
// the version the caller read. A mismatch returns ErrStaleDeal and leaves
// the row untouched.
func (r *SQLRepository) UpdateDealCalculated(ctx context.Context, dealID string, fields *domain.CalculatedFields, expectedVersion int64) error {
	if fields == nil {
		return fmt.Errorf("%w: calculated fields are required", ErrInvalidInput)
	}

	calculated, _ := json.Marshal(fields)

	query := `
		UPDATE deals
		SET calculated = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(calculated), time.Now().UTC(), dealID, expectedVersion,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Distinguish a missing deal from a concurrent write.
	var version int64
	err = r.db.QueryRowContext(ctx, r.rebind(`SELECT version FROM deals WHERE id = ?`), dealID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected version %d, found %d", ErrStaleDeal, expectedVersion, version)
}

// SaveSyncLog appends a sync log entry. The log is append-only; there is no
// update path.
func (r *SQLRepository) SaveSyncLog(ctx context.Context, entry *domain.SyncLogEntry) error {
	if entry.ID == "" || entry.Brand == "" || entry.Model == "" {
		return fmt.Errorf("%w: id, brand and model are required", ErrInvalidInput)
	}

	changes, _ := json.Marshal(entry.Changes)
	snapshot, _ := json.Marshal(entry.Snapshot)
	dealIDs, _ := json.Marshal(entry.DealIDsUpdated)

	query := `
		INSERT INTO sync_logs (
			id, timestamp, brand, model, changes, snapshot, deal_ids, deals_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.Timestamp, entry.Brand, entry.Model,
		string(changes), string(snapshot), string(dealIDs), entry.DealsCount,
	)
	return err
}

const syncLogColumns = `id, timestamp, brand, model, changes, snapshot, deal_ids, deals_count`

func scanSyncLog(row interface{ Scan(...any) error }) (*domain.SyncLogEntry, error) {
	var e domain.SyncLogEntry
	var changes, snapshot, dealIDs string

	err := row.Scan(
		&e.ID, &e.Timestamp, &e.Brand, &e.Model,
		&changes, &snapshot, &dealIDs, &e.DealsCount,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(changes), &e.Changes)
	json.Unmarshal([]byte(snapshot), &e.Snapshot)
	json.Unmarshal([]byte(dealIDs), &e.DealIDsUpdated)

	return &e, nil
}

// GetLatestSyncLog retrieves the most recent log entry for a brand and
// model. The entry's snapshot is the previous-state baseline for diffing.
func (r *SQLRepository) GetLatestSyncLog(ctx context.Context, brand, model string) (*domain.SyncLogEntry, error) {
	query := `
		SELECT ` + syncLogColumns + `
		FROM sync_logs
		WHERE LOWER(brand) = LOWER(?) AND LOWER(model) = LOWER(?)
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	entry, err := scanSyncLog(r.db.QueryRowContext(ctx, r.rebind(query), brand, model))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// QuerySyncLogs retrieves log entries matching the query, newest first.
func (r *SQLRepository) QuerySyncLogs(ctx context.Context, q domain.SyncLogQuery) ([]*domain.SyncLogEntry, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs WHERE 1 = 1`
	var args []any

	if q.Brand != "" {
		query += ` AND LOWER(brand) = LOWER(?)`
		args = append(args, q.Brand)
	}
	if q.Model != "" {
		query += ` AND LOWER(model) = LOWER(?)`
		args = append(args, q.Model)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC, id DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.SyncLogEntry
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
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
