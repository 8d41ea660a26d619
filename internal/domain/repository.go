// Package domain defines the core types and interfaces for ratesync.
package domain

import (
	"context"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Rate table operations. Tables are immutable; SaveRateTable always
	// inserts a new snapshot and ListCurrentRateTables returns the most
	// recent snapshot per (brand, model).
	SaveRateTable(ctx context.Context, table *RateTable) error
	GetRateTable(ctx context.Context, id string) (*RateTable, error)
	GetCurrentRateTable(ctx context.Context, brand, model string) (*RateTable, error)
	ListCurrentRateTables(ctx context.Context) ([]*RateTable, error)

	// Program definition operations (written by the admin surface).
	SaveProgram(ctx context.Context, program *ProgramDefinition) error
	ListPrograms(ctx context.Context, brand string) ([]*ProgramDefinition, error)

	// Tax configuration operations.
	SaveTaxConfig(ctx context.Context, cfg *TaxConfig) error
	ListTaxConfigs(ctx context.Context, state string) ([]*TaxConfig, error)

	// Deal operations. The core updates calculated fields only; the write
	// is conditional on the version the caller read and stale writes are
	// rejected.
	SaveDeal(ctx context.Context, deal *Deal) error
	GetDeal(ctx context.Context, dealID string) (*Deal, error)
	ListDealsByVehicle(ctx context.Context, brand, model string) ([]*Deal, error)
	UpdateDealCalculated(ctx context.Context, dealID string, fields *CalculatedFields, expectedVersion int64) error

	// Sync log operations (append-only).
	SaveSyncLog(ctx context.Context, entry *SyncLogEntry) error
	GetLatestSyncLog(ctx context.Context, brand, model string) (*SyncLogEntry, error)
	QuerySyncLogs(ctx context.Context, q SyncLogQuery) ([]*SyncLogEntry, error)

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
	MaxOpenConns int
	MaxIdleConns int
}
