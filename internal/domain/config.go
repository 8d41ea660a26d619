package domain

import (
	"time"
)

// Config holds the complete ratesync configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Sync controls the recalculation orchestrator.
	Sync SyncConfig `json:"sync"`

	// Pricing holds the overridable business constants.
	Pricing PricingConfig `json:"pricing"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// SyncConfig holds sync orchestrator settings.
type SyncConfig struct {
	// MaxGroupWorkers bounds concurrent (brand, model) group recalculation.
	MaxGroupWorkers int `json:"maxGroupWorkers"`

	// RunTimeout is the per-run deadline.
	RunTimeout time.Duration `json:"runTimeout"`

	// Interval is the scheduler period; zero disables periodic runs.
	Interval time.Duration `json:"interval"`
}

// PricingConfig names the business constants baked into the original rate
// sheets so operators can override them instead of re-deriving intent.
type PricingConfig struct {
	// DefaultTaxRate applies when no TaxConfig matches (CA statewide).
	DefaultTaxRate float64 `json:"defaultTaxRate"`

	// OnePayDiscountFactor is the lump-sum payment discount multiplier.
	OnePayDiscountFactor float64 `json:"onePayDiscountFactor"`

	// NaiveMoneyFactorMarkup is added to the money factor when building
	// the undiscounted comparison deal for the savings benchmark.
	NaiveMoneyFactorMarkup float64 `json:"naiveMoneyFactorMarkup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./ratesync.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Sync: SyncConfig{
			MaxGroupWorkers: 4,
			RunTimeout:      5 * time.Minute,
			Interval:        0,
		},
		Pricing: PricingConfig{
			DefaultTaxRate:         0.0925,
			OnePayDiscountFactor:   0.92,
			NaiveMoneyFactorMarkup: 0.0004,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ratesync",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "ratesync",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Sync.MaxGroupWorkers = 16
	cfg.Tracing.Enabled = true
	return cfg
}
