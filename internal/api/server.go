package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/resolver"
	syncer "github.com/openlease/ratesync/internal/sync"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg domain.ServerConfig,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	res *resolver.Service,
	eligibility *resolver.EligibilityEvaluator,
	calc *pricing.Calculator,
	orchestrator *syncer.Orchestrator,
	pricingCfg domain.PricingConfig,
	version string,
) *Server {
	handler := NewHandler(repo, cache, bus, res, eligibility, calc, orchestrator, pricingCfg, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Pricing
	router.Post("/calculate", handler.Calculate)
	router.Get("/calculator-config", handler.CalculatorConfig)

	// Resolution
	router.Get("/resolve/program", handler.ResolveProgram)
	router.Get("/resolve/tax", handler.ResolveTax)

	// Rate table ingestion and retrieval
	router.Post("/ratetables", handler.IngestRates)
	router.Get("/ratetables", handler.ListRateTables)
	router.Get("/ratetables/{id}", handler.GetRateTable)

	// Deal catalog
	router.Post("/deals", handler.SaveDeal)
	router.Get("/deals/{id}", handler.GetDeal)

	// Program and tax administration
	router.Post("/programs", handler.CreateProgram)
	router.Get("/programs", handler.ListPrograms)
	router.Post("/taxconfigs", handler.CreateTaxConfig)
	router.Get("/taxconfigs", handler.ListTaxConfigs)

	// Sync orchestration
	router.Post("/sync/run", handler.RunSync)
	router.Get("/sync/logs", handler.QuerySyncLogs)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
