// Ratesync - Lease pricing that stays in sync with the rate sheets.
// Copyright (c) 2026 openlease
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlease/ratesync/internal/api"
	"github.com/openlease/ratesync/internal/bus"
	"github.com/openlease/ratesync/internal/cache"
	"github.com/openlease/ratesync/internal/domain"
	"github.com/openlease/ratesync/internal/pricing"
	"github.com/openlease/ratesync/internal/repository"
	"github.com/openlease/ratesync/internal/resolver"
	syncer "github.com/openlease/ratesync/internal/sync"
	"github.com/openlease/ratesync/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("RATESYNC_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting ratesync",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("RATESYNC_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if v := os.Getenv("RATESYNC_SYNC_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid RATESYNC_SYNC_INTERVAL", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Sync.Interval = interval
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"sync_interval", cfg.Sync.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the program/tax resolver with CEL eligibility support
	eligibility, err := resolver.NewEligibilityEvaluator()
	if err != nil {
		slog.Error("failed to initialize eligibility evaluator", "error", err)
		os.Exit(1)
	}
	resolverSvc := resolver.NewService(repo, eligibility)
	slog.Info("resolver initialized")

	// Initialize the payment calculator
	calc := pricing.New(cfg.Pricing)
	slog.Info("calculator initialized",
		"default_tax_rate", cfg.Pricing.DefaultTaxRate,
		"one_pay_discount", cfg.Pricing.OnePayDiscountFactor,
	)

	// Initialize the sync orchestrator
	orchestrator := syncer.NewOrchestrator(repo, cacheImpl, busImpl, resolverSvc, calc, cfg.Sync, cfg.Pricing)
	slog.Info("sync orchestrator initialized",
		"max_group_workers", cfg.Sync.MaxGroupWorkers,
		"run_timeout", cfg.Sync.RunTimeout,
	)

	// Initialize the sync worker: event-triggered runs plus the optional
	// scheduler.
	syncWorker := worker.NewWorker(busImpl, orchestrator, cfg.Sync.Interval)
	if err := syncWorker.Start(); err != nil {
		slog.Error("failed to start sync worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, resolverSvc, eligibility, calc, orchestrator, cfg.Pricing, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("ratesync is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the sync worker first so no run starts mid-shutdown
	if err := syncWorker.Stop(); err != nil {
		slog.Error("failed to stop sync worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("ratesync shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  RATESYNC")
	fmt.Println("       Lease pricing, always in sync.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /calculate          - Price a lease deal")
	fmt.Println("    GET  /calculator-config  - Client-side calculator config")
	fmt.Println("    GET  /resolve/program    - Resolve the lease program for a vehicle")
	fmt.Println("    GET  /resolve/tax        - Resolve the tax rate for a location")
	fmt.Println("    POST /ratetables         - Ingest a parsed rate sheet")
	fmt.Println("    GET  /ratetables         - List current rate tables")
	fmt.Println("    POST /deals              - Register a catalog deal")
	fmt.Println("    GET  /deals/{id}         - Get a deal by ID")
	fmt.Println("    POST /programs           - Create a lease program")
	fmt.Println("    POST /taxconfigs         - Create a tax configuration")
	fmt.Println("    POST /sync/run           - Run the rate-change sync now")
	fmt.Println("    GET  /sync/logs          - Query the sync audit log")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
