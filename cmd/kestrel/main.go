// Kestrel - Scoped business rules and decisions for booking platforms.
// Copyright (c) 2025 Bookwell
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

	"github.com/bookwell/kestrel/internal/api"
	"github.com/bookwell/kestrel/internal/audit"
	"github.com/bookwell/kestrel/internal/bus"
	"github.com/bookwell/kestrel/internal/cache"
	"github.com/bookwell/kestrel/internal/decision"
	"github.com/bookwell/kestrel/internal/domain"
	"github.com/bookwell/kestrel/internal/engine"
	"github.com/bookwell/kestrel/internal/repository"
	"github.com/bookwell/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize rule store
	store, err := repository.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize rule store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("rule store initialized", "driver", cfg.Store.Driver)

	// Initialize cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize event bus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize condition evaluator and resolver
	conditions, err := engine.NewConditionEvaluator()
	if err != nil {
		slog.Error("failed to initialize condition evaluator", "error", err)
		os.Exit(1)
	}

	resolver := engine.NewResolver(store, cacheImpl, busImpl, conditions, cfg.Resolver)
	slog.Info("resolver initialized",
		"cache_ttl", cfg.Resolver.CacheTTL,
		"store_timeout", cfg.Resolver.StoreTimeout,
	)

	// Initialize decision engine with built-in family strategies
	auditWriter := audit.NewWriter(busImpl)
	decisions := decision.NewEngine(resolver, auditWriter)
	decision.RegisterBuiltins(decisions)
	slog.Info("decision engine initialized")

	// Start background worker: audit persistence and cross-node invalidation
	bgWorker := worker.New(busImpl, store, resolver)
	if err := bgWorker.Start(ctx); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Initialize server
	srv := api.NewServer(cfg.Server, resolver, decisions, store, cacheImpl, busImpl)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	bgWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║       Scoped Rule Decision Engine         ║")
	fmt.Println("  ║     The right rule, every request.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/resolve          - Resolve applicable rules")
	fmt.Println("    POST /api/v1/score            - Score all candidates (diagnostic)")
	fmt.Println("    POST /api/v1/decide           - Render a decision")
	fmt.Println("    GET  /api/v1/rules            - List rules for a family")
	fmt.Println("    POST /api/v1/rules            - Create or version a rule")
	fmt.Println("    GET  /api/v1/rules/{id}       - Get latest rule version")
	fmt.Println("    POST /api/v1/cache/invalidate - Drop cached rule lists")
	fmt.Println("    GET  /api/v1/decisions/{id}   - Get a decision record")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println("    GET  /ready                   - Dependency readiness")
	fmt.Println()
}
