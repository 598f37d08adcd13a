// Dipper - Meter anomaly review that deploys in 60 seconds.
// Copyright (c) 2025 opensource.utility
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-utility/dipper/internal/api"
	"github.com/opensource-utility/dipper/internal/backend"
	"github.com/opensource-utility/dipper/internal/bus"
	"github.com/opensource-utility/dipper/internal/cache"
	"github.com/opensource-utility/dipper/internal/domain"
	"github.com/opensource-utility/dipper/internal/highlight"
	"github.com/opensource-utility/dipper/internal/journal"
	"github.com/opensource-utility/dipper/internal/recorder"
	"github.com/opensource-utility/dipper/internal/session"
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
	if os.Getenv("DIPPER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting dipper",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("DIPPER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Backend overrides
	if url := os.Getenv("DIPPER_BACKEND_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
	if os.Getenv("DIPPER_USE_MOCK") == "true" {
		cfg.Backend.UseMock = true
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"backend", cfg.Backend.BaseURL,
		"mock", cfg.Backend.UseMock,
		"journal", cfg.Journal.Driver,
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

	// Initialize Journal
	journalImpl, err := journal.New(cfg.Journal)
	if err != nil {
		slog.Error("failed to initialize journal", "error", err)
		os.Exit(1)
	}
	defer journalImpl.Close()
	slog.Info("journal initialized", "driver", cfg.Journal.Driver)

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

	// Initialize highlight engine with display rules
	engine, err := highlight.NewEngine()
	if err != nil {
		slog.Error("failed to initialize highlight engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(highlight.DefaultRules(cfg.Review.DeltaThreshold)); err != nil {
		slog.Error("failed to load highlight rules", "error", err)
		os.Exit(1)
	}
	slog.Info("highlight engine initialized", "rules_count", len(engine.LoadedRules()))

	// Shared backend client; the factory wraps it with each tenant's
	// history cache. Both implementations are safe for concurrent use.
	var sharedSource domain.AnomalySource
	if cfg.Backend.UseMock {
		sharedSource = backend.NewMockSource()
	} else {
		sharedSource, err = backend.NewHTTPSource(cfg.Backend)
		if err != nil {
			slog.Error("failed to initialize backend source", "error", err)
			os.Exit(1)
		}
	}
	defer sharedSource.Close()

	historyTTL := time.Duration(cfg.Review.HistoryTTLSecs) * time.Second
	newSource := func(tenantID string) domain.AnomalySource {
		return backend.NewCachedSource(sharedSource, cacheImpl, tenantID, historyTTL)
	}
	slog.Info("anomaly source configured",
		"backend", cfg.Backend.BaseURL,
		"mock", cfg.Backend.UseMock,
		"history_ttl", historyTTL,
	)

	// Initialize session registry
	registry := session.NewRegistry(newSource, busImpl, cfg.Review)
	slog.Info("session registry initialized",
		"statuses", []string(cfg.Review.Statuses),
		"default_status", cfg.Review.DefaultStatus,
	)

	// Initialize audit recorder
	rec := recorder.New(busImpl, journalImpl)

	tenantIDs := []string{}
	if envTenants := os.Getenv("DIPPER_TENANTS"); envTenants != "" {
		for _, id := range strings.Split(envTenants, ",") {
			if id = strings.TrimSpace(id); id != "" {
				tenantIDs = append(tenantIDs, id)
			}
		}
	}

	if err := rec.Start(recorder.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start audit recorder", "error", err)
	} else {
		slog.Info("audit recorder started", "tenant_count", len(tenantIDs))
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, registry, newSource, journalImpl, cacheImpl, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("dipper is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop recorder first so in-flight submissions drain to the journal
	if err := rec.Stop(); err != nil {
		slog.Error("failed to stop audit recorder", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("dipper shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                DIPPER                     ║")
	fmt.Println("  ║      Meter Anomaly Review Gateway         ║")
	fmt.Println("  ║       Eyes on every meter read.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Backend:  %s\n", cfg.Backend.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET    /anomalies                - Anomaly worklist")
	fmt.Println("    GET    /anomalies/view           - Worklist with highlight flags")
	fmt.Println("    POST   /sessions                 - Start a review session")
	fmt.Println("    GET    /sessions/{id}            - Session snapshot")
	fmt.Println("    GET    /sessions/{id}/view       - Detective-mode view")
	fmt.Println("    POST   /sessions/{id}/select     - Open an anomaly")
	fmt.Println("    POST   /sessions/{id}/status     - Set audit status")
	fmt.Println("    POST   /sessions/{id}/remark     - Set audit remark")
	fmt.Println("    POST   /sessions/{id}/submit     - Submit the decision")
	fmt.Println("    POST   /sessions/{id}/clear      - Abandon the selection")
	fmt.Println("    DELETE /sessions/{id}            - Remove a session")
	fmt.Println("    GET    /audits                   - Recorded decisions")
	fmt.Println("    GET    /health                   - Health check")
	fmt.Println()
}
