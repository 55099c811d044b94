// tariffd - Tariff rate resolution and duty calculation service.

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

	"github.com/tariffsheriff/tariffd/internal/api"
	"github.com/tariffsheriff/tariffd/internal/bus"
	"github.com/tariffsheriff/tariffd/internal/cache"
	"github.com/tariffsheriff/tariffd/internal/catalog"
	"github.com/tariffsheriff/tariffd/internal/domain"
	"github.com/tariffsheriff/tariffd/internal/engine"
	"github.com/tariffsheriff/tariffd/internal/repository"
	"github.com/tariffsheriff/tariffd/internal/roo"
	"github.com/tariffsheriff/tariffd/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := domain.LoadConfig()

	// Initialize structured logger
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting tariffd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
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

	// Wrap the repository's catalog with read-through caching
	cachedCatalog := catalog.NewCached(repo, cacheImpl,
		time.Duration(cfg.Cache.LocalTTL)*time.Second, logger)

	// Initialize the rule-of-origin engine
	rooEngine, err := roo.NewEngine()
	if err != nil {
		slog.Error("failed to initialize origin rule engine", "error", err)
		os.Exit(1)
	}
	defer rooEngine.Close()
	slog.Info("origin rule engine initialized")

	// Initialize the resolution engine
	resolver := engine.NewResolver(cachedCatalog, rooEngine, logger)
	comparator := engine.NewComparator(resolver, 10)
	slog.Info("resolution engine initialized")

	// Initialize async comparison worker
	asyncWorker := worker.NewWorker(busImpl, repo, comparator)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start comparison worker", "error", err)
		os.Exit(1)
	}
	slog.Info("comparison worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, resolver, comparator, rooEngine, cachedCatalog, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tariffd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the worker first so in-flight comparisons drain
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop comparison worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tariffd shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               TARIFFD                     ║")
	fmt.Println("  ║   Tariff Rate Resolution Engine           ║")
	fmt.Println("  ║   The right rate, every shipment.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /resolve             - Resolve a rate and compute duty")
	fmt.Println("    POST /compare             - Compare duty across origins")
	fmt.Println("    GET  /calculations        - List saved calculations")
	fmt.Println("    POST /calculations        - Resolve and save for audit")
	fmt.Println("    GET  /countries           - List countries")
	fmt.Println("    GET  /products            - List product classifications")
	fmt.Println("    GET  /agreements          - List trade agreements")
	fmt.Println("    POST /roo-rules           - Set a rule of origin")
	fmt.Println("    GET  /tariff-rates        - List tariff rate rows")
	fmt.Println("    PUT  /tax-rates/{iso3}    - Set a sales-tax rate")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
