// Finch - One gateway for the pathway databases.
// Copyright (c) 2025 openbioscience
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openbioscience/finch/internal/api"
	"github.com/openbioscience/finch/internal/bus"
	"github.com/openbioscience/finch/internal/cache"
	"github.com/openbioscience/finch/internal/dispatch"
	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/enrich"
	"github.com/openbioscience/finch/internal/metrics"
	"github.com/openbioscience/finch/internal/ratelimit"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/repository"
	"github.com/openbioscience/finch/internal/resolver"
	"github.com/openbioscience/finch/internal/transport"
	"github.com/openbioscience/finch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Pick up a local .env before reading the environment
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FINCH_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting finch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := loadConfig()

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
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

	// Initialize endpoint/organism registry
	reg, err := registry.Load(cfg.Registry.OverlayPath)
	if err != nil {
		slog.Error("failed to load registry", "error", err)
		os.Exit(1)
	}
	slog.Info("registry initialized",
		"databases", len(reg.Databases()),
		"organisms", len(reg.Organisms()),
	)

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

	// Initialize metrics and the query pipeline
	m := metrics.New()
	limiter := ratelimit.NewLimiter(cacheImpl, cfg.RateLimit)
	client := transport.NewClient(reg, cacheImpl, limiter, m, cfg.Transport)
	dispatcher := dispatch.New(client, m, cfg.Dispatch)
	res := resolver.New(client)
	slog.Info("transport initialized",
		"timeout", cfg.Transport.Timeout,
		"max_attempts", cfg.Transport.MaxAttempts,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	// Initialize Enrichment Engine. The engine publishes nothing itself;
	// the async worker owns run completion events.
	engine := enrich.New(reg, client, res, m, enrich.WithMaxWorkers(cfg.Dispatch.MaxWorkers))

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, repo, engine)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, reg, client, dispatcher, res, engine, repo, cacheImpl, busImpl, m, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("finch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("finch shutdown complete")
}

// loadConfig builds the runtime configuration from the profile defaults
// and FINCH_* environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if os.Getenv("FINCH_PROFILE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster profile")
	}

	if v := os.Getenv("FINCH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FINCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		} else {
			slog.Warn("ignoring invalid FINCH_PORT", "value", v)
		}
	}

	if v := os.Getenv("FINCH_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("FINCH_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("FINCH_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("FINCH_POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Repository.PostgresPort = p
		}
	}
	if v := os.Getenv("FINCH_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("FINCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("FINCH_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("FINCH_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("FINCH_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("FINCH_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("FINCH_REGISTRY_FILE"); v != "" {
		cfg.Registry.OverlayPath = v
	}

	// Per-database API keys: FINCH_CREDENTIAL_BIOGRID, FINCH_CREDENTIAL_NCBI, ...
	for _, db := range []domain.Database{
		domain.DatabaseKEGG,
		domain.DatabaseReactome,
		domain.DatabaseStringDB,
		domain.DatabaseUniProt,
		domain.DatabaseBioGRID,
		domain.DatabaseEnsembl,
		domain.DatabaseNCBI,
		domain.DatabaseIntAct,
		domain.DatabaseInterPro,
		domain.DatabasePDB,
	} {
		key := "FINCH_CREDENTIAL_" + strings.ToUpper(string(db))
		if v := os.Getenv(key); v != "" {
			if cfg.Transport.Credentials == nil {
				cfg.Transport.Credentials = make(map[domain.Database]string)
			}
			cfg.Transport.Credentials[db] = v
		}
	}

	return cfg
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔════════════════════════════════════════════╗")
	fmt.Println("  ║                🐦 FINCH                    ║")
	fmt.Println("  ║      Biological Database Gateway           ║")
	fmt.Println("  ║    One API for every pathway source.       ║")
	fmt.Println("  ╚════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /v1/query         - Execute one query descriptor")
	fmt.Println("    POST /v1/batch         - Execute a query batch")
	fmt.Println("    POST /v1/resolve       - Detect / convert identifiers")
	fmt.Println("    POST /v1/enrich        - Run enrichment analysis")
	fmt.Println("    POST /v1/enrich/async  - Queue an enrichment run")
	fmt.Println("    GET  /v1/runs          - List persisted runs")
	fmt.Println("    GET  /v1/runs/{id}     - Get a run with its rows")
	fmt.Println("    GET  /v1/databases     - List configured databases")
	fmt.Println("    GET  /v1/organisms     - List configured organisms")
	fmt.Println("    GET  /v1/stats         - Service statistics")
	fmt.Println("    GET  /health           - Health check")
	fmt.Println("    GET  /metrics          - Prometheus metrics")
	fmt.Println()
}
