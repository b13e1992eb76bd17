// Kestrel - Phishing decision engine that deploys in 60 seconds.
// Copyright (c) 2025 opensource.security
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

	"github.com/opensource-security/kestrel/internal/api"
	"github.com/opensource-security/kestrel/internal/bus"
	"github.com/opensource-security/kestrel/internal/cache"
	"github.com/opensource-security/kestrel/internal/classifier"
	"github.com/opensource-security/kestrel/internal/domain"
	"github.com/opensource-security/kestrel/internal/engine"
	"github.com/opensource-security/kestrel/internal/history"
	"github.com/opensource-security/kestrel/internal/repository"
	"github.com/opensource-security/kestrel/internal/rules"
	"github.com/opensource-security/kestrel/internal/worker"
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

	// Log startup
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

	// Optional engine policy file overriding the shipped decision policy
	if policyPath := os.Getenv("KESTREL_POLICY"); policyPath != "" {
		engineCfg, err := domain.LoadEngineConfig(policyPath)
		if err != nil {
			slog.Error("failed to load engine policy", "path", policyPath, "error", err)
			os.Exit(1)
		}
		cfg.Engine = engineCfg
		slog.Info("engine policy loaded", "path", policyPath)
	}

	// Optional external classifier endpoint
	if classifierURL := os.Getenv("KESTREL_CLASSIFIER_URL"); classifierURL != "" {
		cfg.Classifier.URL = classifierURL
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
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

	// Initialize host alert history
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("host history service initialized")

	// Initialize Decision Engine
	decisionEngine, err := engine.New(cfg.Engine)
	if err != nil {
		slog.Error("failed to initialize decision engine", "error", err)
		os.Exit(1)
	}
	slog.Info("decision engine initialized",
		"profiles", len(cfg.Engine.Profiles),
		"default_profile", decisionEngine.DefaultProfile(),
	)

	// Initialize Escalation Rule Engine with host alert getter
	ruleEngine, err := rules.NewEngine(historySvc.GetHostAlertGetter())
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, ruleEngine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	// Initialize external classifier client if configured
	var scorer classifier.ScoreProvider
	if cfg.Classifier.URL != "" {
		scorer = classifier.NewHTTPClient(cfg.Classifier)
		slog.Info("classifier client initialized", "url", cfg.Classifier.URL)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, decisionEngine, ruleEngine, historySvc)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			// Could parse comma-separated list here
			tenantIDs = []string{envTenants}
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, decisionEngine, ruleEngine, historySvc, scorer, Version)

	// Start Server in goroutine
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

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadRulesFromDatabase loads escalation rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, ruleEngine *rules.Engine) error {
	dbRules, err := repo.ListEscalationRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return ruleEngine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║       Phishing Decision Engine            ║")
	fmt.Println("  ║       Sharp eyes on every URL.            ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate        - Evaluate a resource")
	fmt.Println("    GET  /verdicts/{id}   - Get verdict by ID")
	fmt.Println("    GET  /resources/{id}  - Get resource by ID")
	fmt.Println("    GET  /profiles        - List threshold profiles")
	fmt.Println("    GET  /rules           - List escalation rules")
	fmt.Println("    POST /rules           - Create a new escalation rule")
	fmt.Println("    POST /rules/reload    - Hot-reload rules from database")
	fmt.Println("    GET  /health          - Health check")
	fmt.Println()
}
