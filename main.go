package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"time"

	"triggerBot/config"
	"triggerBot/internal/adapters/binanceclient"
	"triggerBot/internal/adapters/logger"
	"triggerBot/internal/adapters/sqlite"
	"triggerBot/internal/app"
	"triggerBot/internal/condition"
	"triggerBot/internal/feed"
	"triggerBot/internal/ledger"
	"triggerBot/internal/observability"
	"triggerBot/internal/registry"
	"triggerBot/internal/risk"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	metrics := observability.NewMetrics("")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:       cfg.APIKey,
		SecretKey:    cfg.SecretKey,
		UseTestnet:   cfg.IsTestnet,
		FundingAsset: cfg.FundingAsset,
		DepthLimit:   cfg.DepthLimit,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed, the feed will keep retrying", map[string]interface{}{"error": err.Error()})
	} else if err := binanceClient.SetServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Failed to sync server time", map[string]interface{}{"error": err.Error()})
	}

	venue, err := risk.NewScreen(binanceClient, risk.ScreenConfig{
		Denylist:       cfg.HighRiskAssets,
		MaxSwapsPerDay: cfg.MaxSwapsPerDay,
		Logger:         appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk screen: %v", err)
	}

	marketFeed, err := feed.New(feed.Config{
		Source:          binanceClient,
		Logger:          appLogger,
		Metrics:         metrics,
		RefreshInterval: cfg.FeedRefreshInterval,
		Concurrency:     cfg.FeedConcurrency,
		StaleAfter:      cfg.FeedStaleAfter,
		MinBackoff:      cfg.ReconnectDelay,
		MaxBackoff:      cfg.MaxReconnectDelay,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market feed: %v", err)
	}

	// 5. Restore targets and executions
	targets := registry.New(registry.Config{Repo: repo, Logger: appLogger})
	if err := targets.Load(ctx); err != nil {
		log.Fatalf("FATAL: Failed to load targets: %v", err)
	}
	if cfg.TargetsFile != "" {
		if _, err := targets.Seed(ctx, cfg.TargetsFile, cfg.DefaultTargetActive); err != nil {
			log.Fatalf("FATAL: Failed to seed targets: %v", err)
		}
	}

	executions := ledger.New(ledger.Config{Repo: repo, Logger: appLogger})
	if err := executions.Load(ctx); err != nil {
		log.Fatalf("FATAL: Failed to load executions: %v", err)
	}

	// 6. Initialize Engine
	engine, err := app.NewEngine(app.Config{
		TickInterval: cfg.TickInterval,
		TickTimeout:  cfg.TickTimeout,
		FundingAsset: cfg.FundingAsset,
		Recipient:    cfg.Recipient,
		Metrics:      metrics,
	}, appLogger, marketFeed, venue, targets, executions, condition.New(cfg.BothBandPct))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}
	if n := engine.ResolveInterrupted(ctx); n > 0 {
		appLogger.Warn(ctx, "Resolved executions interrupted by the previous run", map[string]interface{}{"count": n})
	}

	// 7. Metrics endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			appLogger.Info(ctx, "Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
	}

	// 8. Run until SIGINT/SIGTERM
	if err := engine.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Engine exited with error")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(ctx, err, "Error shutting down metrics server")
		}
	}

	stats := engine.Stats()
	appLogger.Info(ctx, "Application finished gracefully.", map[string]interface{}{
		"totalTrades":    stats.TotalTrades,
		"successRatePct": stats.SuccessRatePct,
	})
}
