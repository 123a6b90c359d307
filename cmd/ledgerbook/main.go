package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledgerbook/internal/amqp"
	"ledgerbook/internal/api"
	"ledgerbook/internal/backend"
	"ledgerbook/internal/cache"
	"ledgerbook/internal/cli"
	"ledgerbook/internal/core"
	apphttp "ledgerbook/internal/http"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
	"ledgerbook/internal/session"
)

const (
	ledgerCacheSize   = 2000
	categoryCacheSize = 500
	sessionPurgeEvery = 10 * time.Minute
	cacheCleanupEvery = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	// SQLite always holds export jobs and optionally sessions.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger, sqliteRepo)

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	sessionsRes, err := factory.CreateSessionStore(startCtx, backendCfg)
	startCancel()
	if err != nil {
		logger.Error("Failed to initialize session store", applog.FieldError, err,
			"backend", cfg.SessionBackend)
		os.Exit(1)
	}
	if sessionsRes.Cleanup != nil {
		defer func() {
			if err := sessionsRes.Cleanup(); err != nil {
				logger.Warn("Session store cleanup failed", applog.FieldError, err)
			}
		}()
	}
	sessions := session.NewManager(sessionsRes.Store, cfg.SessionTTL, cfg.CookieSecure, logger)

	ledgerCache := cache.NewLRUCache[services.MonthLedger](ledgerCacheSize, cfg.LedgerCacheTTL)
	categoryCache := cache.NewLRUCache[core.CategoryBreakdown](categoryCacheSize, cfg.LedgerCacheTTL)
	analysisCache := cache.NewLRUCache[services.AnalysisReport](categoryCacheSize, services.AnalysisRefreshInterval)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(ledgerCache)
	cacheManager.Register(categoryCache)
	cacheManager.Register(analysisCache)
	cacheManager.StartCleanup(cacheCleanupEvery)

	apiClient := api.New(cfg.APIBaseURL, cfg.APITimeout, api.WithLogger(logger))
	ledger := services.NewLedgerService(ledgerCache, cfg.LedgerFetchConcurrency, logger)
	stats := services.NewStatisticsService(categoryCache, logger)
	analysis := services.NewAnalysisService(analysisCache, logger)

	checks := map[string]apphttp.Pinger{"sqlite": sqliteRepo}
	if sessionsRes.Pinger != nil {
		checks["sessions"] = sessionsRes.Pinger
	}

	// Exports still work without AMQP: the worker's sweep picks jobs up.
	var publisher services.ExportPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, exports rely on the worker sweep", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}
	exports := services.NewExportService(sqliteRepo, publisher, ledger, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		API:      apiClient,
		Sessions: sessions,
		Ledger:   ledger,
		Stats:    stats,
		Exports:  exports,
		Analysis: analysis,
		Checks:   checks,
		Logger:   logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
	})
	sessions.StartPurge(ctx, sessionPurgeEvery)

	logger.Info("Starting ledgerbook server",
		"port", cfg.Port,
		"api", cfg.APIBaseURL,
		"session_backend", cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
