package main

import (
	"context"
	"os"
	"time"

	"ledgerbook/internal/amqp"
	"ledgerbook/internal/backend"
	"ledgerbook/internal/cli"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
	"ledgerbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Export configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting ledgerbook-worker", "export_backend", cfg.ExportBackend)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	writer, err := backend.NewFactory(logger, sqliteRepo).CreateExportWriter(startCtx, backendCfg)
	startCancel()
	if err != nil {
		logger.Error("Failed to initialize export writer", applog.FieldError, err)
		os.Exit(1)
	}

	procCfg := services.DefaultExportProcessorConfig()
	procCfg.PollInterval = cfg.SyncInterval
	procCfg.BatchSize = cfg.SyncBatchSize
	processor := services.NewExportProcessor(sqliteRepo, writer, procCfg, logger)
	exportWorker := worker.NewExportWorker(processor, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Export processor stop failed", applog.FieldError, err)
		}
	})

	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup export check failed", applog.FieldError, err)
	}

	// The sweep also catches jobs whose message was lost.
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", applog.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, exporting by polling only")
	} else if amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger); err != nil {
		logger.Warn("AMQP unavailable, exporting by polling only", applog.FieldError, err)
	} else {
		defer amqpClient.Close()
		go func() {
			if err := exportWorker.Run(ctx, amqpClient); err != nil {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
