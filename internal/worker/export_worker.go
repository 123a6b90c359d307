package worker

import (
	"context"
	"fmt"

	"ledgerbook/internal/amqp"
	applog "ledgerbook/internal/log"
)

// Processor exports one job; implemented by services.ExportProcessor.
type Processor interface {
	Process(ctx context.Context, jobID, version int64) error
	Sweep(ctx context.Context) (int, error)
}

// Consumer delivers export messages; implemented by amqp.Client.
type Consumer interface {
	ConsumeExports(ctx context.Context, handler amqp.Handler) error
}

// ExportWorker feeds queued export messages to the processor.
type ExportWorker struct {
	processor Processor
	logger    *applog.Logger
}

// NewExportWorker creates a worker that hands queued jobs to processor.
func NewExportWorker(processor Processor, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExportWorker{
		processor: processor,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleExportMessage processes a single export message from AMQP.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	w.logger.InfoContext(ctx, "Processing export message",
		applog.FieldJobID, msg.JobID,
		"version", msg.Version)

	if err := w.processor.Process(ctx, msg.JobID, msg.Version); err != nil {
		return fmt.Errorf("process export %d: %w", msg.JobID, err)
	}
	return nil
}

// StartupCheck exports jobs left behind while the worker was down.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	n, err := w.processor.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if n == 0 {
		w.logger.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup export check completed", "exported", n)
	return nil
}

// Run consumes messages until ctx is cancelled.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Export worker consuming queue")
	err := consumer.ConsumeExports(ctx, w.HandleExportMessage)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
