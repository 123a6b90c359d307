package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "ledgerbook/internal/log"
	"ledgerbook/internal/sheets"
	"ledgerbook/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often the pending sweep runs (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of jobs per sweep (default: 10)
	BatchSize int

	// ProcessingTimeout is how long a claimed job may stay in processing
	// before another worker may take it over (default: 5m)
	ProcessingTimeout time.Duration

	// RetryGrace keeps the sweep away from jobs younger than this, which the
	// queue is expected to deliver (default: 1m)
	RetryGrace time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:      30 * time.Second,
		BatchSize:         10,
		ProcessingTimeout: 5 * time.Minute,
		RetryGrace:        time.Minute,
	}
}

// ExportProcessor writes export jobs to the sheet. It serves both the queue
// consumer and a periodic sweep of jobs whose message never arrived.
type ExportProcessor struct {
	jobs   ExportJobStore
	writer sheets.ExportWriter
	config ExportProcessorConfig
	logger *applog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates a processor that writes finished jobs with writer.
func NewExportProcessor(jobs ExportJobStore, writer sheets.ExportWriter, config ExportProcessorConfig, logger *applog.Logger) *ExportProcessor {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExportProcessor{
		jobs:   jobs,
		writer: writer,
		config: config,
		logger: logger.WithComponent(applog.ComponentExport),
		now:    time.Now,
	}
}

// Process exports one job. Duplicate and stale deliveries are skipped. A
// failed sheet write is recorded on the job and left to the sweep, so only
// storage errors are returned.
func (p *ExportProcessor) Process(ctx context.Context, jobID, version int64) error {
	job, err := p.jobs.GetExportJob(ctx, jobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		p.logger.WarnContext(ctx, "Export job not found, dropping message", applog.FieldJobID, jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get export job %d: %w", jobID, err)
	}
	if job.Status == storage.ExportExported {
		p.logger.DebugContext(ctx, "Export job already exported", applog.FieldJobID, jobID)
		return nil
	}
	if version < job.Version {
		p.logger.DebugContext(ctx, "Skipping stale export message",
			applog.FieldJobID, jobID, "version", version, "current_version", job.Version)
		return nil
	}

	claimed, err := p.jobs.ClaimExportJob(ctx, jobID, p.now().Add(-p.config.ProcessingTimeout))
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.DebugContext(ctx, "Export job held elsewhere or out of attempts", applog.FieldJobID, jobID)
		return nil
	}

	ref, err := p.writer.WriteExport(ctx, sheets.Export{
		JobID:       job.ID,
		BookID:      job.BookID,
		AccountName: job.AccountName,
		From:        job.From,
		To:          job.To,
		Query:       job.Query,
		Rows:        job.Rows,
		Stats:       job.Stats,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Export write failed",
			applog.FieldJobID, jobID,
			"attempt", job.Attempts+1,
			applog.FieldError, err)
		if markErr := p.jobs.MarkExportFailed(ctx, jobID, err); markErr != nil {
			return fmt.Errorf("mark export job %d failed: %w", jobID, markErr)
		}
		return nil
	}

	if err := p.jobs.MarkExported(ctx, jobID, ref); err != nil {
		return fmt.Errorf("mark export job %d exported: %w", jobID, err)
	}
	p.logger.InfoContext(ctx, "Export job completed",
		applog.FieldJobID, jobID,
		applog.FieldTxCount, len(job.Rows),
		"sheets_ref", ref)
	return nil
}

// Sweep processes one batch of jobs the queue did not deliver.
func (p *ExportProcessor) Sweep(ctx context.Context) (int, error) {
	jobs, err := p.jobs.PendingExportJobs(ctx, p.now().Add(-p.config.RetryGrace), p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("pending export jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	p.logger.InfoContext(ctx, "Processing pending export jobs", "count", len(jobs))

	done := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := p.Process(ctx, job.ID, job.Version); err != nil {
			p.logger.ErrorContext(ctx, "Pending export failed", applog.FieldJobID, job.ID, applog.FieldError, err)
			continue
		}
		done++
	}
	return done, nil
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the sweep loop is active.
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.sweepOnce(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *ExportProcessor) sweepOnce(ctx context.Context) {
	if _, err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "Export sweep failed", applog.FieldError, err)
	}
}
