package services

import (
	"context"
	"fmt"
	"time"

	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/storage"
)

// ExportJobStore persists export jobs.
type ExportJobStore interface {
	CreateExportJob(ctx context.Context, job storage.ExportJob) (storage.ExportJob, error)
	GetExportJob(ctx context.Context, id int64) (storage.ExportJob, error)
	ListExportJobs(ctx context.Context, bookID int64, limit int) ([]storage.ExportJob, error)
	ClaimExportJob(ctx context.Context, id int64, staleBefore time.Time) (bool, error)
	MarkExported(ctx context.Context, id int64, ref string) error
	MarkExportFailed(ctx context.Context, id int64, cause error) error
	PendingExportJobs(ctx context.Context, staleBefore time.Time, limit int) ([]storage.ExportJob, error)
}

// ExportPublisher notifies the worker that a job is ready.
type ExportPublisher interface {
	PublishExport(ctx context.Context, jobID, version int64) error
}

// ExportRequest is what the user asked to export.
type ExportRequest struct {
	Ref         AccountRef
	From, To    core.YearMonth
	Query       core.ViewQuery
	RequestedBy string
}

// ExportService freezes ledger views into export jobs and hands them to
// the worker.
type ExportService struct {
	jobs      ExportJobStore
	publisher ExportPublisher
	ledger    *LedgerService
	logger    *applog.Logger
}

// NewExportService wires the service. publisher may be nil, in which case
// the worker's sweep picks jobs up.
func NewExportService(jobs ExportJobStore, publisher ExportPublisher, ledger *LedgerService, logger *applog.Logger) *ExportService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExportService{
		jobs:      jobs,
		publisher: publisher,
		ledger:    ledger,
		logger:    logger.WithComponent(applog.ComponentExport),
	}
}

// RequestExport builds the view, stores it as a job and publishes it. A
// failed publish is logged, not returned: the job is already saved.
func (s *ExportService) RequestExport(ctx context.Context, src LedgerSource, req ExportRequest) (storage.ExportJob, error) {
	lv, err := s.ledger.View(ctx, src, req.Ref, req.From, req.To, req.Query)
	if err != nil {
		return storage.ExportJob{}, fmt.Errorf("build export view: %w", err)
	}

	job, err := s.jobs.CreateExportJob(ctx, storage.ExportJob{
		BookID:      req.Ref.BookID,
		AccountID:   req.Ref.AccountID,
		AccountName: lv.AccountName,
		From:        req.From,
		To:          req.To,
		Query:       lv.View.Query,
		Rows:        lv.View.Transactions,
		Stats:       lv.View.Stats,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return storage.ExportJob{}, fmt.Errorf("save export job: %w", err)
	}

	s.logger.InfoContext(ctx, "Export job created",
		applog.FieldJobID, job.ID,
		applog.FieldBookID, job.BookID,
		applog.FieldAccountID, job.AccountID,
		applog.FieldTxCount, len(job.Rows))

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, export left to the pending sweep",
			applog.FieldJobID, job.ID)
		return job, nil
	}
	if err := s.publisher.PublishExport(ctx, job.ID, job.Version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish export message",
			applog.FieldJobID, job.ID, applog.FieldError, err)
	}
	return job, nil
}

// RecentExports lists the newest jobs of a book.
func (s *ExportService) RecentExports(ctx context.Context, bookID int64, limit int) ([]storage.ExportJob, error) {
	return s.jobs.ListExportJobs(ctx, bookID, limit)
}
