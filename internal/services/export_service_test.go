package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	"ledgerbook/internal/sheets"
	"ledgerbook/internal/sheets/memory"
	"ledgerbook/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []int64
	err  error
}

func (p *recordingPublisher) PublishExport(_ context.Context, jobID, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, jobID)
	return p.err
}

type failingWriter struct{ err error }

func (w failingWriter) WriteExport(context.Context, sheets.Export) (string, error) {
	return "", w.err
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledgerbook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func exportSource() *fakeLedger {
	jan := core.NewYearMonth(2025, 1)
	return &fakeLedger{months: map[core.YearMonth]api.AccountLedger{jan: {
		AccountName: "Cash",
		Entries: []api.LedgerEntry{
			{Date: "2025-01-01", Description: "pay", Debit: 1000},
			{Date: "2025-01-02", Description: "lunch", Credit: 300},
		},
	}}}
}

func exportRequest() ExportRequest {
	jan := core.NewYearMonth(2025, 1)
	return ExportRequest{
		Ref:         testRef,
		From:        jan,
		To:          jan,
		Query:       core.ViewQuery{Filter: core.FilterExpense, Sort: core.SortLatest},
		RequestedBy: "a@b.c",
	}
}

func TestExportService_RequestExport(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{}
	svc := NewExportService(repo, pub, NewLedgerService(nil, 2, nil), nil)

	job, err := svc.RequestExport(context.Background(), exportSource(), exportRequest())
	if err != nil {
		t.Fatalf("RequestExport: %v", err)
	}
	if len(job.Rows) != 1 || job.Rows[0].Memo != "lunch" || job.Stats.TotalExpense != 300 {
		t.Errorf("job view = %+v / %+v", job.Rows, job.Stats)
	}
	if job.AccountName != "Cash" || job.Status != storage.ExportPending {
		t.Errorf("job = %+v", job)
	}
	if len(pub.jobs) != 1 || pub.jobs[0] != job.ID {
		t.Errorf("published = %v", pub.jobs)
	}

	list, err := svc.RecentExports(context.Background(), testRef.BookID, 5)
	if err != nil || len(list) != 1 {
		t.Errorf("RecentExports = %+v, %v", list, err)
	}
}

func TestExportService_PublishFailureKeepsJob(t *testing.T) {
	repo := newRepo(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewExportService(repo, pub, NewLedgerService(nil, 2, nil), nil)

	job, err := svc.RequestExport(context.Background(), exportSource(), exportRequest())
	if err != nil {
		t.Fatalf("RequestExport should not fail on publish error: %v", err)
	}
	if _, err := repo.GetExportJob(context.Background(), job.ID); err != nil {
		t.Errorf("job not stored: %v", err)
	}
}

func TestExportService_NilPublisher(t *testing.T) {
	svc := NewExportService(newRepo(t), nil, NewLedgerService(nil, 2, nil), nil)
	if _, err := svc.RequestExport(context.Background(), exportSource(), exportRequest()); err != nil {
		t.Fatalf("RequestExport: %v", err)
	}
}

func TestExportProcessor_Process(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	svc := NewExportService(repo, nil, NewLedgerService(nil, 2, nil), nil)
	job, err := svc.RequestExport(ctx, exportSource(), exportRequest())
	if err != nil {
		t.Fatal(err)
	}

	writer := memory.New()
	p := NewExportProcessor(repo, writer, DefaultExportProcessorConfig(), nil)

	if err := p.Process(ctx, job.ID, job.Version); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := repo.GetExportJob(ctx, job.ID)
	if got.Status != storage.ExportExported || got.SheetRef != "mem:1" {
		t.Errorf("job after process = %+v", got)
	}

	// redelivery is a no-op
	if err := p.Process(ctx, job.ID, job.Version); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	exports := writer.Exports()
	if len(exports) != 1 {
		t.Fatalf("exports = %d, want 1", len(exports))
	}
	if exports[0].AccountName != "Cash" || len(exports[0].Rows) != 1 {
		t.Errorf("export = %+v", exports[0])
	}

	if err := p.Process(ctx, 999, 1); err != nil {
		t.Errorf("unknown job should be dropped, got %v", err)
	}
}

func TestExportProcessor_FailureThenSweep(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	svc := NewExportService(repo, nil, NewLedgerService(nil, 2, nil), nil)
	job, err := svc.RequestExport(ctx, exportSource(), exportRequest())
	if err != nil {
		t.Fatal(err)
	}

	failing := NewExportProcessor(repo, failingWriter{err: errors.New("quota exceeded")}, DefaultExportProcessorConfig(), nil)
	if err := failing.Process(ctx, job.ID, job.Version); err != nil {
		t.Fatalf("write failure should be recorded, not returned: %v", err)
	}
	got, _ := repo.GetExportJob(ctx, job.ID)
	if got.Status != storage.ExportError || got.LastError != "quota exceeded" || got.Attempts != 1 {
		t.Fatalf("job after failure = %+v", got)
	}

	writer := memory.New()
	p := NewExportProcessor(repo, writer, DefaultExportProcessorConfig(), nil)
	n, err := p.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("sweep inside grace = %d, %v; want nothing", n, err)
	}

	p.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = p.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	got, _ = repo.GetExportJob(ctx, job.ID)
	if got.Status != storage.ExportExported {
		t.Errorf("job after sweep = %+v", got)
	}
}

func TestExportProcessor_StartStop(t *testing.T) {
	cfg := DefaultExportProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	p := NewExportProcessor(newRepo(t), memory.New(), cfg, nil)
	ctx := context.Background()

	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting twice")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop when stopped: %v", err)
	}
}
