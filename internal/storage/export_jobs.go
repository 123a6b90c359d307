package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"ledgerbook/internal/core"
)

type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportExported   ExportStatus = "exported"
	ExportError      ExportStatus = "error"
)

// MaxExportAttempts bounds retries of a failing export.
const MaxExportAttempts = 5

var ErrJobNotFound = errors.New("export job not found")

// ExportJob is a transaction view frozen at request time, waiting to be
// written to a spreadsheet.
type ExportJob struct {
	ID          int64
	BookID      int64
	AccountID   int64
	AccountName string
	From        core.YearMonth
	To          core.YearMonth
	Query       core.ViewQuery
	Rows        []core.Transaction
	Stats       core.AggregateStats
	RequestedBy string
	Status      ExportStatus
	Version     int64
	Attempts    int
	SheetRef    string
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type exportPayload struct {
	Rows  []core.Transaction  `json:"rows"`
	Stats core.AggregateStats `json:"stats"`
}

// CreateExportJob stores a pending job and returns it with its id.
func (r *SQLiteRepository) CreateExportJob(ctx context.Context, job ExportJob) (ExportJob, error) {
	payload, err := json.Marshal(exportPayload{Rows: sanitizeRows(job.Rows), Stats: job.Stats})
	if err != nil {
		return ExportJob{}, fmt.Errorf("encode export payload: %w", err)
	}
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO export_jobs (book_id, account_id, account_name, from_month, to_month,
			filter, sort, payload, requested_by, status, version, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', 1, 0, ?, ?)`,
		job.BookID, job.AccountID, job.AccountName, job.From.String(), job.To.String(),
		string(job.Query.Filter), string(job.Query.Sort), string(payload), job.RequestedBy,
		now.Unix(), now.Unix())
	if err != nil {
		return ExportJob{}, fmt.Errorf("insert export job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ExportJob{}, fmt.Errorf("export job id: %w", err)
	}
	job.ID = id
	job.Status = ExportPending
	job.Version = 1
	job.CreatedAt = time.Unix(now.Unix(), 0)
	job.UpdatedAt = job.CreatedAt
	return job, nil
}

const exportJobColumns = `id, book_id, account_id, account_name, from_month, to_month, filter, sort,
	payload, requested_by, status, version, attempts, sheet_ref, last_error, created_at, updated_at`

func (r *SQLiteRepository) GetExportJob(ctx context.Context, id int64) (ExportJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportJobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanExportJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportJob{}, ErrJobNotFound
	}
	return job, err
}

// ListExportJobs returns the newest jobs of a book.
func (r *SQLiteRepository) ListExportJobs(ctx context.Context, bookID int64, limit int) ([]ExportJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+exportJobColumns+`
		FROM export_jobs WHERE book_id = ? ORDER BY id DESC LIMIT ?`, bookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return collectExportJobs(rows)
}

// PendingExportJobs returns jobs the sweep should retry: pending or failed
// jobs not touched since staleBefore, and jobs stuck in processing.
func (r *SQLiteRepository) PendingExportJobs(ctx context.Context, staleBefore time.Time, limit int) ([]ExportJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+exportJobColumns+`
		FROM export_jobs
		WHERE status IN ('pending', 'error', 'processing') AND attempts < ? AND updated_at <= ?
		ORDER BY updated_at ASC LIMIT ?`,
		MaxExportAttempts, staleBefore.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("pending export jobs: %w", err)
	}
	return collectExportJobs(rows)
}

// ClaimExportJob moves a job to processing. It reports false when another
// worker holds it or it is already exported. Jobs left in processing since
// before staleBefore can be claimed again.
func (r *SQLiteRepository) ClaimExportJob(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = 'processing', updated_at = ?
		WHERE id = ? AND attempts < ? AND (status IN ('pending', 'error')
			OR (status = 'processing' AND updated_at <= ?))`,
		r.now().Unix(), id, MaxExportAttempts, staleBefore.Unix())
	if err != nil {
		return false, fmt.Errorf("claim export job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim export job %d: %w", id, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64, ref string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = 'exported', sheet_ref = ?, last_error = '',
			attempts = attempts + 1, updated_at = ?
		WHERE id = ?`, ref, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark export job %d exported: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = 'error', last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`, msg, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark export job %d failed: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExportJob(s rowScanner) (ExportJob, error) {
	var (
		job                          ExportJob
		from, to, filter, sort, body string
		status                       string
		createdAt, updatedAt         int64
	)
	err := s.Scan(&job.ID, &job.BookID, &job.AccountID, &job.AccountName, &from, &to, &filter, &sort,
		&body, &job.RequestedBy, &status, &job.Version, &job.Attempts, &job.SheetRef, &job.LastError,
		&createdAt, &updatedAt)
	if err != nil {
		return ExportJob{}, err
	}
	if job.From, err = core.ParseYearMonth(from); err != nil {
		return ExportJob{}, fmt.Errorf("export job %d: %w", job.ID, err)
	}
	if job.To, err = core.ParseYearMonth(to); err != nil {
		return ExportJob{}, fmt.Errorf("export job %d: %w", job.ID, err)
	}
	var payload exportPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ExportJob{}, fmt.Errorf("decode export job %d payload: %w", job.ID, err)
	}
	job.Query = core.ViewQuery{Filter: core.FilterMode(filter), Sort: core.SortOrder(sort)}
	job.Rows = payload.Rows
	job.Stats = payload.Stats
	job.Status = ExportStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	return job, nil
}

func collectExportJobs(rows *sql.Rows) ([]ExportJob, error) {
	defer rows.Close()
	var out []ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export jobs: %w", err)
	}
	return out, nil
}

// sanitizeRows zeroes non-finite amounts, which JSON cannot encode. The
// anomaly count in the stats still records them.
func sanitizeRows(rows []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(rows))
	for i, t := range rows {
		if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
			t.Amount = 0
		}
		if math.IsNaN(t.Balance) || math.IsInf(t.Balance, 0) {
			t.Balance = 0
		}
		out[i] = t
	}
	return out
}
