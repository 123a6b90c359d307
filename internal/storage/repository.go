package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ledgerbook/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores sessions and export jobs in one SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ session.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Save(ctx context.Context, s *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id_hash, user_id, user_email, user_name, access_token, refresh_token,
			selected_book_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id_hash) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			selected_book_id = excluded.selected_book_id,
			expires_at = excluded.expires_at`,
		s.Key(), s.User.ID, s.User.Email, s.User.Name, s.AccessToken, s.RefreshToken,
		s.SelectedBookID, s.CreatedAt.Unix(), s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*session.Session, error) {
	var (
		s                    session.Session
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, user_email, user_name, access_token, refresh_token, selected_book_id,
			created_at, expires_at
		FROM sessions WHERE id_hash = ?`, key).
		Scan(&s.User.ID, &s.User.Email, &s.User.Name, &s.AccessToken, &s.RefreshToken,
			&s.SelectedBookID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = time.Unix(createdAt, 0)
	s.ExpiresAt = time.Unix(expiresAt, 0)
	return &s, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id_hash = ?`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
