package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbook/internal/session"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id_hash TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	user_email TEXT NOT NULL,
	user_name TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	selected_book_id BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);`

// PostgresSessionStore keeps sessions in PostgreSQL so several web
// instances can share them.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*PostgresSessionStore)(nil)

// NewPostgresSessionStore connects to dsn and creates the sessions table if needed.
func NewPostgresSessionStore(ctx context.Context, dsn string) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSessionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure sessions table: %w", err)
	}
	return &PostgresSessionStore{pool: pool}, nil
}

func (p *PostgresSessionStore) Save(ctx context.Context, s *session.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id_hash, user_id, user_email, user_name, access_token, refresh_token,
			selected_book_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id_hash) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			selected_book_id = EXCLUDED.selected_book_id,
			expires_at = EXCLUDED.expires_at`,
		s.Key(), s.User.ID, s.User.Email, s.User.Name, s.AccessToken, s.RefreshToken,
		s.SelectedBookID, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresSessionStore) Get(ctx context.Context, key string) (*session.Session, error) {
	var s session.Session
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, user_email, user_name, access_token, refresh_token, selected_book_id,
			created_at, expires_at
		FROM sessions WHERE id_hash = $1`, key).
		Scan(&s.User.ID, &s.User.Email, &s.User.Name, &s.AccessToken, &s.RefreshToken,
			&s.SelectedBookID, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (p *PostgresSessionStore) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id_hash = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *PostgresSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresSessionStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresSessionStore) Close() error {
	p.pool.Close()
	return nil
}
