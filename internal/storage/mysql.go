package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgerbook/internal/session"

	"github.com/go-sql-driver/mysql"
)

const mysqlSessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id_hash CHAR(64) PRIMARY KEY,
	user_id BIGINT NOT NULL,
	user_email VARCHAR(255) NOT NULL,
	user_name VARCHAR(255) NOT NULL DEFAULT '',
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	selected_book_id BIGINT NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	INDEX idx_sessions_expires_at (expires_at)
)`

// MySQLSessionStore keeps sessions in MySQL.
type MySQLSessionStore struct {
	db *sql.DB
}

var _ session.Store = (*MySQLSessionStore)(nil)

// NewMySQLSessionStore connects to dsn and creates the sessions table if needed.
// Times are read back in UTC.
func NewMySQLSessionStore(ctx context.Context, dsn string) (*MySQLSessionStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, mysqlSessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sessions table: %w", err)
	}
	return &MySQLSessionStore{db: db}, nil
}

func (m *MySQLSessionStore) Save(ctx context.Context, s *session.Session) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sessions (id_hash, user_id, user_email, user_name, access_token, refresh_token,
			selected_book_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			access_token = VALUES(access_token),
			refresh_token = VALUES(refresh_token),
			selected_book_id = VALUES(selected_book_id),
			expires_at = VALUES(expires_at)`,
		s.Key(), s.User.ID, s.User.Email, s.User.Name, s.AccessToken, s.RefreshToken,
		s.SelectedBookID, s.CreatedAt.UTC(), s.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *MySQLSessionStore) Get(ctx context.Context, key string) (*session.Session, error) {
	var s session.Session
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, user_email, user_name, access_token, refresh_token, selected_book_id,
			created_at, expires_at
		FROM sessions WHERE id_hash = ?`, key).
		Scan(&s.User.ID, &s.User.Email, &s.User.Name, &s.AccessToken, &s.RefreshToken,
			&s.SelectedBookID, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (m *MySQLSessionStore) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM sessions WHERE id_hash = ?`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *MySQLSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (m *MySQLSessionStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLSessionStore) Close() error {
	return m.db.Close()
}
