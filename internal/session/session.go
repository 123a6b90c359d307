// Package session holds the signed-in user's tokens and book selection for
// one browser, keyed by a random cookie value. Stores keep only a hash of
// that value.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// User is the signed-in account as the API reported it at login.
type User struct {
	ID    int64
	Email string
	Name  string
}

// Session is one signed-in browser with its API tokens.
type Session struct {
	// ID is the raw cookie value. Stores never persist it.
	ID             string
	User           User
	AccessToken    string
	RefreshToken   string
	SelectedBookID int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Key is the value stores index the session by.
func (s *Session) Key() string { return HashID(s.ID) }

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions by hashed id.
type Store interface {
	// Save inserts or replaces the session.
	Save(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (*Session, error)
	Delete(ctx context.Context, key string) error
	// PurgeExpired removes sessions that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// HashID returns the hex BLAKE2b-256 digest of id.
func HashID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

type contextKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, if the request is signed in.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
