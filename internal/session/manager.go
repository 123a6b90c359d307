package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	applog "ledgerbook/internal/log"
)

const CookieName = "ledgerbook_session"

// Manager ties a Store to the session cookie.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
	logger *applog.Logger
	now    func() time.Time
}

// NewManager creates a manager issuing sessions that live for ttl.
func NewManager(store Store, ttl time.Duration, secureCookie bool, logger *applog.Logger) *Manager {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		secure: secureCookie,
		logger: logger.WithComponent(applog.ComponentSession),
		now:    time.Now,
	}
}

// Create starts a session for a freshly signed-in user.
func (m *Manager) Create(ctx context.Context, user User, access, refresh string) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:           NewID(),
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.logger.InfoContext(ctx, "Session created", applog.FieldUserEmail, user.Email)
	return s, nil
}

// Save persists changes to an existing session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the session named by the request cookie. Expired sessions are
// deleted and reported as ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	ctx := r.Context()
	key := HashID(c.Value)
	s, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.ID = c.Value
	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "Failed to delete expired session", applog.FieldError, err)
		}
		return nil, ErrExpired
	}
	return s, nil
}

// Destroy deletes the session and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) {
	if s != nil {
		if err := m.store.Delete(r.Context(), s.Key()); err != nil {
			m.logger.WarnContext(r.Context(), "Failed to delete session", applog.FieldError, err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetCookie writes the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware attaches the session, when there is a valid one, to the request
// context. It never rejects requests; handlers decide what needs a session.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r)
		switch {
		case err == nil:
			r = r.WithContext(NewContext(r.Context(), s))
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		default:
			m.logger.ErrorContext(r.Context(), "Failed to load session", applog.FieldError, err)
		}
		next.ServeHTTP(w, r)
	})
}

// StartPurge removes expired sessions every interval until ctx is done.
func (m *Manager) StartPurge(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.store.PurgeExpired(ctx, m.now())
				if err != nil {
					m.logger.Warn("Session purge failed", applog.FieldError, err)
					continue
				}
				if n > 0 {
					m.logger.Debug("Expired sessions purged", "count", n)
				}
			}
		}
	}()
}
