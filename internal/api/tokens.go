package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	// expiryLeeway refreshes slightly before the token actually expires.
	expiryLeeway   = 15 * time.Second
	refreshTimeout = 15 * time.Second
)

// SessionTokenSource hands out the session's access token and renews it
// through /auth/refresh when it has expired or the API rejected it.
type SessionTokenSource struct {
	mu        sync.Mutex
	client    *Client
	access    string
	refresh   string
	expiry    time.Time
	onRefresh func(access string)
	now       func() time.Time
}

var _ oauth2.TokenSource = (*SessionTokenSource)(nil)

// NewSessionTokenSource builds a token source for one session. onRefresh, if
// set, is called with every renewed access token so the session can be saved.
func NewSessionTokenSource(c *Client, access, refresh string, onRefresh func(access string)) *SessionTokenSource {
	return &SessionTokenSource{
		client:    c,
		access:    access,
		refresh:   refresh,
		expiry:    TokenExpiry(access),
		onRefresh: onRefresh,
		now:       time.Now,
	}
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature;
// the API verifies it. Opaque tokens or tokens without exp give the zero time.
func TokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Token implements oauth2.TokenSource. Callers holding a request context
// should use TokenContext.
func (s *SessionTokenSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext returns the access token, refreshing it first when it has
// expired. The refresh is bounded by ctx and by refreshTimeout.
func (s *SessionTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access == "" || s.expiredLocked() {
		ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	tok := bearer(s.access)
	tok.Expiry = s.expiry
	return tok, nil
}

// ForceRefresh renews the access token after the API rejected rejected. When
// another caller already replaced that token, the current one is returned
// without a second refresh.
func (s *SessionTokenSource) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access != "" && s.access != rejected {
		return s.access, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.access, nil
}

// Tokens returns the current access and refresh tokens.
func (s *SessionTokenSource) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

func (s *SessionTokenSource) expiredLocked() bool {
	return !s.expiry.IsZero() && !s.now().Add(expiryLeeway).Before(s.expiry)
}

func (s *SessionTokenSource) refreshLocked(ctx context.Context) error {
	if s.refresh == "" {
		return fmt.Errorf("no refresh token: %w", ErrUnauthorized)
	}
	resp, err := s.client.Refresh(ctx, s.refresh)
	if err != nil {
		return fmt.Errorf("refresh access token: %w: %v", ErrUnauthorized, err)
	}
	s.access = resp.AccessToken
	s.expiry = TokenExpiry(resp.AccessToken)
	if s.onRefresh != nil {
		s.onRefresh(s.access)
	}
	return nil
}
