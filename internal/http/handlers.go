package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"ledgerbook/internal/api"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/session"
)

// basePage is embedded by every full-page view model.
type basePage struct {
	Title  string
	User   *session.User
	BookID int64
	Error  string
}

func (s *Server) base(r *http.Request, title string) basePage {
	p := basePage{Title: title}
	if sess, ok := session.FromContext(r.Context()); ok {
		p.User = &sess.User
		p.BookID = sess.SelectedBookID
	}
	return p
}

type errorPage struct {
	basePage
	Status int
}

// fail reports an error inline: HTMX requests and form posts get an error
// fragment, full page loads get the error page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if isHTMX(r) || r.Method != http.MethodGet {
		ErrorResponse(status, msg).Write(w)
		return
	}
	p := errorPage{basePage: s.base(r, "Error"), Status: status}
	p.Error = msg
	s.render(w, r, status, "error_page", p)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client)

// requireSession sends anonymous requests to the login page and hands the
// handler a client bound to the session's tokens.
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok {
			RedirectResponse(w, r, "/")
			return
		}
		next(w, r, sess, s.clientFor(r.Context(), sess))
	}
}

// requireBook additionally sends users without a selected book to /books.
func (s *Server) requireBook(next sessionHandler) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
		if sess.SelectedBookID == 0 {
			RedirectResponse(w, r, "/books")
			return
		}
		next(w, r, sess, client)
	})
}

// clientFor returns an API client using the session's tokens. Refreshed
// access tokens are written back to the session store.
func (s *Server) clientFor(ctx context.Context, sess *session.Session) *api.Client {
	ts := api.NewSessionTokenSource(s.api, sess.AccessToken, sess.RefreshToken, func(access string) {
		sess.AccessToken = access
		if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
			s.logger.WarnContext(ctx, "Failed to save refreshed access token", applog.FieldError, err)
		}
	})
	return s.api.WithTokens(ts)
}

// signedOut ends the session when the API no longer accepts its tokens and
// reports whether it did.
func (s *Server) signedOut(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	s.logger.InfoContext(r.Context(), "Session rejected by the API, signing out",
		applog.FieldUserEmail, sess.User.Email)
	s.sessions.Destroy(w, r, sess)
	RedirectResponse(w, r, "/")
	return true
}

// apiFailure answers a failed API call: an expired login ends the session,
// anything else is logged and shown inline.
func (s *Server) apiFailure(w http.ResponseWriter, r *http.Request, sess *session.Session, err error, op string) {
	if s.signedOut(w, r, sess, err) {
		return
	}
	s.logger.ErrorContext(r.Context(), "API call failed",
		applog.FieldError, err,
		applog.FieldOperation, op,
		applog.FieldBookID, sess.SelectedBookID)
	status := http.StatusBadGateway
	if errors.Is(err, api.ErrNotFound) {
		status = http.StatusNotFound
	}
	s.fail(w, r, status, api.UserMessage(err))
}

// loadBook fetches the selected book. A book that disappeared is deselected
// and the user sent back to the book list.
func (s *Server) loadBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) (api.BookDetail, bool) {
	book, err := client.GetBook(r.Context(), sess.SelectedBookID)
	if errors.Is(err, api.ErrNotFound) {
		sess.SelectedBookID = 0
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			s.logger.WarnContext(r.Context(), "Failed to clear book selection", applog.FieldError, err)
		}
		RedirectResponse(w, r, "/books")
		return api.BookDetail{}, false
	}
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpRead)
		return api.BookDetail{}, false
	}
	return book, true
}

func (s *Server) invalidateBook(ctx context.Context, bookID int64) {
	if s.ledger != nil {
		s.ledger.InvalidateBook(ctx, bookID)
	}
	if s.stats != nil {
		s.stats.InvalidateBook(ctx, bookID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth is the liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes request and security counters in plain text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
