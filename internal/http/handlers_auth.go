package http

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"ledgerbook/internal/api"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/session"
)

type loginPage struct {
	basePage
	Email  string
	Signup bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login_page", loginPage{basePage: s.base(r, "Sign in")})
}

// handleLogin exchanges credentials for API tokens and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if bad := ParseFormOrFail(w, r); bad != nil {
		bad.Write(w)
		return
	}
	email := sanitizeInput(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		s.loginFailed(w, r, http.StatusUnprocessableEntity, email, "Email and password are required", false)
		return
	}
	s.signIn(w, r, email, password)
}

// handleSignup registers an account and signs it in.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if bad := ParseFormOrFail(w, r); bad != nil {
		bad.Write(w)
		return
	}
	email := sanitizeInput(r.FormValue("email"))
	name := sanitizeInput(r.FormValue("name"))
	password := r.FormValue("password")

	switch {
	case email == "" || password == "" || name == "":
		s.loginFailed(w, r, http.StatusUnprocessableEntity, email, "Name, email and password are required", true)
		return
	case !validEmail(email):
		s.loginFailed(w, r, http.StatusUnprocessableEntity, email, "Invalid email address", true)
		return
	case len(password) < 8:
		s.loginFailed(w, r, http.StatusUnprocessableEntity, email, "Password must be at least 8 characters", true)
		return
	}

	err := s.api.Signup(r.Context(), api.SignupRequest{Email: email, Password: password, Name: name})
	if err != nil {
		s.logger.WarnContext(r.Context(), "Signup rejected",
			applog.FieldUserEmail, email, applog.FieldError, err)
		s.loginFailed(w, r, statusFor(err), email, api.UserMessage(err), true)
		return
	}
	s.signIn(w, r, email, password)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, email, password string) {
	ctx := r.Context()
	resp, err := s.api.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		s.logger.InfoContext(ctx, "Login failed",
			applog.FieldUserEmail, email,
			applog.FieldOperation, applog.OpLogin,
			applog.FieldError, err)
		s.loginFailed(w, r, statusFor(err), email, api.UserMessage(err), false)
		return
	}

	user := session.User{ID: resp.User.ID, Email: resp.User.Email, Name: resp.User.Name}
	sess, err := s.sessions.Create(ctx, user, resp.AccessToken, resp.RefreshToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create session", applog.FieldError, err)
		s.fail(w, r, http.StatusInternalServerError, "Could not start a session, please retry")
		return
	}
	s.sessions.SetCookie(w, sess)

	s.logger.InfoContext(ctx, "User signed in",
		applog.FieldUserEmail, user.Email,
		applog.FieldOperation, applog.OpLogin)
	RedirectResponse(w, r, "/books")
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, status int, email, msg string, signup bool) {
	if isHTMX(r) {
		ErrorResponse(status, msg).Write(w)
		return
	}
	p := loginPage{basePage: s.base(r, "Sign in"), Email: email, Signup: signup}
	p.Error = msg
	s.render(w, r, status, "login_page", p)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		if err := s.clientFor(r.Context(), sess).Logout(r.Context()); err != nil && !errors.Is(err, api.ErrUnauthorized) {
			s.logger.WarnContext(r.Context(), "API logout failed", applog.FieldError, err)
		}
		s.sessions.Destroy(w, r, sess)
		s.logger.InfoContext(r.Context(), "User signed out", applog.FieldUserEmail, sess.User.Email)
	}
	RedirectResponse(w, r, "/")
}

// statusFor maps an API error to the status shown to the browser.
func statusFor(err error) int {
	var apiErr *api.Error
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, "@")
}
