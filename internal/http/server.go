package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledgerbook/internal/api"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/middleware/ratelimit"
	"ledgerbook/internal/middleware/security"
	"ledgerbook/internal/middleware/trace"
	"ledgerbook/internal/services"
	"ledgerbook/internal/session"
	appweb "ledgerbook/web"
)

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the web server.
type Deps struct {
	// API is the unauthenticated client; handlers derive per-session
	// clients from it.
	API      *api.Client
	Sessions *session.Manager
	Ledger   *services.LedgerService
	Stats    *services.StatisticsService
	// Analysis is nil when the analysis page is disabled.
	Analysis *services.AnalysisService
	// Exports is nil when exporting is disabled.
	Exports *services.ExportService
	Checks  map[string]Pinger
	Logger  *applog.Logger
}

// Server is the web front-end: routes, templates and middleware around the
// per-session API clients.
type Server struct {
	http.Server
	templates *template.Template

	api      *api.Client
	sessions *session.Manager
	ledger   *services.LedgerService
	stats    *services.StatisticsService
	analysis *services.AnalysisService
	exports  *services.ExportService
	checks   map[string]Pinger
	logger   *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. A template parse failure is logged and reported by
// /readyz.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		api:      deps.API,
		sessions: deps.Sessions,
		ledger:   deps.Ledger,
		stats:    deps.Stats,
		analysis: deps.Analysis,
		exports:  deps.Exports,
		checks:   deps.Checks,
		logger:   logger.WithComponent(applog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(),
		started:  time.Now(),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /books", s.requireSession(s.handleBooks))
	mux.HandleFunc("POST /books", s.requireSession(s.handleCreateBook))
	mux.HandleFunc("POST /books/{id}/delete", s.requireSession(s.handleDeleteBook))
	mux.HandleFunc("POST /books/{id}/select", s.requireSession(s.handleSelectBook))
	mux.HandleFunc("POST /books/{id}/rename", s.requireSession(s.handleRenameBook))

	mux.HandleFunc("GET /dashboard", s.requireBook(s.handleDashboard))
	mux.HandleFunc("GET /ui/category-chart", s.requireBook(s.handleCategoryChart))
	mux.HandleFunc("GET /ui/category-chart.json", s.requireSession(s.handleCategoryChartJSON))
	mux.HandleFunc("GET /ledger", s.requireBook(s.handleLedger))
	mux.HandleFunc("GET /ui/ledger-view", s.requireBook(s.handleLedgerView))
	mux.HandleFunc("GET /statement", s.requireBook(s.handleStatement))
	mux.HandleFunc("GET /analysis", s.requireBook(s.handleAnalysis))

	mux.HandleFunc("POST /transactions", s.requireBook(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions/{id}/edit", s.requireBook(s.handleEditTransaction))
	mux.HandleFunc("POST /transactions/{id}", s.requireBook(s.handleUpdateTransaction))
	mux.HandleFunc("POST /transactions/{id}/delete", s.requireBook(s.handleDeleteTransaction))
	mux.HandleFunc("POST /exports", s.requireBook(s.handleCreateExport))

	var h http.Handler = mux
	if s.sessions != nil {
		h = s.sessions.Middleware(h)
	}
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	s.Handler = s.tracer.Middleware(h)

	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldOperation, applog.OpRender)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldOperation, applog.OpRender)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
