package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentApp, Output: &buf}).WithComponent(ComponentLedger)
	l.Warn("non-finite amounts", FieldAnomalies, 2)
	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "anomalies=2") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestMiddlewareCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Output: &buf})
	h := Middleware(base, func(*http.Request) string { return "req-42" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RequestEnd(r.Context(), r, http.StatusNotFound, 3, "10.0.0.1")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ledger?filter=X", nil))

	out := buf.String()
	for _, want := range []string{"request_id=req-42", "status_code=404", "level=WARN", "component=http"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected default logger, got %+v", l)
	}
}
