package http

import (
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledgerbook/internal/core"
)

// parseYearMonth reads a YYYY-MM query parameter, falling back to def when
// it is missing or malformed.
func parseYearMonth(r *http.Request, key string, def core.YearMonth) core.YearMonth {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	ym, err := core.ParseYearMonth(v)
	if err != nil {
		return def
	}
	return ym
}

// parseID parses a positive integer id; anything else yields 0.
func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// parseTxType accepts INCOME or EXPENSE case-insensitively, falling back to
// def.
func parseTxType(s string, def core.TxType) core.TxType {
	t := core.TxType(strings.ToUpper(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return def
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// barWidth scales value against max to a 0..100 bar width. Tiny non-zero
// values stay visible.
func barWidth(value, max float64) int {
	if max <= 0 || value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	width := int(math.Round(value / max * 100))
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

var templateFuncs = template.FuncMap{
	"won":     core.FormatWon,
	"percent": core.FormatPercent,
	"ym":      func(ym core.YearMonth) string { return ym.String() },
	"lower":   strings.ToLower,
	"clock":   func(t time.Time) string { return t.Format("15:04") },
}
