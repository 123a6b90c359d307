// Package core holds the bookkeeping domain: ledger entries, the
// transaction view built from them and the statistics shown on dashboards.
//
// This file contains amount parsing for transaction entry forms and
// formatting for display.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a user-typed amount into whole won.
//
// Thousands separators (comma, underscore, space) are ignored and a decimal
// point is allowed, rounding half-up to the nearest won. Negative, zero and
// malformed values return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12,500")  -> 12500, nil
//	ParseAmount("999.5")   -> 1000, nil
//	ParseAmount("999.49")  -> 999, nil
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimPrefix(s, "₩")
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if fracPart != "" && fracPart[0] >= '5' {
		if v == math.MaxInt64 {
			return 0, ErrInvalidAmount
		}
		v++
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatWon renders an amount as "1,234,567원", rounded to whole won.
// Non-finite values render as "-".
func FormatWon(amount float64) string {
	if !finite(amount) {
		return "-"
	}
	v := int64(math.Round(amount))
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + "원"
	}
	return b.String() + "원"
}

// FormatPercent renders a 0..100 percentage with no decimals, as the charts
// label it.
func FormatPercent(p float64) string {
	if !finite(p) {
		p = 0
	}
	return strconv.FormatFloat(math.Round(p), 'f', 0, 64) + "%"
}
