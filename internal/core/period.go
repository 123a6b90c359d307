package core

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// YearMonth is a calendar month used to scope ledger and statistics queries.
type YearMonth struct {
	Year  int
	Month int // 1-12
}

func NewYearMonth(year, month int) YearMonth {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// ParseYearMonth parses the YYYY-MM form.
func ParseYearMonth(s string) (YearMonth, error) {
	if !yearMonthPattern.MatchString(s) {
		return YearMonth{}, ErrInvalidYearMonth
	}
	y, _ := strconv.Atoi(s[:4])
	m, _ := strconv.Atoi(s[5:])
	return YearMonth{Year: y, Month: m}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// AddMonths shifts the period, normalising across year boundaries.
func (ym YearMonth) AddMonths(n int) YearMonth {
	return NewYearMonth(ym.Year, ym.Month+n)
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// MonthCount returns how many months from..to spans inclusively, or 0 for
// an inverted range.
func MonthCount(from, to YearMonth) int {
	n := (to.Year-from.Year)*12 + (to.Month - from.Month) + 1
	if n < 0 {
		return 0
	}
	return n
}

// MonthsBetween returns every month from..to inclusive, in order. An
// inverted range yields nil.
func MonthsBetween(from, to YearMonth) []YearMonth {
	n := MonthCount(from, to)
	if n == 0 {
		return nil
	}
	out := make([]YearMonth, 0, n)
	for cur := from; !to.Before(cur); cur = cur.AddMonths(1) {
		out = append(out, cur)
	}
	return out
}

// TrailingMonths returns the n months ending at end, oldest first.
func TrailingMonths(end YearMonth, n int) (from, to YearMonth) {
	if n < 1 {
		n = 1
	}
	return end.AddMonths(-(n - 1)), end
}
