package core

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 1, true},
		{"12,500", 12500, true},
		{"1_000_000", 1000000, true},
		{" 3000원 ", 3000, true},
		{"₩700", 700, true},
		{"999.5", 1000, true}, // half-up rounding
		{"999.49", 999, true},
		{"0.5", 1, true},
		{"0", 0, false},
		{"0.4", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatWon(t *testing.T) {
	cases := map[float64]string{
		0:          "0원",
		999:        "999원",
		1000:       "1,000원",
		1234567:    "1,234,567원",
		-45000:     "-45,000원",
		1000.6:     "1,001원",
		math.NaN(): "-",
	}
	for in, want := range cases {
		if got := FormatWon(in); got != want {
			t.Fatalf("FormatWon(%v) = %q, want %q", in, got, want)
		}
	}
	if got := FormatWon(math.Inf(1)); got != "-" {
		t.Fatalf("FormatWon(+Inf) = %q", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(49.6); got != "50%" {
		t.Fatalf("got %q", got)
	}
	if got := FormatPercent(math.NaN()); got != "0%" {
		t.Fatalf("NaN percent should render as 0%%, got %q", got)
	}
}
