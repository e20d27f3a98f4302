package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a monetary string to signed integer cents. Currency
// symbols, thousands separators and whitespace are stripped; a parenthesized
// value is negative (accounting convention). An empty string is an error, not
// zero: silently defaulting hides broken column mappings.
func ParseAmount(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		case r == ',', r == '$', r == '€', r == '£', r == ' ', r == ' ':
			// strip
		default:
			return 0, fmt.Errorf("invalid character %q in amount %q", r, s)
		}
	}
	cleaned = b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "+" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		value = -value
	}
	return CentsFromFloat(value), nil
}

// CentsFromFloat converts a dollar value to integer cents, rounding half away
// from zero.
func CentsFromFloat(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FormatCents renders integer cents as a plain decimal string, e.g. -4200 ->
// "-42.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// AbsInt64 returns the absolute value of x.
func AbsInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// MinInt returns the smaller of two integers.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
