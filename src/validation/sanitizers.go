package validation

import (
	"strings"
	"unicode"
)

// SanitizeForFormulaInjection neutralizes spreadsheet formula triggers in
// values that may be re-exported to CSV. A leading '=', '+', '-', '@', tab
// or carriage return gets a single-quote prefix.
func SanitizeForFormulaInjection(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}

// StripUnprintable removes control characters from a string, keeping
// ordinary whitespace.
func StripUnprintable(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, value)
}
