package core

// convert.go provides lenient conversions for user-provided CSV and event data:
// currency symbols, thousands separators, accounting negatives and the "N/A"
// sentinel are all tolerated. Failures yield zero values rather than errors.

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is the sentinel used for absent string values and tolerated as
// an absent numeric value.
const NotAvailable = "N/A"

// numericRegex validates a cleaned numeric string.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// cleanNumber strips formatting and reports whether what remains is numeric.
func cleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NotAvailable) {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", "₹", "Rs.", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseDecimal converts s to a decimal, returning zero for empty or invalid input.
func ParseDecimal(s string) decimal.Decimal {
	clean, ok := cleanNumber(s)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseFloat converts s to a float64, returning zero for empty or invalid input.
func ParseFloat(s string) float64 {
	clean, ok := cleanNumber(s)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseQuantity converts s to a non-negative whole count. Fractions are
// truncated and negative values clamp to zero.
func ParseQuantity(s string) int {
	f := ParseFloat(s)
	if f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// StringOr returns s trimmed, or def when s is empty.
func StringOr(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
