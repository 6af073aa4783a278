// Package amount converts raw on-chain integer amounts into display units.
package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of decimal places kept when dividing prices.
const DivisionPrecision = 18

// IsDigits reports whether s is a non-empty string of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Clean returns s trimmed when it is a digit-only amount, otherwise "".
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if !IsDigits(s) {
		return ""
	}
	return s
}

// Raw parses a raw integer amount. ok is false for empty or malformed input.
func Raw(s string) (decimal.Decimal, bool) {
	if !IsDigits(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Display scales a raw amount by 10^-exponent.
func Display(raw string, exponent int32) (decimal.Decimal, bool) {
	d, ok := Raw(raw)
	if !ok {
		return decimal.Zero, false
	}
	return d.Shift(-exponent), true
}

// ToRaw scales a display amount back to raw units, truncating fractional dust.
func ToRaw(display decimal.Decimal, exponent int32) decimal.Decimal {
	return display.Shift(exponent).Truncate(0)
}

// Price returns quote/base in display units. ok is false unless both sides are positive.
func Price(baseRaw string, baseExp int32, quoteRaw string, quoteExp int32) (decimal.Decimal, bool) {
	base, ok := Display(baseRaw, baseExp)
	if !ok || !base.IsPositive() {
		return decimal.Zero, false
	}
	quote, ok := Display(quoteRaw, quoteExp)
	if !ok || !quote.IsPositive() {
		return decimal.Zero, false
	}
	return quote.DivRound(base, DivisionPrecision), true
}

// Format renders a raw amount in display units with exponent places.
func Format(raw string, exponent int32) string {
	d, ok := Display(raw, exponent)
	if !ok {
		return "0"
	}
	return d.StringFixed(exponent)
}
