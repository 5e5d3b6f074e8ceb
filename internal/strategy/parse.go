package strategy

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseNumber parses a plain number, allowing thousands separators. ok is
// false for a blank field.
func ParseNumber(t Text) (v float64, ok bool, err error) {
	s := strings.ReplaceAll(t.String(), ",", "")
	if s == "" {
		return 0, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false, err
	}
	return d.InexactFloat64(), true, nil
}

// ParsePercent parses "10%", "10.0%" or "10" into the decimal fraction 0.10.
// ok is false for a blank field.
func ParsePercent(t Text) (v float64, ok bool, err error) {
	s := strings.TrimSpace(strings.TrimSuffix(t.String(), "%"))
	if s == "" {
		return 0, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false, err
	}
	return d.Div(hundred).InexactFloat64(), true, nil
}

// ParseQuantity parses a whole number of contracts. "2.0" is accepted.
func ParseQuantity(t Text) (int, error) {
	s := strings.ReplaceAll(t.String(), ",", "")
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errNotWhole
	}
	return int(d.IntPart()), nil
}

// FormatPercent renders a decimal fraction the way saved documents show it, e.g. "10.0%".
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).Mul(hundred).StringFixed(1) + "%"
}

// FormatNumber renders v with at most four decimals and no trailing zeros.
func FormatNumber(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}
