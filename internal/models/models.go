// Package models provides domain models for the scenario P&L engine.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar date format used across strategy files, caches and output.
const DateLayout = "2006-01-02"

// DefaultMultiplier is the default contract size of an equity option.
const DefaultMultiplier = 100

// Side represents the trade direction derived from a signed quantity.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideOf returns BUY for positive quantities and SELL otherwise.
func SideOf(qty int) Side {
	if qty > 0 {
		return SideBuy
	}
	return SideSell
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats a date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// SortDates returns the distinct calendar dates of in, ascending.
func SortDates(in []time.Time) []time.Time {
	seen := make(map[string]bool, len(in))
	out := make([]time.Time, 0, len(in))
	for _, t := range in {
		d := Day(t)
		k := DateKey(d)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
