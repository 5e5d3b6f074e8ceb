package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType is the right of an option contract.
type OptionType string

const (
	Call OptionType = "Call"
	Put  OptionType = "Put"
)

// ParseOptionType accepts Call/Put in the spellings used by strategy files and
// data vendors (Call, CALL, C, CE, Put, P, PE).
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return Call, nil
	case "PUT", "P", "PE":
		return Put, nil
	}
	return "", fmt.Errorf("invalid option type %q (must be Call or Put)", s)
}

// Right returns the single-letter right code, C or P.
func (t OptionType) Right() string {
	if t == Call {
		return "C"
	}
	return "P"
}

// Quote is the engine's view of one option's market snapshot. Bid, Mid and Ask
// are nullable; the rate and vol fields are percent-scaled as delivered by the
// data vendor.
type Quote struct {
	Bid *float64 `json:"bid,omitempty"`
	Mid *float64 `json:"mid,omitempty"`
	Ask *float64 `json:"ask,omitempty"`

	FinancingRate float64 `json:"financing_rate"`
	DividendYield float64 `json:"dividend_yield"`
	ImpliedVol    float64 `json:"implied_vol"`

	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Clone returns a deep copy; the copy shares no pointers with q.
func (q Quote) Clone() Quote {
	c := q
	c.Bid = copyFloat(q.Bid)
	c.Mid = copyFloat(q.Mid)
	c.Ask = copyFloat(q.Ask)
	return c
}

// Leg is one option position of a strategy. A Leg is immutable input to the
// engine once complete; editing maturity, right, strike or root produces a new
// Leg with a fresh quote.
type Leg struct {
	Description string     `json:"description,omitempty"`
	Root        string     `json:"root,omitempty"`
	OptionType  OptionType `json:"type"`
	Strike      float64    `json:"strike"`
	Maturity    time.Time  `json:"maturity"`
	// Quantity is signed: positive bought, negative sold.
	Quantity   int   `json:"qty"`
	Multiplier int   `json:"multiplier"`
	EntryQuote Quote `json:"entry_quote"`
	// VolShock is a decimal fraction, e.g. 0.10 for +10% vol.
	VolShock *float64 `json:"vol_shock,omitempty"`
	// Beta scales the underlying move before maturity; zero means 1.0.
	Beta float64 `json:"beta,omitempty"`
}

// EffectiveMultiplier returns the contract size, defaulting to 100.
func (l Leg) EffectiveMultiplier() float64 {
	if l.Multiplier <= 0 {
		return DefaultMultiplier
	}
	return float64(l.Multiplier)
}

// EffectiveBeta returns the leg beta, defaulting to 1.0.
func (l Leg) EffectiveBeta() float64 {
	if l.Beta == 0 {
		return 1.0
	}
	return l.Beta
}

// Side returns the trade direction of the leg.
func (l Leg) Side() Side {
	return SideOf(l.Quantity)
}

// Key identifies the contract a leg refers to; a change of key invalidates any
// cached snapshot for the leg.
func (l Leg) Key() string {
	if l.Description != "" {
		return l.Description
	}
	return fmt.Sprintf("%s %s %s%g", l.Root, DateKey(l.Maturity), l.OptionType.Right(), l.Strike)
}

// Clone returns a deep copy of the leg.
func (l Leg) Clone() Leg {
	c := l
	c.EntryQuote = l.EntryQuote.Clone()
	c.VolShock = copyFloat(l.VolShock)
	return c
}

// EquityPosition is a cash position in the underlying: delta one, no optionality.
type EquityPosition struct {
	Spot     float64 `json:"spot"`
	Quantity float64 `json:"qty"`
}

// ScenarioSpec describes the what-if grid and its overrides.
type ScenarioSpec struct {
	MinMove         float64     `json:"min_move"`
	MaxMove         float64     `json:"max_move"`
	Intervals       int         `json:"intervals"`
	EvaluationDates []time.Time `json:"evaluation_dates"`
	// TermVolShock overrides every leg's VolShock when set.
	TermVolShock    *float64 `json:"term_vol_shock,omitempty"`
	PremiumOverride *float64 `json:"premium_override,omitempty"`
}

// ScenarioPoint is one (underlying move, evaluation date) pair.
type ScenarioPoint struct {
	Move float64
	Date time.Time
}

// Strategy owns the legs, the optional equity position and the scenario spec.
type Strategy struct {
	Ticker string         `json:"ticker"`
	Spot   float64        `json:"spot"`
	Equity EquityPosition `json:"equity"`
	Legs   []Leg          `json:"legs"`
	Spec   ScenarioSpec   `json:"spec"`
}

// EarliestMaturity returns the earliest leg maturity, or false when there are no legs.
func (s Strategy) EarliestMaturity() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, l := range s.Legs {
		if !found || l.Maturity.Before(earliest) {
			earliest = l.Maturity
			found = true
		}
	}
	return earliest, found
}

// ChainEntry is one listed contract of an option chain.
type ChainEntry struct {
	Maturity    time.Time `json:"maturity"`
	Right       string    `json:"right"`
	Strike      float64   `json:"strike"`
	Root        string    `json:"root"`
	Description string    `json:"description"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
