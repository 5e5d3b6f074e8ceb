package strategy

import (
	"errors"
	"fmt"
	"strings"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

var errNotWhole = errors.New("not a whole number")

// Validate checks a document before it is saved or run. All problems are
// reported together; each is a *ValidationError.
func Validate(doc *Document) error {
	var errs []error
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, apperrors.NewValidationError(field, value, msg))
	}

	if strings.TrimSpace(doc.Ticker) == "" {
		add("ticker", doc.Ticker, "ticker is required")
	}

	for _, f := range []struct {
		name string
		val  Text
	}{{"max", doc.Max}, {"min", doc.Min}} {
		if f.val.Empty() {
			add(f.name, "", "scenario bound is required")
			continue
		}
		if _, _, err := ParsePercent(f.val); err != nil {
			add(f.name, f.val, "must be a percentage such as 10% or -10")
		}
	}

	if _, _, err := ParseNumber(doc.Price); err != nil {
		add("price", doc.Price, "must be a number")
	}
	if _, _, err := ParseNumber(doc.Qty); err != nil {
		add("qty", doc.Qty, "must be a number")
	}
	if _, _, err := ParseNumber(doc.TotalPremiumOverride); err != nil {
		add("total_premium_override", doc.TotalPremiumOverride, "must be a number")
	}
	if _, _, err := ParsePercent(doc.VolShockTerm); err != nil {
		add("vol_shock_term", doc.VolShockTerm, "must be a percentage")
	}
	if doc.Intervals < 0 || doc.Intervals == 1 {
		add("intervals", doc.Intervals, "must be at least 2")
	}

	for i, d := range doc.Dates {
		if _, err := models.ParseDate(d); err != nil {
			add(fmt.Sprintf("dates[%d]", i), d, "must be YYYY-MM-DD")
		}
	}

	if len(doc.Legs) == 0 {
		add("legs", 0, "at least one complete leg is required")
	}
	for i, leg := range doc.Legs {
		errs = append(errs, validateLeg(i, leg)...)
	}

	return apperrors.Join(errs...)
}

func validateLeg(i int, leg LegDoc) []error {
	var errs []error
	field := func(name string) string { return fmt.Sprintf("legs[%d].%s", i, name) }
	add := func(name string, value interface{}, msg string) {
		errs = append(errs, apperrors.NewValidationError(field(name), value, msg))
	}

	if _, err := models.ParseOptionType(leg.Type); err != nil {
		add("type", leg.Type, "must be Call or Put")
	}

	if strings.TrimSpace(leg.Maturity) == "" {
		add("maturity", "", "maturity is required")
	} else if _, err := models.ParseDate(leg.Maturity); err != nil {
		add("maturity", leg.Maturity, "must be YYYY-MM-DD")
	}

	switch leg.Mode() {
	case StrikeModeStrike:
		if leg.StrikeText().Empty() {
			add("strike", "", "strike is required")
		}
	case StrikeModePctOTM:
		if leg.PctOTM.Empty() && leg.StrikeText().Empty() {
			add("pct_otm", "", "%OTM or a resolved strike is required")
		}
		if _, _, err := ParsePercent(leg.PctOTM); err != nil {
			add("pct_otm", leg.PctOTM, "must be a percentage")
		}
	default:
		add("strike_mode", leg.StrikeMode, "must be Strike or %OTM")
	}
	if !leg.StrikeText().Empty() {
		if v, _, err := ParseNumber(leg.StrikeText()); err != nil || v <= 0 {
			add("strike", leg.StrikeText(), "must be a positive number")
		}
	}

	qty, err := ParseQuantity(leg.Qty)
	switch {
	case err != nil:
		add("qty", leg.Qty, "must be a whole number of contracts")
	case qty == 0:
		add("qty", leg.Qty, "contract quantity must be non-zero")
	}

	if _, _, err := ParseNumber(leg.Price); err != nil {
		add("price", leg.Price, "must be a number")
	}
	if _, _, err := ParsePercent(leg.VolShockLeg); err != nil {
		add("vol_shock_leg", leg.VolShockLeg, "must be a percentage")
	}
	if _, _, err := ParseNumber(leg.Beta); err != nil {
		add("beta", leg.Beta, "must be a number")
	}
	if leg.Multiplier < 0 {
		add("multiplier", leg.Multiplier, "must be positive")
	}
	return errs
}
