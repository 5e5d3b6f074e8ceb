package pricing

import (
	"math"
	"time"

	"optpnl/internal/models"
)

// DaysPerYear is the ACT/365 day-count denominator.
const DaysPerYear = 365.0

// ShockedSpot applies a fractional underlying move scaled by beta.
func ShockedSpot(spot, move, beta float64) float64 {
	return spot * (1 + move*beta)
}

// Forward returns the forward of the shocked spot. r and q are decimal rates.
func Forward(spot, move, beta, r, q, t float64) float64 {
	return ShockedSpot(spot, move, beta) * math.Exp((r-q)*t)
}

// TimeToMaturity is the ACT/365 time from eval to maturity, zero once eval is on
// or after maturity.
func TimeToMaturity(maturity, eval time.Time) float64 {
	days := DaysBetween(eval, maturity)
	if days <= 0 {
		return 0
	}
	return float64(days) / DaysPerYear
}

// DaysBetween counts calendar days from a to b; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	d := models.Day(b).Sub(models.Day(a))
	return int(math.Round(d.Hours() / 24))
}

// PercentToDecimal converts a percent-scaled vendor rate (5.0 = 5%) to a decimal.
func PercentToDecimal(pct float64) float64 {
	return pct / 100
}

// VolDecimal treats vols above 1 as percent-scaled and converts them to decimals.
func VolDecimal(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// ShockVol applies a fractional vol shock (0.10 = +10%) to a vendor vol.
func ShockVol(vol, shock float64) float64 {
	return vol * (1 + shock)
}

// Intrinsic is the payoff of one unit at the given underlying level.
func Intrinsic(t models.OptionType, underlying, strike float64) float64 {
	if t == models.Call {
		return math.Max(underlying-strike, 0)
	}
	return math.Max(strike-underlying, 0)
}
