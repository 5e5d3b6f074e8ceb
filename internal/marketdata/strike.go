package marketdata

import (
	"math"

	"optpnl/internal/models"
)

// PctOTMFromStrike is the signed distance of strike from spot in percent,
// positive when the strike is above spot. Zero when spot is zero.
func PctOTMFromStrike(spot, strike float64) float64 {
	if spot == 0 {
		return 0
	}
	return (strike/spot - 1) * 100
}

// StrikeFromPctOTM is the target strike pct percent out of the money: above
// spot for calls, below spot for puts.
func StrikeFromPctOTM(t models.OptionType, spot, pct float64) float64 {
	adj := pct / 100
	if t != models.Call {
		adj = -adj
	}
	return spot * (1 + adj)
}

// NearestStrike returns the listed strike closest to target. Ties go to the
// first candidate. ok is false when strikes is empty.
func NearestStrike(strikes []float64, target float64) (strike float64, ok bool) {
	best := math.Inf(1)
	for _, s := range strikes {
		if d := math.Abs(s - target); d < best {
			best = d
			strike = s
			ok = true
		}
	}
	return strike, ok
}

// SnapPctOTM resolves a %OTM to the nearest listed strike.
func SnapPctOTM(t models.OptionType, spot, pct float64, strikes []float64) (float64, bool) {
	return NearestStrike(strikes, StrikeFromPctOTM(t, spot, pct))
}

// AtTheMoney picks the listed strike closest to spot.
func AtTheMoney(strikes []float64, spot float64) (float64, bool) {
	return NearestStrike(strikes, spot)
}
