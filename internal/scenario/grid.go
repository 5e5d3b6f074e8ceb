// Package scenario evaluates option strategies over a grid of underlying moves
// and evaluation dates.
package scenario

import (
	apperrors "optpnl/internal/errors"
)

// MinDisplayIntervals is the smallest interval count the interactive tools accept.
const MinDisplayIntervals = 3

// DefaultIntervals is used when a strategy does not set an interval count.
const DefaultIntervals = 50

// Grid returns n evenly spaced moves from min to max inclusive. The first and
// last points are exactly min and max.
func Grid(min, max float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidIntervals, "got %d", n)
	}

	points := make([]float64, n)
	span := max - min
	for i := 0; i < n; i++ {
		points[i] = min + float64(i)*span/float64(n-1)
	}
	points[0] = min
	points[n-1] = max
	return points, nil
}

// ClampIntervals applies the display floor of three intervals.
func ClampIntervals(n int) int {
	if n < MinDisplayIntervals {
		return MinDisplayIntervals
	}
	return n
}
