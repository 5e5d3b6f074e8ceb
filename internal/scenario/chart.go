package scenario

import (
	"optpnl/internal/models"
)

// Series is the chart contract: x values are underlying prices and each label
// is one evaluation date.
type Series struct {
	X      []float64
	Labels []string
	Y      map[string][]float64
}

// ChartSeries maps r onto underlying prices spot*(1+move), one series per date
// in ascending date order.
func ChartSeries(spot float64, r *Result) Series {
	s := Series{
		X: make([]float64, len(r.Grid)),
		Y: make(map[string][]float64, len(r.Dates)),
	}
	for i, move := range r.Grid {
		s.X[i] = spot * (1 + move)
	}
	for _, d := range r.Dates {
		key := models.DateKey(d)
		c, ok := r.Curves[key]
		if !ok {
			continue
		}
		s.Labels = append(s.Labels, key)
		s.Y[key] = append([]float64(nil), c...)
	}
	return s
}
