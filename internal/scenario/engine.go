package scenario

import (
	"time"

	"github.com/rs/zerolog"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

// RunOptions adjusts a single run of the engine.
type RunOptions struct {
	// IncludeEarliestMaturity adds the earliest leg maturity to the evaluation dates.
	IncludeEarliestMaturity bool
	// Intervals overrides the strategy's interval count when positive.
	Intervals int
}

// Engine runs a strategy end to end: grid, aggregation and premium override.
type Engine struct {
	agg    *Aggregator
	logger zerolog.Logger
}

// NewEngine creates an engine reading refreshed snapshots from cache.
func NewEngine(cache SnapshotCache, logger zerolog.Logger) *Engine {
	return &Engine{
		agg:    NewAggregator(cache, logger),
		logger: logger,
	}
}

// Run evaluates s and returns the override-adjusted result.
func (e *Engine) Run(s models.Strategy, opts RunOptions) (*Result, error) {
	n := s.Spec.Intervals
	if opts.Intervals > 0 {
		n = opts.Intervals
	}
	grid, err := Grid(s.Spec.MinMove, s.Spec.MaxMove, n)
	if err != nil {
		return nil, err
	}

	dates := EvaluationDates(s, opts.IncludeEarliestMaturity)
	if len(dates) == 0 {
		return nil, apperrors.ErrNoEvaluationDates
	}

	// The earliest maturity is always evaluated for the payout ratio, even
	// when it is not one of the dates shown.
	evalDates := EvaluationDates(s, true)
	res, err := e.agg.Aggregate(Input{
		Legs:         s.Legs,
		Equity:       s.Equity,
		Spot:         s.Spot,
		Grid:         grid,
		Dates:        evalDates,
		TermVolShock: s.Spec.TermVolShock,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "strategy %s", s.Ticker)
	}

	out := res.WithPremiumOverride(s.Spec.PremiumOverride)
	if out.Override != nil {
		e.logger.Info().
			Float64("computed_total", out.ComputedTotal).
			Float64("override", *out.Override).
			Float64("shift", out.Shift).
			Msg("Premium override applied")
	}
	if m, ok := s.EarliestMaturity(); ok {
		if c, ok := out.Curve(m); ok {
			out.PayoutDate = models.Day(m)
			out.PayoutCurve = append([]float64(nil), c...)
		}
	}
	if len(evalDates) != len(dates) {
		out = out.onlyDates(dates)
	}
	return out, nil
}

// EvaluationDates returns the strategy's dates, optionally with the earliest
// leg maturity added, sorted and de-duplicated.
func EvaluationDates(s models.Strategy, includeEarliest bool) []time.Time {
	dates := append([]time.Time(nil), s.Spec.EvaluationDates...)
	if includeEarliest {
		if m, ok := s.EarliestMaturity(); ok {
			dates = append(dates, m)
		}
	}
	return models.SortDates(dates)
}

// onlyDates returns a copy of r restricted to dates.
func (r *Result) onlyDates(dates []time.Time) *Result {
	out := *r
	out.Dates = append([]time.Time(nil), dates...)
	out.Curves = make(map[string][]float64, len(dates))
	for _, d := range dates {
		key := models.DateKey(d)
		out.Curves[key] = r.Curves[key]
	}
	out.Legs = make([]LegCurves, len(r.Legs))
	for i, lc := range r.Legs {
		curves := make(map[string][]float64, len(dates))
		for _, d := range dates {
			key := models.DateKey(d)
			curves[key] = lc.Curves[key]
		}
		lc.Curves = curves
		out.Legs[i] = lc
	}
	return &out
}
