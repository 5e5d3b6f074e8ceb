package scenario

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/logging"
	"optpnl/internal/models"
)

// SnapshotCache supplies refreshed snapshots by leg key. Implementations must
// return copies the caller may keep.
type SnapshotCache interface {
	Get(key string) (models.Snapshot, bool)
}

// Input is one unit of aggregation work.
type Input struct {
	Legs         []models.Leg
	Equity       models.EquityPosition
	Spot         float64
	Grid         []float64
	Dates        []time.Time
	TermVolShock *float64
}

// LegCurves is the contribution of one usable leg.
type LegCurves struct {
	Index      int
	Leg        models.Leg
	Quote      models.Quote
	EntryPrice float64
	EntryCost  float64
	Shock      float64
	Steps      []string
	Curves     map[string][]float64
}

// Result holds the portfolio curves keyed by YYYY-MM-DD.
type Result struct {
	Grid          []float64
	Dates         []time.Time
	Curves        map[string][]float64
	Legs          []LegCurves
	Excluded      []*apperrors.LegError
	EquityProfit  []float64
	ComputedTotal float64
	Override      *float64
	Shift         float64

	// PayoutDate and PayoutCurve hold the earliest leg maturity curve, set
	// whether or not that date is in Dates.
	PayoutDate  time.Time
	PayoutCurve []float64
}

// Curve returns the portfolio curve for date.
func (r *Result) Curve(date time.Time) ([]float64, bool) {
	c, ok := r.Curves[models.DateKey(date)]
	return c, ok
}

// Aggregator sums per-leg profit curves into portfolio curves.
type Aggregator struct {
	cache  SnapshotCache
	logger zerolog.Logger
}

// NewAggregator creates an aggregator. cache may be nil, in which case each
// leg's own entry quote is used.
func NewAggregator(cache SnapshotCache, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		cache:  cache,
		logger: logging.WithOperation(logger, "aggregate"),
	}
}

// quoteFor returns a private copy of the quote to price leg with. A cached
// snapshot wins over the quote stored on the leg.
func (a *Aggregator) quoteFor(leg models.Leg) models.Quote {
	if a.cache != nil {
		if snap, ok := a.cache.Get(leg.Key()); ok && snap.HasPrice() {
			return snap.Clone().Quote()
		}
	}
	return leg.EntryQuote.Clone()
}

// Aggregate evaluates every leg on every date and sums the curves. Legs whose
// entry price cannot be resolved are reported in Result.Excluded and skipped.
// When no leg is usable it returns ErrNoUsableLegs.
func (a *Aggregator) Aggregate(in Input) (*Result, error) {
	if len(in.Grid) < 2 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidIntervals, "grid has %d points", len(in.Grid))
	}
	dates := models.SortDates(in.Dates)
	if len(dates) == 0 {
		return nil, apperrors.ErrNoEvaluationDates
	}
	if in.Spot <= 0 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidSpot, "spot %v", in.Spot)
	}

	grid := append([]float64(nil), in.Grid...)
	res := &Result{
		Grid:   grid,
		Dates:  dates,
		Curves: make(map[string][]float64, len(dates)),
	}
	for _, d := range dates {
		res.Curves[models.DateKey(d)] = make([]float64, len(grid))
	}

	for i, leg := range in.Legs {
		legLog := logging.WithLeg(a.logger, i, leg.Key())

		ev, err := NewLegEvaluator(leg, a.quoteFor(leg), in.Spot, in.TermVolShock)
		if err != nil {
			legErr := apperrors.NewLegError(i, leg.Key(), err)
			res.Excluded = append(res.Excluded, legErr)
			legLog.Warn().Err(err).Msg("Leg excluded from aggregation")
			continue
		}
		for _, s := range ev.Resolution().Steps {
			legLog.Debug().Str("step", s).Msg("Entry price resolution")
		}

		lc := LegCurves{
			Index:      i,
			Leg:        ev.Leg(),
			Quote:      ev.Quote(),
			EntryPrice: ev.EntryPrice(),
			EntryCost:  ev.EntryCost(),
			Shock:      ev.Shock(),
			Steps:      append([]string(nil), ev.Resolution().Steps...),
			Curves:     make(map[string][]float64, len(dates)),
		}
		for _, d := range dates {
			key := models.DateKey(d)
			curve := ev.Curve(grid, d)
			lc.Curves[key] = curve
			total := res.Curves[key]
			for j := range curve {
				total[j] += curve[j]
			}
		}
		res.ComputedTotal += lc.EntryCost
		res.Legs = append(res.Legs, lc)
	}

	if len(res.Legs) == 0 {
		if len(res.Excluded) == 0 {
			return nil, apperrors.ErrNoUsableLegs
		}
		errs := make([]error, len(res.Excluded))
		for i, e := range res.Excluded {
			errs[i] = e
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrNoUsableLegs, apperrors.Join(errs...))
	}

	if in.Equity.Quantity != 0 {
		res.EquityProfit = EquityProfit(in.Equity, in.Spot, grid)
		for _, d := range dates {
			total := res.Curves[models.DateKey(d)]
			for j := range total {
				total[j] += res.EquityProfit[j]
			}
		}
	}

	a.logger.Debug().
		Int("legs", len(res.Legs)).
		Int("excluded", len(res.Excluded)).
		Int("dates", len(dates)).
		Int("points", len(grid)).
		Float64("computed_total", res.ComputedTotal).
		Msg("Aggregation complete")

	return res, nil
}

// EquityProfit is the P&L of a cash position across the grid. The position's
// own spot is used when set, otherwise spot.
func EquityProfit(eq models.EquityPosition, spot float64, grid []float64) []float64 {
	s := eq.Spot
	if s == 0 {
		s = spot
	}
	out := make([]float64, len(grid))
	for i, move := range grid {
		out[i] = eq.Quantity * (s*(1+move*IntrinsicBeta) - s)
	}
	return out
}
