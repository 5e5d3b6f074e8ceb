package strategy

import (
	"strings"
	"time"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/marketdata"
	"optpnl/internal/models"
	"optpnl/internal/scenario"
)

// Scenario bounds used when a document leaves min or max blank.
const (
	DefaultMinMove = -0.5
	DefaultMaxMove = 0.5
)

// Defaults fill the blanks of a document.
type Defaults struct {
	MinMove    float64
	MaxMove    float64
	Intervals  int
	Multiplier int
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		MinMove:    DefaultMinMove,
		MaxMove:    DefaultMaxMove,
		Intervals:  scenario.DefaultIntervals,
		Multiplier: models.DefaultMultiplier,
	}
}

// BuildOptions control how a document becomes engine input.
type BuildOptions struct {
	// Spot overrides the document's equity price when positive, e.g. with a
	// freshly refreshed mid.
	Spot float64
	// Chain, when set, snaps %OTM legs to listed strikes and supplies the
	// contract descriptions used as snapshot keys.
	Chain    *marketdata.Chain
	Defaults Defaults
}

// Build validates doc and converts it into a models.Strategy.
func Build(doc *Document, opts BuildOptions) (models.Strategy, error) {
	if err := Validate(doc); err != nil {
		return models.Strategy{}, err
	}

	spot := opts.Spot
	if spot <= 0 {
		spot, _, _ = ParseNumber(doc.Price)
	}
	if spot <= 0 {
		return models.Strategy{}, apperrors.Wrapf(apperrors.ErrInvalidSpot, "%s: no equity price", doc.Ticker)
	}

	def := opts.Defaults
	if def.Intervals == 0 && def.MinMove == 0 && def.MaxMove == 0 {
		def = DefaultDefaults()
	}

	spec := models.ScenarioSpec{MinMove: def.MinMove, MaxMove: def.MaxMove, Intervals: def.Intervals}
	if v, ok, _ := ParsePercent(doc.Min); ok {
		spec.MinMove = v
	}
	if v, ok, _ := ParsePercent(doc.Max); ok {
		spec.MaxMove = v
	}
	if doc.Intervals > 0 {
		spec.Intervals = doc.Intervals
	}
	if spec.Intervals == 0 {
		spec.Intervals = scenario.DefaultIntervals
	}
	for _, d := range doc.Dates {
		t, _ := models.ParseDate(d)
		spec.EvaluationDates = append(spec.EvaluationDates, t)
	}
	if v, ok, _ := ParsePercent(doc.VolShockTerm); ok {
		spec.TermVolShock = models.Float(v)
	}
	if v, ok, _ := ParseNumber(doc.TotalPremiumOverride); ok {
		spec.PremiumOverride = models.Float(v)
	}

	eqQty, _, _ := ParseNumber(doc.Qty)
	s := models.Strategy{
		Ticker: strings.TrimSpace(doc.Ticker),
		Spot:   spot,
		Equity: models.EquityPosition{Spot: spot, Quantity: eqQty},
		Spec:   spec,
	}

	for i, ld := range doc.Legs {
		leg, err := buildLeg(ld, spot, opts.Chain, def.Multiplier)
		if err != nil {
			return models.Strategy{}, apperrors.NewLegError(i, strings.TrimSpace(ld.Type+" "+ld.Maturity+" "+ld.StrikeText().String()), err)
		}
		s.Legs = append(s.Legs, leg)
	}
	return s, nil
}

func buildLeg(ld LegDoc, spot float64, chain *marketdata.Chain, multiplier int) (models.Leg, error) {
	typ, _ := models.ParseOptionType(ld.Type)
	maturity, _ := models.ParseDate(ld.Maturity)
	qty, _ := ParseQuantity(ld.Qty)

	strike, err := resolveStrike(ld, typ, spot, maturity, chain)
	if err != nil {
		return models.Leg{}, err
	}

	leg := models.Leg{
		Description: strings.TrimSpace(ld.Description),
		Root:        strings.TrimSpace(ld.Root),
		OptionType:  typ,
		Strike:      strike,
		Maturity:    maturity,
		Quantity:    qty,
		Multiplier:  ld.Multiplier,
	}
	if leg.Multiplier == 0 {
		leg.Multiplier = multiplier
	}

	if chain != nil {
		mat := models.DateKey(maturity)
		if leg.Root == "" {
			if roots := chain.Roots(mat, typ.Right(), strike); len(roots) > 0 {
				leg.Root = roots[0]
			}
		}
		if desc, ok := chain.Description(mat, typ.Right(), strike, leg.Root); ok {
			leg.Description = desc
		}
	}

	if ld.Snapshot != nil {
		leg.EntryQuote = ld.Snapshot.Quote()
	}
	// A manual price stands in for the market when the snapshot has none.
	if px, ok, _ := ParseNumber(ld.Price); ok && leg.EntryQuote.Bid == nil && leg.EntryQuote.Mid == nil && leg.EntryQuote.Ask == nil {
		leg.EntryQuote.Mid = models.Float(px)
	}

	if v, ok, _ := ParsePercent(ld.VolShockLeg); ok {
		leg.VolShock = models.Float(v)
	}
	if v, ok, _ := ParseNumber(ld.Beta); ok {
		leg.Beta = v
	}
	return leg, nil
}

// resolveStrike returns the leg strike. In %OTM mode the target strike is
// snapped to the nearest listed strike when a chain is available; without one
// a saved strike wins, then the unsnapped target.
func resolveStrike(ld LegDoc, typ models.OptionType, spot float64, maturity time.Time, chain *marketdata.Chain) (float64, error) {
	saved, hasSaved, _ := ParseNumber(ld.StrikeText())
	if ld.Mode() == StrikeModeStrike {
		return saved, nil
	}

	pct, ok, err := ParseNumber(Text(strings.TrimSuffix(ld.PctOTM.String(), "%")))
	if err != nil {
		return 0, err
	}
	if !ok {
		return saved, nil
	}
	if chain != nil {
		strikes := chain.Strikes(models.DateKey(maturity), typ.Right())
		if k, found := marketdata.SnapPctOTM(typ, spot, pct, strikes); found {
			return k, nil
		}
	}
	if hasSaved {
		return saved, nil
	}
	return marketdata.StrikeFromPctOTM(typ, spot, pct), nil
}
