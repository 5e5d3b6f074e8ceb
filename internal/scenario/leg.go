package scenario

import (
	"time"

	"optpnl/internal/models"
	"optpnl/internal/pricing"
)

// Phase is the position of an evaluation date relative to a leg's maturity.
type Phase int

const (
	BeforeMaturity Phase = iota
	AtMaturity
	PastMaturity
)

func (p Phase) String() string {
	switch p {
	case AtMaturity:
		return "at_maturity"
	case PastMaturity:
		return "past_maturity"
	default:
		return "before_maturity"
	}
}

// PhaseOf classifies an evaluation date against a maturity, by calendar day.
func PhaseOf(eval, maturity time.Time) Phase {
	e, m := models.Day(eval), models.Day(maturity)
	switch {
	case e.After(m):
		return PastMaturity
	case e.Equal(m):
		return AtMaturity
	default:
		return BeforeMaturity
	}
}

// IntrinsicBeta is the beta applied to the underlying at maturity. Legs settle
// on the actual underlying, so their own beta is not used there.
const IntrinsicBeta = 1.0

// LegEvaluator prices one leg across scenario points. The entry price is
// resolved once at construction and held fixed.
type LegEvaluator struct {
	leg        models.Leg
	quote      models.Quote
	spot       float64
	shock      float64
	resolution pricing.Resolution
}

// NewLegEvaluator resolves the entry price of leg from quote. termShock, when
// set, replaces the leg's own vol shock. It fails with ErrMissingPrice when the
// quote has no usable price.
func NewLegEvaluator(leg models.Leg, quote models.Quote, spot float64, termShock *float64) (*LegEvaluator, error) {
	q := quote.Clone()
	res, err := pricing.ResolveLegQuote(q, leg.Quantity)
	if err != nil {
		return nil, err
	}
	q.Bid, q.Mid, q.Ask = res.Bid, res.Mid, res.Ask

	shock := 0.0
	switch {
	case termShock != nil:
		shock = *termShock
	case leg.VolShock != nil:
		shock = *leg.VolShock
	}

	return &LegEvaluator{
		leg:        leg.Clone(),
		quote:      q,
		spot:       spot,
		shock:      shock,
		resolution: res,
	}, nil
}

// Leg returns a copy of the evaluated leg.
func (e *LegEvaluator) Leg() models.Leg { return e.leg.Clone() }

// Quote returns a copy of the normalised entry quote.
func (e *LegEvaluator) Quote() models.Quote { return e.quote.Clone() }

// Resolution returns the price resolution of the entry quote.
func (e *LegEvaluator) Resolution() pricing.Resolution { return e.resolution }

// EntryPrice is the resolved per-unit entry price.
func (e *LegEvaluator) EntryPrice() float64 { return e.resolution.Price }

// EntryCost is entry price x quantity x multiplier.
func (e *LegEvaluator) EntryCost() float64 {
	return e.resolution.Price * float64(e.leg.Quantity) * e.leg.EffectiveMultiplier()
}

// Shock is the effective vol shock.
func (e *LegEvaluator) Shock() float64 { return e.shock }

// AdjustedVol is the shocked implied vol as a decimal.
func (e *LegEvaluator) AdjustedVol() float64 {
	return pricing.VolDecimal(pricing.ShockVol(e.quote.ImpliedVol, e.shock))
}

// AdjustedQuote returns the entry quote with implied vol and vega scaled by the
// vol shock. Only used for display; pricing goes through AdjustedVol.
func (e *LegEvaluator) AdjustedQuote() models.Quote {
	q := e.quote.Clone()
	q.ImpliedVol = pricing.ShockVol(q.ImpliedVol, e.shock)
	q.Vega = pricing.ShockVol(q.Vega, e.shock)
	return q
}

func (e *LegEvaluator) blackScholes(p models.ScenarioPoint) (pricing.BSResult, float64) {
	t := pricing.TimeToMaturity(e.leg.Maturity, p.Date)
	r := pricing.PercentToDecimal(e.quote.FinancingRate)
	q := pricing.PercentToDecimal(e.quote.DividendYield)
	fwd := pricing.Forward(e.spot, p.Move, e.leg.EffectiveBeta(), r, q, t)
	return pricing.BlackScholes(fwd, e.leg.Strike, e.AdjustedVol(), t, r), t
}

// MarketValue is the value of the whole position at p.
func (e *LegEvaluator) MarketValue(p models.ScenarioPoint) float64 {
	size := float64(e.leg.Quantity) * e.leg.EffectiveMultiplier()

	switch PhaseOf(p.Date, e.leg.Maturity) {
	case PastMaturity:
		return 0
	case AtMaturity:
		underlying := pricing.ShockedSpot(e.spot, p.Move, IntrinsicBeta)
		return pricing.Intrinsic(e.leg.OptionType, underlying, e.leg.Strike) * size
	default:
		bs, _ := e.blackScholes(p)
		return bs.Price(e.leg.OptionType) * size
	}
}

// Profit is MarketValue minus EntryCost.
func (e *LegEvaluator) Profit(p models.ScenarioPoint) float64 {
	return e.MarketValue(p) - e.EntryCost()
}

// Curve evaluates Profit at every grid move on date.
func (e *LegEvaluator) Curve(grid []float64, date time.Time) []float64 {
	out := make([]float64, len(grid))
	for i, move := range grid {
		out[i] = e.Profit(models.ScenarioPoint{Move: move, Date: date})
	}
	return out
}

// DeltaAfterMove is the Black-Scholes delta at p and its notional
// (shocked spot x quantity x multiplier x delta). Both are NaN on or after
// maturity.
func (e *LegEvaluator) DeltaAfterMove(p models.ScenarioPoint) (delta, notional float64) {
	bs, _ := e.blackScholes(p)
	delta = bs.Delta(e.leg.OptionType)
	shocked := pricing.ShockedSpot(e.spot, p.Move, e.leg.EffectiveBeta())
	notional = shocked * float64(e.leg.Quantity) * e.leg.EffectiveMultiplier() * delta
	return delta, notional
}
