package scenario

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"optpnl/internal/models"
)

// LegLine is one row of the position summary.
type LegLine struct {
	Side       models.Side
	Quantity   int
	Maturity   time.Time
	Strike     float64
	OptionType models.OptionType
	Price      float64
	Excluded   bool
}

// Summary is the portfolio panel shown next to the chart.
type Summary struct {
	Ticker            string
	Spot              float64
	Lines             []LegLine
	NetPremium        float64
	PremiumOverridden bool
	NetPrice          float64

	Delta         float64
	Gamma         float64
	Theta         float64
	Vega          float64
	DeltaNotional float64
	GammaNotional float64

	PayoutDate time.Time
	MaxPnL     *float64
	Unlimited  bool
	Payout     string
}

// Summarize builds the summary panel of s from a run result. Greeks are summed
// as greek x quantity x multiplier over the usable legs. The payout ratio is
// read off the earliest maturity curve, or the earliest date in r when no
// maturity curve is available.
func Summarize(s models.Strategy, r *Result) Summary {
	sum := Summary{
		Ticker:            s.Ticker,
		Spot:              s.Spot,
		NetPremium:        r.NetPremium(),
		PremiumOverridden: r.Override != nil,
	}

	used := make(map[int]LegCurves, len(r.Legs))
	for _, lc := range r.Legs {
		used[lc.Index] = lc
	}

	qtys := make([]int, 0, len(r.Legs))
	prices := make([]float64, 0, len(r.Legs))
	for i, leg := range s.Legs {
		line := LegLine{
			Side:       leg.Side(),
			Quantity:   absInt(leg.Quantity),
			Maturity:   leg.Maturity,
			Strike:     leg.Strike,
			OptionType: leg.OptionType,
		}
		lc, ok := used[i]
		if !ok {
			line.Excluded = true
			sum.Lines = append(sum.Lines, line)
			continue
		}
		line.Price = lc.EntryPrice
		sum.Lines = append(sum.Lines, line)

		qtys = append(qtys, leg.Quantity)
		prices = append(prices, lc.EntryPrice)

		size := float64(leg.Quantity) * leg.EffectiveMultiplier()
		sum.Delta += lc.Quote.Delta * size
		sum.Gamma += lc.Quote.Gamma * size
		sum.Theta += lc.Quote.Theta * size
		sum.Vega += lc.Quote.Vega * size
	}

	sum.NetPrice = NetPrice(qtys, prices)
	sum.DeltaNotional = sum.Delta * s.Spot
	sum.GammaNotional = sum.Gamma * s.Spot

	curve, date, ok := payoutCurve(s, r)
	if ok {
		sum.PayoutDate = date
		maxIdx := 0
		for i, v := range curve {
			if v > curve[maxIdx] {
				maxIdx = i
			}
		}
		m := curve[maxIdx]
		if !math.IsNaN(m) {
			sum.MaxPnL = &m
		}
		if sum.MaxPnL != nil && len(curve) >= 2 {
			last := len(curve) - 1
			sum.Unlimited = maxIdx == last && curve[last] >= curve[last-1]
		}
	}
	sum.Payout = PayoutRatio(sum.MaxPnL, sum.NetPremium, sum.Unlimited)
	return sum
}

func payoutCurve(s models.Strategy, r *Result) ([]float64, time.Time, bool) {
	if len(r.PayoutCurve) > 0 {
		return r.PayoutCurve, r.PayoutDate, true
	}
	if m, ok := s.EarliestMaturity(); ok {
		if c, ok := r.Curve(m); ok && len(c) > 0 {
			return c, models.Day(m), true
		}
	}
	if len(r.Dates) > 0 {
		if c, ok := r.Curve(r.Dates[0]); ok && len(c) > 0 {
			return c, r.Dates[0], true
		}
	}
	return nil, time.Time{}, false
}

// PayoutRatio formats max P&L over net premium as "N:1", "x.x:1", "NA" for
// non-positive ratios, "Unlimited", or "-" when it is undefined.
func PayoutRatio(maxPnL *float64, netPremium float64, unlimited bool) string {
	if unlimited {
		return "Unlimited"
	}
	if maxPnL == nil || math.IsNaN(*maxPnL) || netPremium == 0 {
		return "-"
	}
	raw := *maxPnL / netPremium
	if math.Abs(raw) < 1e-9 {
		raw = 0
	}
	if math.Abs(raw-math.Round(raw)) < 1e-6 {
		return fmt.Sprintf("%d:1", int64(math.Round(raw)))
	}
	if raw <= 0 {
		return "NA"
	}
	return fmt.Sprintf("%.1f:1", raw)
}

// NetPrice is sum(qty x price) per unit of the base combo: quantities are
// divided by their greatest common divisor first.
func NetPrice(qtys []int, prices []float64) float64 {
	g := 0
	for _, q := range qtys {
		if q == 0 {
			continue
		}
		g = gcd(g, absInt(q))
	}
	if g == 0 {
		g = 1
	}

	total := decimal.Zero
	div := decimal.NewFromInt(int64(g))
	for i, q := range qtys {
		total = total.Add(decimal.NewFromInt(int64(q)).Div(div).Mul(decimal.NewFromFloat(prices[i])))
	}
	f, _ := total.Float64()
	return f
}

// String renders the summary the way the terminal panel shows it.
func (s Summary) String() string {
	var b strings.Builder
	if s.Ticker != "" {
		fmt.Fprintf(&b, "%s: %.2f\n", s.Ticker, s.Spot)
	} else {
		fmt.Fprintf(&b, "%.2f\n", s.Spot)
	}
	for _, l := range s.Lines {
		price := fmt.Sprintf("@%.2f", l.Price)
		if l.Excluded {
			price = "(excluded)"
		}
		fmt.Fprintf(&b, "%s %s %d %s %.2f %s %s\n",
			l.Side, s.Ticker, l.Quantity, models.DateKey(l.Maturity), l.Strike, l.OptionType, price)
	}

	premium := fmt.Sprintf("Net Premium: %s", groupThousands(s.NetPremium, 0))
	if s.PremiumOverridden {
		premium += " (override)"
	}
	b.WriteString(premium + "\n")

	tag := ""
	if !s.PayoutDate.IsZero() {
		tag = fmt.Sprintf(" (%s)", models.DateKey(s.PayoutDate))
	}
	fmt.Fprintf(&b, "Net Payout%s: %s\n", tag, s.Payout)
	fmt.Fprintf(&b, "Net Price: %s\n\n", groupThousands(s.NetPrice, 2))
	fmt.Fprintf(&b, "Delta: %.0f   Delta Notional: %s\n", s.Delta, groupThousands(s.DeltaNotional, 0))
	fmt.Fprintf(&b, "Gamma: %.0f   Gamma Notional: %s\n", s.Gamma, groupThousands(s.GammaNotional, 0))
	fmt.Fprintf(&b, "Theta: %.0f   Vega: %.0f", s.Theta, s.Vega)
	return b.String()
}

// groupThousands formats v with comma separators and the given decimals.
func groupThousands(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	d := decimal.NewFromFloat(v).Round(places)
	neg := d.IsNegative()
	s := d.Abs().StringFixed(places)

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	res := string(out) + frac
	if neg {
		res = "-" + res
	}
	return res
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
