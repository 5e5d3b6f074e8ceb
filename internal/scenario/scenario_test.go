package scenario

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
	"optpnl/internal/pricing"
)

const tol = 1e-9

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

type mapCache map[string]models.Snapshot

func (m mapCache) Get(key string) (models.Snapshot, bool) {
	s, ok := m[key]
	return s.Clone(), ok
}

func TestGrid(t *testing.T) {
	tests := []struct {
		name    string
		min     float64
		max     float64
		n       int
		want    []float64
		wantErr bool
	}{
		{"three points", -0.1, 0.1, 3, []float64{-0.1, 0, 0.1}, false},
		{"two points", -0.5, 0.5, 2, []float64{-0.5, 0.5}, false},
		{"descending", 0.2, -0.2, 3, []float64{0.2, 0, -0.2}, false},
		{"one point", -0.1, 0.1, 1, nil, true},
		{"zero points", -0.1, 0.1, 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Grid(tt.min, tt.max, tt.n)
			if tt.wantErr {
				if !apperrors.Is(err, apperrors.ErrInvalidIntervals) {
					t.Fatalf("Grid() error = %v, want ErrInvalidIntervals", err)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Grid() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !near(got[i], tt.want[i], 1e-15) {
					t.Errorf("Grid()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if ClampIntervals(2) != 3 || ClampIntervals(40) != 40 {
		t.Error("ClampIntervals does not apply the display floor")
	}
}

func TestPhaseOf(t *testing.T) {
	m := models.MustDate("2024-06-21")
	if PhaseOf(m.AddDate(0, 0, -1), m) != BeforeMaturity ||
		PhaseOf(m.Add(15*time.Hour), m) != AtMaturity ||
		PhaseOf(m.AddDate(0, 0, 1), m) != PastMaturity {
		t.Error("PhaseOf misclassifies dates around maturity")
	}
	if AtMaturity.String() != "at_maturity" {
		t.Errorf("AtMaturity.String() = %q", AtMaturity.String())
	}
}

func TestLegEvaluator_AtMaturityCall(t *testing.T) {
	maturity := models.MustDate("2024-06-21")
	leg := models.Leg{OptionType: models.Call, Strike: 105, Maturity: maturity, Quantity: 1, Multiplier: 100}
	ev, err := NewLegEvaluator(leg, models.Quote{Mid: models.Float(2)}, 100, nil)
	if err != nil {
		t.Fatalf("NewLegEvaluator() error = %v", err)
	}

	p := models.ScenarioPoint{Move: 0.10, Date: maturity}
	if v := ev.MarketValue(p); !near(v, 500, 1e-9) {
		t.Errorf("MarketValue at maturity = %v, want 500", v)
	}
	if pl := ev.Profit(p); !near(pl, 300, 1e-9) {
		t.Errorf("Profit at maturity = %v, want 300", pl)
	}
	if v := ev.MarketValue(models.ScenarioPoint{Move: 0.10, Date: maturity.AddDate(0, 0, 1)}); v != 0 {
		t.Errorf("MarketValue past maturity = %v, want 0", v)
	}
}

func TestLegEvaluator_BetaOnlyBeforeMaturity(t *testing.T) {
	maturity := models.MustDate("2024-12-20")
	eval := models.MustDate("2024-06-20")
	leg := models.Leg{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 2, Beta: 1.5}
	q := models.Quote{Mid: models.Float(5), ImpliedVol: 20, FinancingRate: 4, DividendYield: 1}
	ev, err := NewLegEvaluator(leg, q, 100, nil)
	if err != nil {
		t.Fatalf("NewLegEvaluator() error = %v", err)
	}

	T := pricing.TimeToMaturity(maturity, eval)
	fwd := pricing.Forward(100, 0.1, 1.5, 0.04, 0.01, T)
	want := pricing.BlackScholes(fwd, 100, 0.2, T, 0.04).Call * 200
	if got := ev.MarketValue(models.ScenarioPoint{Move: 0.1, Date: eval}); !near(got, want, 1e-9) {
		t.Errorf("before maturity value = %v, want %v (leg beta)", got, want)
	}

	// At maturity the leg beta is ignored.
	if got := ev.MarketValue(models.ScenarioPoint{Move: 0.1, Date: maturity}); !near(got, 2000, 1e-9) {
		t.Errorf("at maturity value = %v, want 2000 (beta 1)", got)
	}
}

func TestLegEvaluator_VolShock(t *testing.T) {
	leg := models.Leg{OptionType: models.Put, Strike: 100, Maturity: models.MustDate("2025-01-17"), Quantity: -1,
		VolShock: models.Float(0.5)}
	q := models.Quote{Mid: models.Float(4), ImpliedVol: 20, Vega: 10}

	ev, _ := NewLegEvaluator(leg, q, 100, nil)
	if !near(ev.AdjustedVol(), 0.3, tol) || ev.Shock() != 0.5 {
		t.Errorf("leg shock: vol = %v, shock = %v", ev.AdjustedVol(), ev.Shock())
	}
	if aq := ev.AdjustedQuote(); !near(aq.Vega, 15, tol) || !near(aq.ImpliedVol, 30, tol) {
		t.Errorf("AdjustedQuote() = %+v", aq)
	}

	term, _ := NewLegEvaluator(leg, q, 100, models.Float(-0.25))
	if !near(term.AdjustedVol(), 0.15, tol) {
		t.Errorf("term shock does not override leg shock: vol = %v", term.AdjustedVol())
	}
	if *leg.VolShock != 0.5 || q.ImpliedVol != 20 {
		t.Error("evaluator modified its inputs")
	}
}

func TestLegEvaluator_MissingPrice(t *testing.T) {
	leg := models.Leg{OptionType: models.Call, Strike: 100, Maturity: models.MustDate("2025-01-17"), Quantity: 1}
	_, err := NewLegEvaluator(leg, models.Quote{ImpliedVol: 20}, 100, nil)
	if !apperrors.Is(err, apperrors.ErrMissingPrice) {
		t.Errorf("NewLegEvaluator() error = %v, want ErrMissingPrice", err)
	}
}

func TestLegEvaluator_DeltaAfterMove(t *testing.T) {
	maturity := models.MustDate("2025-06-20")
	leg := models.Leg{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 1}
	ev, _ := NewLegEvaluator(leg, models.Quote{Mid: models.Float(8), ImpliedVol: 25}, 100, nil)

	d, n := ev.DeltaAfterMove(models.ScenarioPoint{Move: 0.5, Date: models.MustDate("2024-06-20")})
	if d <= 0.9 || d > 1 || !near(n, 150*100*d, 1e-6) {
		t.Errorf("deep ITM delta = %v, notional = %v", d, n)
	}
	if d, _ := ev.DeltaAfterMove(models.ScenarioPoint{Date: maturity}); !math.IsNaN(d) {
		t.Errorf("delta at maturity = %v, want NaN", d)
	}
}

func TestEquityProfit(t *testing.T) {
	got := EquityProfit(models.EquityPosition{Spot: 50, Quantity: 100}, 50, []float64{-0.1, 0, 0.1})
	want := []float64{-500, 0, 500}
	for i := range want {
		if !near(got[i], want[i], 1e-9) {
			t.Errorf("EquityProfit()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAggregator_ExcludesUnpricedLegs(t *testing.T) {
	maturity := models.MustDate("2024-06-21")
	legs := []models.Leg{
		{OptionType: models.Call, Strike: 105, Maturity: maturity, Quantity: 1, EntryQuote: models.Quote{Mid: models.Float(2)}},
		{Description: "SPY US 06/21/24 P95 Equity", OptionType: models.Put, Strike: 95, Maturity: maturity, Quantity: -1},
	}
	res, err := NewAggregator(nil, zerolog.Nop()).Aggregate(Input{
		Legs:  legs,
		Spot:  100,
		Grid:  []float64{-0.1, 0, 0.1},
		Dates: []time.Time{maturity},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(res.Legs) != 1 || len(res.Excluded) != 1 {
		t.Fatalf("legs = %d, excluded = %d", len(res.Legs), len(res.Excluded))
	}
	ex := res.Excluded[0]
	if ex.Index != 1 || ex.Leg != "SPY US 06/21/24 P95 Equity" || !apperrors.Is(ex, apperrors.ErrMissingPrice) {
		t.Errorf("excluded = %+v", ex)
	}

	curve, _ := res.Curve(maturity)
	want := []float64{-200, -200, 300}
	for i := range want {
		if !near(curve[i], want[i], 1e-9) {
			t.Errorf("curve[%d] = %v, want %v", i, curve[i], want[i])
		}
	}
	if res.ComputedTotal != 200 {
		t.Errorf("ComputedTotal = %v, want 200", res.ComputedTotal)
	}
}

func TestAggregator_Errors(t *testing.T) {
	maturity := models.MustDate("2024-06-21")
	unpriced := []models.Leg{{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 1}}
	priced := []models.Leg{{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 1,
		EntryQuote: models.Quote{Mid: models.Float(1)}}}
	agg := NewAggregator(nil, zerolog.Nop())

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"no usable legs", Input{Legs: unpriced, Spot: 100, Grid: []float64{0, 1}, Dates: []time.Time{maturity}}, apperrors.ErrNoUsableLegs},
		{"no legs", Input{Spot: 100, Grid: []float64{0, 1}, Dates: []time.Time{maturity}}, apperrors.ErrNoUsableLegs},
		{"short grid", Input{Legs: priced, Spot: 100, Grid: []float64{0}, Dates: []time.Time{maturity}}, apperrors.ErrInvalidIntervals},
		{"no dates", Input{Legs: priced, Spot: 100, Grid: []float64{0, 1}}, apperrors.ErrNoEvaluationDates},
		{"zero spot", Input{Legs: priced, Grid: []float64{0, 1}, Dates: []time.Time{maturity}}, apperrors.ErrInvalidSpot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := agg.Aggregate(tt.in)
			if res != nil || !apperrors.Is(err, tt.want) {
				t.Errorf("Aggregate() = %v, %v; want %v", res, err, tt.want)
			}
		})
	}

	_, err := agg.Aggregate(tests[0].in)
	if !apperrors.Is(err, apperrors.ErrMissingPrice) {
		t.Errorf("no-usable-legs error does not carry the leg cause: %v", err)
	}
}

func TestAggregator_CacheWinsOverLegQuote(t *testing.T) {
	maturity := models.MustDate("2024-06-21")
	leg := models.Leg{Description: "X US 06/21/24 C100 Equity", OptionType: models.Call, Strike: 100,
		Maturity: maturity, Quantity: 1, EntryQuote: models.Quote{Mid: models.Float(1)}}
	cache := mapCache{leg.Description: {Mid: models.Float(7), IVol: models.Float(30)}}

	res, err := NewAggregator(cache, zerolog.Nop()).Aggregate(Input{
		Legs: []models.Leg{leg}, Spot: 100, Grid: []float64{0, 0.1}, Dates: []time.Time{maturity},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if res.Legs[0].EntryPrice != 7 || res.Legs[0].Quote.ImpliedVol != 30 {
		t.Errorf("cached snapshot not used: %+v", res.Legs[0])
	}

	// A cached snapshot without a price falls back to the leg's own quote.
	cache[leg.Description] = models.Snapshot{IVol: models.Float(30)}
	res, _ = NewAggregator(cache, zerolog.Nop()).Aggregate(Input{
		Legs: []models.Leg{leg}, Spot: 100, Grid: []float64{0, 0.1}, Dates: []time.Time{maturity},
	})
	if res.Legs[0].EntryPrice != 1 {
		t.Errorf("EntryPrice = %v, want leg quote 1", res.Legs[0].EntryPrice)
	}
}

func testStrategy() models.Strategy {
	maturity := models.MustDate("2024-06-21")
	return models.Strategy{
		Ticker: "SPY",
		Spot:   100,
		Legs: []models.Leg{
			{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 2,
				EntryQuote: models.Quote{Mid: models.Float(3), ImpliedVol: 20, Delta: 0.5, Gamma: 0.02, Theta: -0.05, Vega: 0.1}},
			{OptionType: models.Call, Strike: 110, Maturity: maturity, Quantity: -4,
				EntryQuote: models.Quote{Mid: models.Float(1), ImpliedVol: 22, Delta: 0.2, Gamma: 0.01, Theta: -0.02, Vega: 0.05}},
		},
		Spec: models.ScenarioSpec{
			MinMove:         -0.2,
			MaxMove:         0.2,
			Intervals:       5,
			EvaluationDates: []time.Time{models.MustDate("2024-06-07")},
		},
	}
}

func TestEngine_Run(t *testing.T) {
	s := testStrategy()
	engine := NewEngine(nil, zerolog.Nop())

	res, err := engine.Run(s, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Dates) != 1 || len(res.Grid) != 5 {
		t.Fatalf("Run() dates = %v, grid = %v", res.Dates, res.Grid)
	}

	res, err = engine.Run(s, RunOptions{IncludeEarliestMaturity: true, Intervals: 9})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Dates) != 2 || models.DateKey(res.Dates[1]) != "2024-06-21" || len(res.Grid) != 9 {
		t.Fatalf("Run(earliest) dates = %v, grid = %d", res.Dates, len(res.Grid))
	}

	// Computed total: 2*3*100 - 4*1*100 = 200.
	s.Spec.PremiumOverride = models.Float(150)
	shifted, err := engine.Run(s, RunOptions{IncludeEarliestMaturity: true, Intervals: 9})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if shifted.Shift != 50 || shifted.NetPremium() != 150 {
		t.Errorf("Shift = %v, NetPremium = %v", shifted.Shift, shifted.NetPremium())
	}
	key := "2024-06-21"
	for i := range res.Curves[key] {
		if !near(shifted.Curves[key][i], res.Curves[key][i]+50, 1e-9) {
			t.Errorf("shifted[%d] = %v, want %v", i, shifted.Curves[key][i], res.Curves[key][i]+50)
		}
	}
	for i, v := range shifted.Legs[0].Curves[key] {
		if v != res.Legs[0].Curves[key][i] {
			t.Fatal("override shifted a per-leg curve")
		}
	}

	s.Spec.Intervals = 1
	if _, err := engine.Run(s, RunOptions{}); !apperrors.Is(err, apperrors.ErrInvalidIntervals) {
		t.Errorf("Run(1 interval) error = %v", err)
	}
}

func TestWithPremiumOverride_DoesNotMutate(t *testing.T) {
	r := &Result{ComputedTotal: 100, Curves: map[string][]float64{"d": {1, 2}}}
	out := r.WithPremiumOverride(models.Float(40))
	if r.Curves["d"][0] != 1 || r.Override != nil {
		t.Error("WithPremiumOverride modified the receiver")
	}
	if out.Curves["d"][0] != 61 || out.Shift != 60 {
		t.Errorf("out = %+v", out)
	}
	if again := out.WithPremiumOverride(nil); again.Shift != 0 || again.NetPremium() != 100 {
		t.Errorf("clearing override: %+v", again)
	}
}

func TestPayoutRatio(t *testing.T) {
	tests := []struct {
		name      string
		max       *float64
		premium   float64
		unlimited bool
		want      string
	}{
		{"integer", models.Float(600), 200, false, "3:1"},
		{"fractional", models.Float(500), 200, false, "2.5:1"},
		{"negative", models.Float(-150), 200, false, "NA"},
		{"negative integer", models.Float(-400), 200, false, "-2:1"},
		{"zero max", models.Float(0), 200, false, "0:1"},
		{"no premium", models.Float(100), 0, false, "-"},
		{"no curve", nil, 200, false, "-"},
		{"undefined max", models.Float(math.NaN()), 200, false, "-"},
		{"unlimited", models.Float(900), 200, true, "Unlimited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PayoutRatio(tt.max, tt.premium, tt.unlimited); got != tt.want {
				t.Errorf("PayoutRatio() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetPrice(t *testing.T) {
	tests := []struct {
		qtys   []int
		prices []float64
		want   float64
	}{
		{[]int{2, -4}, []float64{3, 1}, 1},
		{[]int{1}, []float64{2.35}, 2.35},
		{[]int{-3, 6, -3}, []float64{1.1, 2.2, 3.3}, -1.1 + 4.4 - 3.3},
		{nil, nil, 0},
	}
	for _, tt := range tests {
		if got := NetPrice(tt.qtys, tt.prices); !near(got, tt.want, 1e-12) {
			t.Errorf("NetPrice(%v, %v) = %v, want %v", tt.qtys, tt.prices, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := testStrategy()
	s.Legs = append(s.Legs, models.Leg{OptionType: models.Put, Strike: 90, Maturity: s.Legs[0].Maturity, Quantity: 1})

	res, err := NewEngine(nil, zerolog.Nop()).Run(s, RunOptions{IncludeEarliestMaturity: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	sum := Summarize(s, res)

	if len(sum.Lines) != 3 || !sum.Lines[2].Excluded || sum.Lines[1].Side != models.SideSell || sum.Lines[1].Quantity != 4 {
		t.Errorf("lines = %+v", sum.Lines)
	}
	if sum.NetPremium != 200 || sum.PremiumOverridden {
		t.Errorf("net premium = %v", sum.NetPremium)
	}
	// (2/2)*3 + (-4/2)*1 = 1
	if !near(sum.NetPrice, 1, 1e-12) {
		t.Errorf("net price = %v", sum.NetPrice)
	}
	// 0.5*200 + 0.2*(-400) = 20
	if !near(sum.Delta, 20, 1e-9) || !near(sum.DeltaNotional, 2000, 1e-6) {
		t.Errorf("delta = %v, notional = %v", sum.Delta, sum.DeltaNotional)
	}
	if models.DateKey(sum.PayoutDate) != "2024-06-21" || sum.MaxPnL == nil {
		t.Fatalf("payout date = %v, max = %v", sum.PayoutDate, sum.MaxPnL)
	}
	// Call spread 100/110 x2/-4 at maturity: max at +10% = 2000-200 = 1800; the
	// short side dominates above 110 so the curve falls off again.
	if !near(*sum.MaxPnL, 1800, 1e-6) || sum.Unlimited || sum.Payout != "9:1" {
		t.Errorf("max = %v, unlimited = %v, payout = %q", *sum.MaxPnL, sum.Unlimited, sum.Payout)
	}

	text := sum.String()
	for _, want := range []string{"SPY: 100.00", "SELL SPY 4 2024-06-21 110.00 Call @1.00", "(excluded)",
		"Net Premium: 200", "Net Payout (2024-06-21): 9:1", "Net Price: 1.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary text missing %q:\n%s", want, text)
		}
	}
}

func TestSummarize_PayoutUsesMaturityWhenNotShown(t *testing.T) {
	s := testStrategy()
	s.Legs[1].Quantity = -2

	res, err := NewEngine(nil, zerolog.Nop()).Run(s, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Dates) != 1 || models.DateKey(res.Dates[0]) != "2024-06-07" {
		t.Fatalf("dates = %v, want only the requested date", res.Dates)
	}
	if _, ok := res.Curve(models.MustDate("2024-06-21")); ok || len(res.Legs[0].Curves) != 1 {
		t.Error("maturity curve leaked into the shown dates")
	}

	sum := Summarize(s, res)
	if models.DateKey(sum.PayoutDate) != "2024-06-21" || sum.MaxPnL == nil {
		t.Fatalf("payout date = %v, max = %v", sum.PayoutDate, sum.MaxPnL)
	}
	// 100/110 call spread x2: net premium 2*3*100 - 2*1*100 = 400, capped at
	// 2*10*100 - 400 = 1600 above 110.
	if !near(*sum.MaxPnL, 1600, 1e-6) || sum.Unlimited || sum.Payout != "4:1" {
		t.Errorf("max = %v, unlimited = %v, payout = %q", *sum.MaxPnL, sum.Unlimited, sum.Payout)
	}
}

func TestSummarize_UndefinedCurve(t *testing.T) {
	s := testStrategy()
	r := &Result{
		Grid:          []float64{-0.1, 0, 0.1},
		ComputedTotal: 200,
		PayoutDate:    models.MustDate("2024-06-21"),
		PayoutCurve:   []float64{math.NaN(), math.NaN(), math.NaN()},
	}
	sum := Summarize(s, r)
	if sum.MaxPnL != nil || sum.Unlimited || sum.Payout != "-" {
		t.Errorf("max = %v, unlimited = %v, payout = %q", sum.MaxPnL, sum.Unlimited, sum.Payout)
	}
}

func TestSummarize_Unlimited(t *testing.T) {
	maturity := models.MustDate("2024-06-21")
	s := models.Strategy{
		Ticker: "QQQ",
		Spot:   100,
		Legs: []models.Leg{{OptionType: models.Call, Strike: 100, Maturity: maturity, Quantity: 1,
			EntryQuote: models.Quote{Mid: models.Float(2.5)}}},
		Spec: models.ScenarioSpec{MinMove: -0.1, MaxMove: 0.1, Intervals: 3, EvaluationDates: []time.Time{maturity}},
	}
	res, err := NewEngine(nil, zerolog.Nop()).Run(s, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	sum := Summarize(s, res)
	if !sum.Unlimited || sum.Payout != "Unlimited" {
		t.Errorf("long call payout = %q, unlimited = %v", sum.Payout, sum.Unlimited)
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		v      float64
		places int32
		want   string
	}{
		{1234567.891, 0, "1,234,568"},
		{-1234.5, 2, "-1,234.50"},
		{999, 0, "999"},
		{0, 2, "0.00"},
		{-0.4, 0, "0"},
		{math.NaN(), 0, "NaN"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.v, tt.places); got != tt.want {
			t.Errorf("groupThousands(%v, %d) = %q, want %q", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestChartSeries(t *testing.T) {
	d1, d2 := models.MustDate("2024-06-07"), models.MustDate("2024-06-21")
	r := &Result{
		Grid:   []float64{-0.1, 0, 0.1},
		Dates:  []time.Time{d1, d2},
		Curves: map[string][]float64{"2024-06-07": {1, 2, 3}, "2024-06-21": {4, 5, 6}},
	}
	s := ChartSeries(200, r)
	if !near(s.X[0], 180, tol) || s.X[1] != 200 || !near(s.X[2], 220, tol) {
		t.Errorf("X = %v", s.X)
	}
	if len(s.Labels) != 2 || s.Labels[0] != "2024-06-07" || s.Y["2024-06-21"][2] != 6 {
		t.Errorf("series = %+v", s)
	}
	s.Y["2024-06-07"][0] = 99
	if r.Curves["2024-06-07"][0] != 1 {
		t.Error("ChartSeries shares curve storage with the result")
	}
}
