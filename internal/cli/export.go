package cli

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"optpnl/internal/models"
	"optpnl/internal/scenario"
)

// RunReport is the JSON rendering of one scenario run.
type RunReport struct {
	RunID         string               `json:"run_id,omitempty"`
	Ticker        string               `json:"ticker"`
	Spot          float64              `json:"spot"`
	Grid          []float64            `json:"grid"`
	Underlying    []float64            `json:"underlying"`
	Dates         []string             `json:"dates"`
	Curves        map[string][]float64 `json:"curves"`
	Legs          []LegReport          `json:"legs"`
	Excluded      []ExcludedLeg        `json:"excluded,omitempty"`
	ComputedTotal float64              `json:"computed_total"`
	Override      *float64             `json:"override,omitempty"`
	Shift         float64              `json:"shift"`
	Summary       SummaryReport        `json:"summary"`
}

// LegReport is one usable leg of a run.
type LegReport struct {
	Index      int                  `json:"index"`
	Key        string               `json:"key"`
	Side       models.Side          `json:"side"`
	Quantity   int                  `json:"quantity"`
	EntryPrice float64              `json:"entry_price"`
	EntryCost  float64              `json:"entry_cost"`
	VolShock   float64              `json:"vol_shock"`
	Steps      []string             `json:"steps,omitempty"`
	Curves     map[string][]float64 `json:"curves"`
}

// ExcludedLeg is a leg left out of a run.
type ExcludedLeg struct {
	Index  int    `json:"index"`
	Leg    string `json:"leg"`
	Reason string `json:"reason"`
}

// SummaryReport mirrors scenario.Summary for JSON output.
type SummaryReport struct {
	NetPremium    float64  `json:"net_premium"`
	NetPrice      float64  `json:"net_price"`
	Payout        string   `json:"payout"`
	PayoutDate    string   `json:"payout_date,omitempty"`
	MaxPnL        *float64 `json:"max_pnl,omitempty"`
	Delta         float64  `json:"delta"`
	Gamma         float64  `json:"gamma"`
	Theta         float64  `json:"theta"`
	Vega          float64  `json:"vega"`
	DeltaNotional float64  `json:"delta_notional"`
	GammaNotional float64  `json:"gamma_notional"`
}

// NewRunReport assembles the JSON view of a run.
func NewRunReport(runID string, s models.Strategy, r *scenario.Result, sum scenario.Summary) RunReport {
	series := scenario.ChartSeries(s.Spot, r)
	rep := RunReport{
		RunID:         runID,
		Ticker:        s.Ticker,
		Spot:          s.Spot,
		Grid:          r.Grid,
		Underlying:    series.X,
		Dates:         series.Labels,
		Curves:        series.Y,
		ComputedTotal: r.ComputedTotal,
		Override:      r.Override,
		Shift:         r.Shift,
		Summary: SummaryReport{
			NetPremium:    sum.NetPremium,
			NetPrice:      sum.NetPrice,
			Payout:        sum.Payout,
			MaxPnL:        sum.MaxPnL,
			Delta:         sum.Delta,
			Gamma:         sum.Gamma,
			Theta:         sum.Theta,
			Vega:          sum.Vega,
			DeltaNotional: sum.DeltaNotional,
			GammaNotional: sum.GammaNotional,
		},
	}
	if !sum.PayoutDate.IsZero() {
		rep.Summary.PayoutDate = models.DateKey(sum.PayoutDate)
	}
	for _, lc := range r.Legs {
		rep.Legs = append(rep.Legs, LegReport{
			Index:      lc.Index,
			Key:        lc.Leg.Key(),
			Side:       lc.Leg.Side(),
			Quantity:   lc.Leg.Quantity,
			EntryPrice: lc.EntryPrice,
			EntryCost:  lc.EntryCost,
			VolShock:   lc.Shock,
			Steps:      lc.Steps,
			Curves:     lc.Curves,
		})
	}
	for _, le := range r.Excluded {
		rep.Excluded = append(rep.Excluded, ExcludedLeg{Index: le.Index, Leg: le.Leg, Reason: le.Err.Error()})
	}
	return rep
}

// WriteCSV writes the portfolio curves in long format:
// date, move, underlying, pnl.
func WriteCSV(w io.Writer, spot float64, r *scenario.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "move", "underlying", "pnl"}); err != nil {
		return err
	}

	series := scenario.ChartSeries(spot, r)
	for _, label := range series.Labels {
		ys := series.Y[label]
		for i, move := range r.Grid {
			record := []string{
				label,
				strconv.FormatFloat(move, 'f', 6, 64),
				strconv.FormatFloat(series.X[i], 'f', 4, 64),
				strconv.FormatFloat(ys[i], 'f', 2, 64),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderTable prints the portfolio curves with one row per grid point and
// one column per date.
func RenderTable(o *Output, spot float64, r *scenario.Result) {
	series := scenario.ChartSeries(spot, r)
	headers := append([]string{"Move", "Underlying"}, series.Labels...)
	t := NewTable(o, headers...)
	cols := make([]int, 0, len(headers)-1)
	for i := 1; i < len(headers); i++ {
		cols = append(cols, i)
	}
	t.AlignRight(cols...)

	for i, move := range r.Grid {
		row := []string{FormatMove(move), FormatMoney(series.X[i], 2)}
		for _, label := range series.Labels {
			row = append(row, o.PnL(series.Y[label][i]))
		}
		t.AddRow(row...)
	}
	t.Render()
}

// RenderSummary prints the position summary panel.
func RenderSummary(o *Output, sum scenario.Summary, elapsed time.Duration) {
	lines := strings.Split(sum.String(), "\n")
	if elapsed > 0 {
		lines = append(lines, "", o.DimText("Computed in "+FormatDuration(elapsed)))
	}
	o.Box("Position Summary", lines)
}
