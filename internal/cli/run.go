package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/logging"
	"optpnl/internal/marketdata"
	"optpnl/internal/models"
	"optpnl/internal/scenario"
	"optpnl/internal/store"
	"optpnl/internal/strategy"
)

// Output formats of the run command.
const (
	FormatTable = "table"
	FormatChart = "chart"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

type runFlags struct {
	offline   bool
	format    string
	earliest  bool
	intervals int
	out       string
	save      bool
	steps     bool
}

func newRunCmd(app *App) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <strategy.json>",
		Short: "Evaluate a strategy across the scenario grid",
		Long: `Evaluate a strategy across the scenario grid.

Snapshots for every leg are refreshed from the configured provider (unless
--offline), then the P&L of each evaluation date is computed over the grid of
underlying moves. Legs without a usable price are reported and left out.`,
		Example: `  optpnl run spy_put_spread.json
  optpnl run spy_put_spread.json --format chart --earliest
  optpnl run spy_put_spread.json --offline --format csv --out pnl.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmd, app, args[0], f)
		},
	}

	cmd.Flags().BoolVar(&f.offline, "offline", false, "skip the refresh and use cached or saved snapshots")
	cmd.Flags().StringVarP(&f.format, "format", "f", FormatTable, "output format: table, chart, json, csv")
	cmd.Flags().BoolVar(&f.earliest, "earliest", false, "also evaluate the earliest leg maturity")
	cmd.Flags().IntVar(&f.intervals, "intervals", 0, "number of grid points (overrides the strategy)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().BoolVar(&f.save, "save", false, "write refreshed price and snapshots back to the strategy file")
	cmd.Flags().BoolVar(&f.steps, "steps", false, "show how each leg price was resolved")

	return cmd
}

func runStrategy(cmd *cobra.Command, app *App, path string, f runFlags) error {
	ctx := cmd.Context()
	start := time.Now()

	switch f.format {
	case FormatTable, FormatChart, FormatJSON, FormatCSV:
	default:
		return apperrors.NewValidationError("format", f.format, "must be table, chart, json or csv")
	}
	if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
		f.format = FormatJSON
	}

	doc, err := strategy.Load(path)
	if err != nil {
		return err
	}
	if err := strategy.Validate(doc); err != nil {
		return err
	}

	logger := logging.WithTicker(logging.FromContext(ctx), doc.Ticker)
	cache := app.Cache()
	source := SourceCache

	var provider marketdata.Provider
	if !f.offline {
		provider, err = app.Provider()
		if err != nil {
			return err
		}
		source = strings.ToUpper(provider.Name())
	}

	opts := strategy.BuildOptions{Defaults: app.Defaults()}
	if provider != nil {
		opts.Spot = refreshSpot(ctx, app, provider, doc.Ticker)
		opts.Chain = loadChain(ctx, app, provider, doc)
	}

	s, err := strategy.Build(doc, opts)
	if err != nil {
		return err
	}

	var report marketdata.RefreshReport
	if provider != nil {
		r := marketdata.NewRefresher(provider, cache, app.Config.Provider.Concurrency, logger)
		report, err = r.Refresh(ctx, s)
		if err != nil {
			return err
		}
	}

	engine := scenario.NewEngine(cache, logger)
	res, err := engine.Run(s, scenario.RunOptions{
		IncludeEarliestMaturity: f.earliest || app.Config.Scenario.ShowEarliestMaturity,
		Intervals:               runIntervals(f.intervals, s.Spec.Intervals),
	})
	if err != nil {
		return err
	}
	sum := scenario.Summarize(s, res)

	runID := saveRun(ctx, app, s, res, sum, source)
	logging.LogRun(logger, runID, s.Ticker, len(s.Legs), len(res.Excluded), len(res.Dates), time.Since(start))

	if f.save && provider != nil {
		if err := saveSnapshots(path, doc, s, cache); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", f.out, err)
		}
		defer file.Close()
		w = file
	}

	if err := renderRun(cmd, w, f, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight, runID, s, res, sum, report, time.Since(start)); err != nil {
		return err
	}
	if f.out != "" {
		NewOutput(cmd).Success("Wrote %s", f.out)
	}
	return nil
}

func refreshSpot(ctx context.Context, app *App, provider marketdata.Provider, ticker string) float64 {
	px, err := provider.EquityMid(ctx, ticker)
	if err != nil {
		app.Logger.Warn().Err(err).Str("ticker", ticker).Msg("Using saved equity price")
		return 0
	}
	return px
}

// loadChain fetches the option chain when a leg needs strike snapping or a
// description. Failures are logged and the legs fall back to saved strikes.
func loadChain(ctx context.Context, app *App, provider marketdata.Provider, doc *strategy.Document) *marketdata.Chain {
	need := false
	for _, l := range doc.Legs {
		if l.Mode() == strategy.StrikeModePctOTM || strings.TrimSpace(l.Description) == "" {
			need = true
			break
		}
	}
	if !need {
		return nil
	}
	descs, err := provider.OptionChain(ctx, doc.Ticker)
	if err != nil {
		app.Logger.Warn().Err(err).Str("ticker", doc.Ticker).Msg("Option chain unavailable")
		return nil
	}
	return marketdata.ParseChainDescriptions(descs)
}

func saveRun(ctx context.Context, app *App, s models.Strategy, res *scenario.Result, sum scenario.Summary, source string) string {
	if app.Store == nil {
		return ""
	}
	rec := &store.RunRecord{
		Ticker:        s.Ticker,
		Source:        source,
		Spot:          s.Spot,
		Legs:          len(s.Legs),
		Excluded:      len(res.Excluded),
		Intervals:     len(res.Grid),
		ComputedTotal: res.ComputedTotal,
		NetPremium:    sum.NetPremium,
		Override:      res.Override,
		MaxPnL:        sum.MaxPnL,
		Payout:        sum.Payout,
	}
	for _, d := range res.Dates {
		rec.Dates = append(rec.Dates, models.DateKey(d))
	}
	if err := app.Store.SaveRun(ctx, rec); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to record run")
		return ""
	}
	return rec.ID
}

func saveSnapshots(path string, doc *strategy.Document, s models.Strategy, cache *marketdata.Cache) error {
	keys := make([]string, len(s.Legs))
	snaps := make([]*models.Snapshot, len(s.Legs))
	for i, leg := range s.Legs {
		keys[i] = leg.Description
		if snap, ok := cache.Get(leg.Key()); ok {
			snaps[i] = &snap
		}
	}
	doc.Record(s.Spot, keys, snaps)
	return strategy.Save(path, doc)
}

// runIntervals picks the grid size for a run: the flag when set, else the
// strategy's, never below the display floor.
func runIntervals(flag, doc int) int {
	n := doc
	if flag > 0 {
		n = flag
	}
	return scenario.ClampIntervals(n)
}

func renderRun(cmd *cobra.Command, w io.Writer, f runFlags, chartWidth, chartHeight int, runID string, s models.Strategy, res *scenario.Result, sum scenario.Summary, report marketdata.RefreshReport, elapsed time.Duration) error {
	switch f.format {
	case FormatJSON:
		return newPlainOutput(w).JSON(NewRunReport(runID, s, res, sum))
	case FormatCSV:
		return WriteCSV(w, s.Spot, res)
	}

	o := NewOutput(cmd)
	if w != cmd.OutOrStdout() {
		o = newPlainOutput(w)
	}

	if len(report.Refreshed) > 0 || len(report.Failed) > 0 {
		o.Dim("Refreshed %d snapshots in %s", len(report.Refreshed), FormatDuration(report.Duration))
	}
	for _, le := range report.Failed {
		o.Warning("Refresh failed for leg %d (%s): %v", le.Index+1, le.Leg, le.Err)
	}
	for _, le := range res.Excluded {
		o.Warning("Excluded leg %d (%s): %v", le.Index+1, le.Leg, le.Err)
	}
	if res.Override != nil {
		o.Info("Premium override %s (computed %s, shift %s)",
			FormatMoney(*res.Override, 0), FormatMoney(res.ComputedTotal, 0), FormatMoney(res.Shift, 0))
	}

	if f.steps {
		for _, lc := range res.Legs {
			o.Bold("Leg %d %s", lc.Index+1, lc.Leg.Key())
			for _, step := range lc.Steps {
				o.Printf("  %s %s\n", o.SourceTag(SourceCalc), step)
			}
		}
		o.Println()
	}

	switch f.format {
	case FormatChart:
		RenderChart(o, scenario.ChartSeries(s.Spot, res), s.Spot, chartWidth, chartHeight)
	default:
		RenderTable(o, s.Spot, res)
	}
	o.Println()
	RenderSummary(o, sum, elapsed)
	return nil
}
