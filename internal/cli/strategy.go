package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"optpnl/internal/marketdata"
	"optpnl/internal/models"
	"optpnl/internal/strategy"
)

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Inspect strategy documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <strategy.json>",
		Short: "Check a strategy document for errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			doc, err := strategy.Load(args[0])
			if err != nil {
				return err
			}

			verr := strategy.Validate(doc)
			problems := splitErrors(verr)
			if output.IsJSON() {
				msgs := make([]string, 0, len(problems))
				for _, p := range problems {
					msgs = append(msgs, p.Error())
				}
				if err := output.JSON(map[string]interface{}{"valid": verr == nil, "errors": msgs}); err != nil {
					return err
				}
				return verr
			}

			if verr == nil {
				output.Success("%s is valid (%d legs)", args[0], len(doc.Legs))
				return nil
			}
			for _, p := range problems {
				output.Error("  %v", p)
			}
			return fmt.Errorf("%s: %d problems", args[0], len(problems))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <strategy.json>",
		Short: "Show the legs and scenario of a strategy",
		Long: `Show the legs and scenario of a strategy as they will be evaluated,
using the saved equity price and strikes. No market data is fetched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			doc, err := strategy.Load(args[0])
			if err != nil {
				return err
			}
			s, err := strategy.Build(doc, strategy.BuildOptions{Defaults: app.Defaults()})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(s)
			}
			showStrategy(output, s)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template <strategy.json>",
		Short: "Write an example put spread strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := strategy.Save(args[0], exampleStrategy(time.Now())); err != nil {
				return err
			}
			output.Success("Wrote %s", args[0])
			output.Dim("Edit the ticker, dates and legs, then run: optpnl run %s", args[0])
			return nil
		},
	})

	return cmd
}

// exampleStrategy is a one-by-two put spread expiring about a month after now.
func exampleStrategy(now time.Time) *strategy.Document {
	expiry := models.Day(now).AddDate(0, 1, 0)
	for expiry.Weekday() != time.Friday {
		expiry = expiry.AddDate(0, 0, 1)
	}
	mid := models.Day(now).AddDate(0, 0, 14)
	return &strategy.Document{
		Mode:   "pnl",
		Ticker: "SPY US Equity",
		Max:    "10%",
		Min:    "-10%",
		Price:  "500",
		Qty:    "0",
		Dates:  []string{models.DateKey(mid), models.DateKey(expiry)},
		Legs: []strategy.LegDoc{
			{Type: "Put", Maturity: models.DateKey(expiry), Qty: "1", StrikeMode: strategy.StrikeModePctOTM, PctOTM: "2%", Root: "SPY"},
			{Type: "Put", Maturity: models.DateKey(expiry), Qty: "-2", StrikeMode: strategy.StrikeModePctOTM, PctOTM: "5%", Root: "SPY"},
		},
	}
}

func showStrategy(output *Output, s models.Strategy) {
	output.Bold("%s @ %s", s.Ticker, FormatMoney(s.Spot, 2))
	if s.Equity.Quantity != 0 {
		output.Printf("  Equity: %s shares\n", FormatMoney(s.Equity.Quantity, 0))
	}
	output.Println()

	t := NewTable(output, "#", "Contract", "Side", "Qty", "Strike", "Maturity", "Bid", "Mid", "Ask", "Vol shock").
		AlignRight(0, 3, 4, 6, 7, 8, 9)
	for i, leg := range s.Legs {
		shock := "-"
		if leg.VolShock != nil {
			shock = strategy.FormatPercent(*leg.VolShock)
		}
		t.AddRow(
			fmt.Sprintf("%d", i+1),
			leg.Key(),
			string(leg.Side()),
			fmt.Sprintf("%d", leg.Quantity),
			marketdata.FormatStrike(leg.Strike),
			models.DateKey(leg.Maturity),
			FormatOptional(leg.EntryQuote.Bid),
			FormatOptional(leg.EntryQuote.Mid),
			FormatOptional(leg.EntryQuote.Ask),
			shock,
		)
	}
	t.Render()
	output.Println()

	spec := s.Spec
	output.Bold("Scenario")
	output.Printf("  Moves:      %s to %s in %d steps\n", FormatMove(spec.MinMove), FormatMove(spec.MaxMove), spec.Intervals)
	dates := make([]string, 0, len(spec.EvaluationDates))
	for _, d := range spec.EvaluationDates {
		dates = append(dates, models.DateKey(d))
	}
	if len(dates) == 0 {
		dates = append(dates, "(maturities only)")
	}
	output.Printf("  Dates:      %s\n", strings.Join(dates, ", "))
	if spec.TermVolShock != nil {
		output.Printf("  Term shock: %s\n", strategy.FormatPercent(*spec.TermVolShock))
	}
	if spec.PremiumOverride != nil {
		output.Printf("  Override:   %s\n", FormatMoney(*spec.PremiumOverride, 0))
	}
}

// splitErrors flattens a joined error into its parts.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
