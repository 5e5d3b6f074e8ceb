package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/marketdata"
	"optpnl/internal/models"
	"optpnl/internal/pricing"
	"optpnl/internal/strategy"
)

func newQuoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote resolution and snapshot lookups",
	}
	cmd.AddCommand(newQuoteResolveCmd())
	cmd.AddCommand(newQuoteSnapshotCmd(app))
	return cmd
}

func newQuoteResolveCmd() *cobra.Command {
	var bid, mid, ask, side string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Fill in a partial bid/mid/ask and show the execution price",
		Long: `Fill in a partial bid/mid/ask triple and show the directional
execution price. Leave a flag out to mark the field as missing.`,
		Example: `  optpnl quote resolve --ask 1.20 --side buy
  optpnl quote resolve --bid 0.95 --ask 1.05 --side sell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			isBuy, err := parseSide(side)
			if err != nil {
				return err
			}
			b, err := optionalPrice("bid", bid)
			if err != nil {
				return err
			}
			m, err := optionalPrice("mid", mid)
			if err != nil {
				return err
			}
			a, err := optionalPrice("ask", ask)
			if err != nil {
				return err
			}

			res, err := pricing.ResolveQuote(b, m, a, isBuy)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"bid":   res.Bid,
					"mid":   res.Mid,
					"ask":   res.Ask,
					"price": res.Price,
					"side":  res.Side,
					"steps": res.Steps,
				})
			}

			t := NewTable(output, "Field", "Input", "Resolved").AlignRight(1, 2)
			t.AddRow("Bid", FormatOptional(b), FormatOptional(res.Bid))
			t.AddRow("Mid", FormatOptional(m), FormatOptional(res.Mid))
			t.AddRow("Ask", FormatOptional(a), FormatOptional(res.Ask))
			t.Render()
			output.Println()
			output.Bold("%s price: %s", res.Side, FormatPrice(res.Price))
			for _, s := range res.Steps {
				output.Printf("  %s %s\n", output.SourceTag(SourceCalc), s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bid, "bid", "", "bid price")
	cmd.Flags().StringVar(&mid, "mid", "", "mid price")
	cmd.Flags().StringVar(&ask, "ask", "", "ask price")
	cmd.Flags().StringVar(&side, "side", "buy", "trade direction: buy or sell")
	return cmd
}

func newQuoteSnapshotCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "snapshot <security>",
		Short:   "Fetch the raw snapshot of one option",
		Example: `  optpnl quote snapshot "SPY US 12/20/24 P540 Equity"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			provider, err := app.Provider()
			if err != nil {
				return err
			}
			snap, err := provider.OptionSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(snap)
			}

			tag := output.SourceTag(strings.ToUpper(provider.Name()))
			output.Bold("%s %s", args[0], tag)
			t := NewTable(output, "Field", "Value").AlignRight(1)
			t.AddRow("Bid", FormatOptional(snap.Bid))
			t.AddRow("Mid", FormatOptional(snap.Mid))
			t.AddRow("Ask", FormatOptional(snap.Ask))
			t.AddRow("Implied vol %", FormatOptional(snap.IVol))
			t.AddRow("Delta", FormatOptional(snap.Delta))
			t.AddRow("Gamma", FormatOptional(snap.Gamma))
			t.AddRow("Vega", FormatOptional(snap.Vega))
			t.AddRow("Theta", FormatOptional(snap.Theta))
			t.AddRow("Finance rate %", FormatOptional(snap.FinanceRate))
			t.AddRow("Dividend yield %", FormatOptional(snap.DivYield))
			t.Render()
			return nil
		},
	}
}

func parseSide(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "long":
		return true, nil
	case "sell", "s", "short":
		return false, nil
	}
	return false, apperrors.NewValidationError("side", s, "must be buy or sell")
}

// optionalPrice parses a flag value; an empty value is a missing price.
func optionalPrice(field, s string) (*float64, error) {
	v, ok, err := strategy.ParseNumber(strategy.Text(s))
	if err != nil {
		return nil, apperrors.NewValidationError(field, s, "must be a number")
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func newChainCmd(app *App) *cobra.Command {
	var maturity string
	var right string

	cmd := &cobra.Command{
		Use:   "chain <underlying>",
		Short: "List the option chain of an underlying",
		Long: `List the option chain of an underlying.

Without --maturity the listed maturities are shown with their strike counts.
With --maturity the strikes of that expiry are listed and the one nearest the
current equity price is marked ATM.`,
		Example: `  optpnl chain SPY
  optpnl chain SPY --maturity 2024-12-20 --right P`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			underlying := args[0]

			provider, err := app.Provider()
			if err != nil {
				return err
			}
			descs, err := provider.OptionChain(ctx, underlying)
			if err != nil {
				return err
			}
			chain := marketdata.ParseChainDescriptions(descs)
			if chain.Len() == 0 {
				return apperrors.NewDataError("chain", underlying, "no listed options", apperrors.ErrSymbolNotFound)
			}

			if maturity == "" {
				return listMaturities(output, underlying, chain)
			}
			if len(chain.Rights(maturity)) == 0 {
				return apperrors.NewValidationError("maturity", maturity, "not listed for "+underlying)
			}

			spot, err := provider.EquityMid(ctx, underlying)
			if err != nil {
				app.Logger.Warn().Err(err).Str("ticker", underlying).Msg("No equity price, ATM not marked")
				spot = 0
			}
			return listStrikes(output, chain, maturity, strings.ToUpper(right), spot)
		},
	}

	cmd.Flags().StringVar(&maturity, "maturity", "", "expiry to list strikes for (YYYY-MM-DD)")
	cmd.Flags().StringVar(&right, "right", "", "C or P (default: both)")
	return cmd
}

func listMaturities(output *Output, underlying string, chain *marketdata.Chain) error {
	if output.IsJSON() {
		return output.JSON(chain.Entries())
	}

	output.Bold("%s option chain", underlying)
	t := NewTable(output, "Maturity", "Calls", "Puts").AlignRight(1, 2)
	for _, mat := range chain.Maturities() {
		t.AddRow(mat,
			fmt.Sprintf("%d", len(chain.Strikes(mat, "C"))),
			fmt.Sprintf("%d", len(chain.Strikes(mat, "P"))))
	}
	t.Render()
	return nil
}

func listStrikes(output *Output, chain *marketdata.Chain, maturity, right string, spot float64) error {
	rights := chain.Rights(maturity)
	if right != "" {
		rights = []string{right}
	}

	if output.IsJSON() {
		var entries []models.ChainEntry
		for _, e := range chain.Entries() {
			if models.DateKey(e.Maturity) != maturity || (right != "" && e.Right != right) {
				continue
			}
			entries = append(entries, e)
		}
		return output.JSON(entries)
	}

	for _, r := range rights {
		strikes := chain.Strikes(maturity, r)
		atm, hasATM := 0.0, false
		if spot > 0 {
			atm, hasATM = marketdata.AtTheMoney(strikes, spot)
		}

		output.Bold("%s %s", maturity, r)
		t := NewTable(output, "Strike", "%OTM", "Roots", "").AlignRight(0, 1)
		for _, k := range strikes {
			otm := ""
			if spot > 0 {
				otm = fmt.Sprintf("%+.1f%%", marketdata.PctOTMFromStrike(spot, k))
			}
			mark := ""
			if hasATM && k == atm {
				mark = output.Yellow("ATM")
			}
			t.AddRow(marketdata.FormatStrike(k), otm, strings.Join(chain.Roots(maturity, r, k), ","), mark)
		}
		t.Render()
		output.Println()
	}
	return nil
}
