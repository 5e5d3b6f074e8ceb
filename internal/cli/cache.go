package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
	"optpnl/internal/store"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the snapshot cache",
		Long:  "List, invalidate and clear the option snapshots cached between runs.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			infos, err := app.Store.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(infos)
			}
			if len(infos) == 0 {
				output.Info("Cache is empty")
				return nil
			}

			maxAge := app.Config.Cache.MaxAge
			t := NewTable(output, "Security", "Bid", "Mid", "Ask", "IVol %", "Updated").AlignRight(1, 2, 3, 4)
			for _, info := range infos {
				updated := FormatDateTime(info.UpdatedAt)
				if maxAge > 0 && info.UpdatedAt.Add(maxAge).Before(time.Now()) {
					updated = output.Yellow(updated + " (stale)")
				}
				t.AddRow(
					TruncateString(info.Key, 40),
					FormatOptional(info.Snapshot.Bid),
					FormatOptional(info.Snapshot.Mid),
					FormatOptional(info.Snapshot.Ask),
					FormatOptional(info.Snapshot.IVol),
					updated,
				)
			}
			t.Render()
			output.Dim("%d snapshots", len(infos))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <security>",
		Short: "Drop one cached snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			if err := app.Cache().Invalidate(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"invalidated": args[0]})
			}
			output.Success("Invalidated %s", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			if err := app.Cache().Clear(cmd.Context()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"cleared": true})
			}
			output.Success("Snapshot cache cleared")
			return nil
		},
	})

	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	var (
		ticker string
		since  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past scenario runs",
		Example: `  optpnl history
  optpnl history --ticker SPY --since 2024-06-01
  optpnl history show 5b0c7c1e-3f0e-4a55-9a8e-1f2d3c4b5a69`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}

			filter := store.RunFilter{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Limit: limit}
			if since != "" {
				t, err := models.ParseDate(since)
				if err != nil {
					return apperrors.NewValidationError("since", since, "must be YYYY-MM-DD")
				}
				filter.Since = t
			}

			runs, err := app.Store.GetRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Info("No runs recorded")
				return nil
			}

			t := NewTable(output, "ID", "When", "Ticker", "Spot", "Legs", "Premium", "Max P&L", "Payout").AlignRight(3, 4, 5, 6)
			for _, r := range runs {
				legs := fmt.Sprintf("%d", r.Legs)
				if r.Excluded > 0 {
					legs = fmt.Sprintf("%d (-%d)", r.Legs-r.Excluded, r.Excluded)
				}
				maxPnL := "-"
				if r.MaxPnL != nil {
					maxPnL = output.PnL(*r.MaxPnL)
				}
				t.AddRow(
					shortID(r.ID),
					FormatDateTime(r.CreatedAt),
					r.Ticker,
					FormatMoney(r.Spot, 2),
					legs,
					FormatMoney(r.NetPremium, 0),
					maxPnL,
					r.Payout,
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "only runs of this ticker")
	cmd.Flags().StringVar(&since, "since", "", "only runs on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			run, err := findRun(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(run)
			}

			lines := []string{
				fmt.Sprintf("Ticker:         %s @ %s %s", run.Ticker, FormatMoney(run.Spot, 2), output.SourceTag(run.Source)),
				fmt.Sprintf("Recorded:       %s", FormatDateTime(run.CreatedAt)),
				fmt.Sprintf("Legs:           %d (%d excluded)", run.Legs, run.Excluded),
				fmt.Sprintf("Grid points:    %d", run.Intervals),
				fmt.Sprintf("Dates:          %s", strings.Join(run.Dates, ", ")),
				fmt.Sprintf("Computed total: %s", FormatMoney(run.ComputedTotal, 0)),
				fmt.Sprintf("Net premium:    %s", FormatMoney(run.NetPremium, 0)),
			}
			if run.Override != nil {
				lines = append(lines, fmt.Sprintf("Override:       %s", FormatMoney(*run.Override, 0)))
			}
			if run.MaxPnL != nil {
				lines = append(lines, fmt.Sprintf("Max P&L:        %s", output.PnL(*run.MaxPnL)))
			}
			lines = append(lines, fmt.Sprintf("Payout:         %s", run.Payout))
			output.Box("Run "+run.ID, lines)
			return nil
		},
	})

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findRun looks a run up by its full ID or by the short prefix the history
// table shows.
func findRun(ctx context.Context, st store.DataStore, id string) (*store.RunRecord, error) {
	run, err := st.GetRun(ctx, id)
	if err == nil {
		return run, nil
	}
	runs, lerr := st.GetRuns(ctx, store.RunFilter{})
	if lerr != nil {
		return nil, err
	}
	var match *store.RunRecord
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, apperrors.NewValidationError("id", id, "matches more than one run")
		}
		match = &runs[i]
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}
