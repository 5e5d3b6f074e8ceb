package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"optpnl/internal/marketdata"
	"optpnl/internal/resilience"
)

func newStatusCmd(app *App) *cobra.Command {
	var ticker string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the cache database and market-data provider",
		Long: `Check that the cache database answers and that the configured provider
can price the probe ticker. Exits non-zero when a component is unhealthy.`,
		Example: `  optpnl status
  optpnl status --ticker "NIFTY 50"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			health := resilience.RunHealthChecks(cmd.Context(), app.healthChecks(ticker)...)

			if output.IsJSON() {
				if err := output.JSON(health); err != nil {
					return err
				}
			} else {
				renderHealth(output, health)
			}
			if health.Status == resilience.HealthStatusUnhealthy {
				return fmt.Errorf("status %s", strings.ToLower(string(health.Status)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "SPY US Equity", "equity priced to probe the provider")
	return cmd
}

// healthChecks lists the checks for the configured components. The provider
// probe runs before the breaker check so the breaker reflects it.
func (a *App) healthChecks(ticker string) []resilience.HealthCheck {
	var checks []resilience.HealthCheck

	switch {
	case a.Store != nil:
		checks = append(checks, resilience.DatabaseHealthCheck(a.Store.Ping))
	case a.Config.Cache.Enabled:
		checks = append(checks, failedCheck("database", fmt.Errorf("could not open %s", a.Config.Cache.Path)))
	}

	p, err := a.Provider()
	if err != nil {
		return append(checks, failedCheck(a.Config.Provider.Kind, err))
	}
	checks = append(checks, resilience.APIHealthCheck(p.Name(), func(ctx context.Context) error {
		_, err := p.EquityMid(ctx, ticker)
		return err
	}))
	if rp, ok := p.(*marketdata.ResilientProvider); ok {
		checks = append(checks, resilience.CircuitBreakerHealthCheck(rp.Breaker()))
	}
	return checks
}

func failedCheck(name string, err error) resilience.HealthCheck {
	return func(context.Context) resilience.ComponentHealth {
		return resilience.ComponentHealth{
			Name:      name,
			Status:    resilience.HealthStatusUnhealthy,
			Message:   err.Error(),
			LastCheck: time.Now(),
		}
	}
}

func renderHealth(output *Output, health resilience.SystemHealth) {
	t := NewTable(output, "Component", "Status", "Latency", "Message").AlignRight(2)
	for _, c := range health.Components {
		latency := "-"
		if c.Latency > 0 {
			latency = FormatDuration(c.Latency)
		}
		t.AddRow(c.Name, statusText(output, c.Status), latency, TruncateString(c.Message, 60))
	}
	t.Render()
	output.Println()
	output.Printf("Overall: %s\n", statusText(output, health.Status))
}

func statusText(output *Output, s resilience.HealthStatus) string {
	switch s {
	case resilience.HealthStatusHealthy:
		return output.Green(string(s))
	case resilience.HealthStatusDegraded:
		return output.Yellow(string(s))
	case resilience.HealthStatusUnhealthy:
		return output.Red(string(s))
	}
	return output.DimText(string(s))
}
