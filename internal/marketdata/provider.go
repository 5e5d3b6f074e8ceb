// Package marketdata fetches option snapshots, equity prices and option chains
// from a market-data provider and keeps a normalised snapshot cache.
package marketdata

import (
	"context"

	"optpnl/internal/models"
)

// Provider is a source of market data. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// OptionSnapshot returns the raw snapshot of one option, identified by its
	// security description (e.g. "VXX US 08/15/25 C25 Equity").
	OptionSnapshot(ctx context.Context, security string) (models.Snapshot, error)
	// EquityMid returns the mid price of an equity.
	EquityMid(ctx context.Context, ticker string) (float64, error)
	// OptionChain returns the security descriptions of every listed option on
	// the underlying.
	OptionChain(ctx context.Context, underlying string) ([]string, error)
}
