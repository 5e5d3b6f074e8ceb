package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/logging"
	"optpnl/internal/models"
	"optpnl/internal/pricing"
)

// RefreshReport summarises one refresh.
type RefreshReport struct {
	// Spot is the refreshed equity mid, or the strategy's own spot when the
	// equity request failed.
	Spot      float64
	SpotErr   error
	Refreshed []string
	Failed    []*apperrors.LegError
	Duration  time.Duration
}

// Refresher pulls fresh snapshots for every leg of a strategy into a Cache.
type Refresher struct {
	provider    Provider
	cache       *Cache
	concurrency int
	logger      zerolog.Logger
}

// NewRefresher creates a refresher issuing at most concurrency requests at once.
func NewRefresher(provider Provider, cache *Cache, concurrency int, logger zerolog.Logger) *Refresher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Refresher{
		provider:    provider,
		cache:       cache,
		concurrency: concurrency,
		logger:      logging.WithOperation(logger, "refresh"),
	}
}

// Refresh fetches the equity mid and all leg snapshots. A failed leg is
// reported and leaves its cached snapshot untouched; only cancellation of ctx
// aborts the refresh. Snapshots without any price are not cached, so a manual
// price on the leg keeps working.
func (r *Refresher) Refresh(ctx context.Context, s models.Strategy) (RefreshReport, error) {
	start := time.Now()
	report := RefreshReport{Spot: s.Spot}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	g.Go(func() error {
		px, err := r.provider.EquityMid(gctx, s.Ticker)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.SpotErr = err
			r.logger.Warn().Err(err).Str("ticker", s.Ticker).Msg("Equity price refresh failed")
			return nil
		}
		report.Spot = px
		return nil
	})

	seen := make(map[string]bool, len(s.Legs))
	for i, leg := range s.Legs {
		i, key := i, leg.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		g.Go(func() error {
			err := r.refreshOne(gctx, key)
			if err == nil {
				mu.Lock()
				report.Refreshed = append(report.Refreshed, key)
				mu.Unlock()
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			legLog := logging.WithLeg(r.logger, i, key)
			legLog.Warn().Err(err).Msg("Snapshot refresh failed")
			mu.Lock()
			report.Failed = append(report.Failed, apperrors.NewLegError(i, key, err))
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	report.Duration = time.Since(start)
	sort.Strings(report.Refreshed)
	sort.Slice(report.Failed, func(a, b int) bool { return report.Failed[a].Index < report.Failed[b].Index })
	if err != nil {
		return report, apperrors.Wrap(err, "refresh cancelled")
	}

	r.logger.Info().
		Int("refreshed", len(report.Refreshed)).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Snapshots refreshed")
	return report, nil
}

func (r *Refresher) refreshOne(ctx context.Context, key string) error {
	raw, err := r.provider.OptionSnapshot(ctx, key)
	if err != nil {
		return err
	}
	snap, err := NormalizeSnapshot(raw)
	if err != nil {
		return err
	}
	// A failed write-through is logged by the cache; the memory copy is usable.
	_ = r.cache.Put(ctx, key, snap)
	return nil
}

// NormalizeSnapshot returns a copy of raw with bid, mid and ask completed by
// the quote resolver. raw is not modified.
func NormalizeSnapshot(raw models.Snapshot) (models.Snapshot, error) {
	snap := raw.Clone()
	b, m, a, err := pricing.NormalizeQuote(snap.Bid, snap.Mid, snap.Ask)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Bid, snap.Mid, snap.Ask = b, m, a
	return snap, nil
}
