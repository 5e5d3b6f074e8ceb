package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/logging"
	"optpnl/internal/models"
	"optpnl/internal/resilience"
	"optpnl/pkg/utils"
)

// ResilienceConfig tunes ResilientProvider.
type ResilienceConfig struct {
	Retry   utils.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	// Timeout bounds each individual call; zero means no per-call timeout.
	Timeout time.Duration
}

// DefaultResilienceConfig returns retry and breaker settings suited to a
// rate-limited quote API.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Retry:   utils.DefaultRetryConfig(),
		Breaker: resilience.DefaultCircuitBreakerConfig(),
		Timeout: 10 * time.Second,
	}
}

// ResilientProvider retries transient provider failures with backoff and stops
// calling a provider that keeps failing. Retrying happens only here; the
// engine itself never retries.
type ResilientProvider struct {
	inner   Provider
	cfg     ResilienceConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewResilientProvider wraps inner.
func NewResilientProvider(inner Provider, cfg ResilienceConfig, logger zerolog.Logger) *ResilientProvider {
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = IsTransient
	}
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = IsTransient
	}
	return &ResilientProvider{
		inner:   inner,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(inner.Name(), cfg.Breaker),
		logger:  logger.With().Str("provider", inner.Name()).Logger(),
	}
}

// IsTransient reports whether err may go away on retry. Unknown securities,
// bad input, missing credentials and an open circuit are permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case apperrors.Is(err, apperrors.ErrSnapshotNotFound),
		apperrors.Is(err, apperrors.ErrSymbolNotFound),
		apperrors.Is(err, apperrors.ErrNotAuthenticated),
		apperrors.Is(err, apperrors.ErrInputValidation),
		apperrors.Is(err, resilience.ErrCircuitOpen),
		apperrors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Name implements Provider.
func (r *ResilientProvider) Name() string { return r.inner.Name() }

// Breaker exposes the circuit breaker for status reporting.
func (r *ResilientProvider) Breaker() *resilience.CircuitBreaker { return r.breaker }

func call[T any](r *ResilientProvider, ctx context.Context, what string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	return utils.RetryWithResult(ctx, r.cfg.Retry, func() (T, error) {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		defer cancel()

		start := time.Now()
		v, err := resilience.ExecuteWithResult(r.breaker, callCtx, func() (T, error) {
			return fn(callCtx)
		})
		logging.LogAPICall(r.logger.With().Int("attempt", attempt).Logger(), what, r.inner.Name(), time.Since(start), err)
		return v, err
	})
}

// OptionSnapshot implements Provider.
func (r *ResilientProvider) OptionSnapshot(ctx context.Context, security string) (models.Snapshot, error) {
	return call(r, ctx, "option_snapshot", func(c context.Context) (models.Snapshot, error) {
		return r.inner.OptionSnapshot(c, security)
	})
}

// EquityMid implements Provider.
func (r *ResilientProvider) EquityMid(ctx context.Context, ticker string) (float64, error) {
	return call(r, ctx, "equity_mid", func(c context.Context) (float64, error) {
		return r.inner.EquityMid(c, ticker)
	})
}

// OptionChain implements Provider.
func (r *ResilientProvider) OptionChain(ctx context.Context, underlying string) ([]string, error) {
	return call(r, ctx, "option_chain", func(c context.Context) ([]string, error) {
		return r.inner.OptionChain(c, underlying)
	})
}
