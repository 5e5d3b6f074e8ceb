package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetryWithResult(t *testing.T) {
	errFlaky := errors.New("flaky")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		cfg       RetryConfig
		failFirst int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"first try", fastRetry(3), 0, errFlaky, 1, nil},
		{"recovers", fastRetry(3), 2, errFlaky, 3, nil},
		{"exhausted", fastRetry(3), 5, errFlaky, 3, errFlaky},
		{"zero attempts still calls once", fastRetry(0), 5, errFlaky, 1, errFlaky},
		{"not retryable", func() RetryConfig {
			c := fastRetry(5)
			c.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }
			return c
		}(), 5, errFatal, 1, errFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			v, err := RetryWithResult(context.Background(), tt.cfg, func() (string, error) {
				calls++
				if calls <= tt.failFirst {
					return "", tt.err
				}
				return "ok", nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && v != "ok") {
				t.Errorf("RetryWithResult() = %q, %v; want err %v", v, err, tt.wantErr)
			}
		})
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour, BackoffFactor: 2}

	calls := 0
	err := Retry(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("Retry() = %v after %d calls", err, calls)
	}
}

// Property: backoff never exceeds the cap and never shrinks between attempts.
func TestProperty_BackoffBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("monotone and capped", prop.ForAll(
		func(initialMs, maxMs int, factor float64) bool {
			initial := time.Duration(initialMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			prev := time.Duration(0)
			for attempt := 0; attempt < 12; attempt++ {
				d := CalculateBackoff(attempt, initial, max, factor)
				if d > max || d < prev {
					return false
				}
				prev = d
			}
			return CalculateBackoff(0, initial, max, factor) == minDuration(initial, max)
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1000, 60000),
		gen.Float64Range(0.5, 4),
	))

	properties.TestingRun(t)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
