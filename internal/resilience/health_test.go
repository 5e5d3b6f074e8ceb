package resilience

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunHealthChecks_WorstStatusWins(t *testing.T) {
	ctx := context.Background()
	healthy := DatabaseHealthCheck(func(context.Context) error { return nil })
	down := APIHealthCheck("kite", func(context.Context) error { return errUpstream })

	sys := RunHealthChecks(ctx, healthy)
	if !sys.Healthy() || len(sys.Components) != 1 {
		t.Fatalf("single healthy check = %+v", sys)
	}

	sys = RunHealthChecks(ctx, healthy, down)
	if sys.Status != HealthStatusUnhealthy || sys.Healthy() {
		t.Errorf("status = %s", sys.Status)
	}
	if c := sys.Components[1]; c.Name != "kite" || !strings.Contains(c.Message, errUpstream.Error()) {
		t.Errorf("failing component = %+v", c)
	}

	if sys := RunHealthChecks(ctx); sys.Status != HealthStatusUnknown {
		t.Errorf("no checks = %s", sys.Status)
	}
}

func TestRunHealthChecks_RecoversPanics(t *testing.T) {
	boom := func(context.Context) ComponentHealth { panic("nil provider") }
	sys := RunHealthChecks(context.Background(), boom)
	if sys.Status != HealthStatusUnhealthy {
		t.Fatalf("status = %s", sys.Status)
	}
	if !strings.Contains(sys.Components[0].Message, "nil provider") {
		t.Errorf("message = %q", sys.Components[0].Message)
	}
}

func TestDatabaseHealthCheck_Slow(t *testing.T) {
	slow := DatabaseHealthCheck(func(context.Context) error {
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	if h := slow(context.Background()); h.Status != HealthStatusDegraded {
		t.Errorf("slow database = %s (%s)", h.Status, h.Message)
	}
}

func TestCircuitBreakerHealthCheck(t *testing.T) {
	cb, _ := newTestBreaker(1)
	check := CircuitBreakerHealthCheck(cb)
	ctx := context.Background()

	if h := check(ctx); h.Status != HealthStatusHealthy || h.Name != "breaker:test" {
		t.Errorf("closed breaker = %+v", h)
	}

	_ = cb.Execute(ctx, func() error { return errUpstream })
	h := check(ctx)
	if h.Status != HealthStatusUnhealthy {
		t.Errorf("open breaker = %s", h.Status)
	}
	if h.Details["failures"] != int64(1) {
		t.Errorf("details = %v", h.Details)
	}

	cb.mu.Lock()
	cb.transitionTo(CircuitHalfOpen)
	cb.mu.Unlock()
	if h := check(ctx); h.Status != HealthStatusDegraded {
		t.Errorf("half-open breaker = %s", h.Status)
	}
}
