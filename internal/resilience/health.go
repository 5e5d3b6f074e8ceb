package resilience

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// severity orders statuses from best to worst.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	case HealthStatusUnknown:
		return 2
	}
	return 3
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the outcome of one round of checks. Status is the worst
// component status.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

// Healthy reports whether every component is healthy.
func (h SystemHealth) Healthy() bool {
	return h.Status == HealthStatusHealthy
}

// RunHealthChecks runs checks in order. A check that panics is reported as
// unhealthy instead of taking the caller down.
func RunHealthChecks(ctx context.Context, checks ...HealthCheck) SystemHealth {
	sys := SystemHealth{Status: HealthStatusHealthy, CheckedAt: time.Now()}
	if len(checks) == 0 {
		sys.Status = HealthStatusUnknown
		return sys
	}
	for _, check := range checks {
		h := runCheck(ctx, check)
		if h.Status.severity() > sys.Status.severity() {
			sys.Status = h.Status
		}
		sys.Components = append(sys.Components, h)
	}
	return sys
}

func runCheck(ctx context.Context, check HealthCheck) (health ComponentHealth) {
	defer func() {
		if r := recover(); r != nil {
			health = ComponentHealth{
				Name:      health.Name,
				Status:    HealthStatusUnhealthy,
				Message:   fmt.Sprintf("check panicked: %v", r),
				LastCheck: time.Now(),
			}
		}
	}()
	return check(ctx)
}

// DatabaseHealthCheck creates a health check for the snapshot database.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{
			Name:      "database",
			LastCheck: time.Now(),
		}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Database ping failed: %v", err)
			return health
		}

		if health.Latency > 100*time.Millisecond {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Database healthy: %v", health.Latency)
		return health
	}
}

// APIHealthCheck creates a health check for a market-data provider. check
// performs one representative call.
func APIHealthCheck(name string, check func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{
			Name:      name,
			LastCheck: time.Now(),
		}

		start := time.Now()
		err := check(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("API check failed: %v", err)
			return health
		}

		if health.Latency > 2*time.Second {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("API slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("API healthy: %v", health.Latency)
		return health
	}
}

// CircuitBreakerHealthCheck reports the breaker state: open is unhealthy,
// half-open degraded.
func CircuitBreakerHealthCheck(cb *CircuitBreaker) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := cb.Stats()
		health := ComponentHealth{
			Name:      "breaker:" + stats.Name,
			LastCheck: time.Now(),
			Details: map[string]interface{}{
				"state":    stats.State,
				"requests": stats.TotalRequests,
				"failures": stats.TotalFailures,
				"rejected": stats.TotalRejected,
			},
		}

		switch stats.State {
		case CircuitOpen:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Circuit open since %s", stats.LastFailureTime.Format(time.TimeOnly))
		case CircuitHalfOpen:
			health.Status = HealthStatusDegraded
			health.Message = "Circuit probing"
		default:
			health.Status = HealthStatusHealthy
			health.Message = fmt.Sprintf("Circuit closed (%d/%d failed)", stats.TotalFailures, stats.TotalRequests)
		}
		return health
	}
}
