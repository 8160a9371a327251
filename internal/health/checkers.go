package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/pause"
)

// RedisChecker checks Redis connectivity through the circuit-breaker wrapper.
type RedisChecker struct {
	rdb     *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(rdb *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisChecker {
	return &RedisChecker{
		rdb:     rdb,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Component: "redis",
		Critical:  true,
		Timestamp: start,
	}

	if r.rdb.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := r.rdb.Ping(ctx).Err()
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{
		"latency_ms": result.Duration.Milliseconds(),
	}
	return result
}

// CoordinatorChecker reports on the pause coordinator: whether it is enabled
// and how stale its cache is relative to the resync interval.
type CoordinatorChecker struct {
	coord          *pause.Coordinator
	resyncInterval time.Duration
	timeout        time.Duration
}

// NewCoordinatorChecker creates a pause coordinator health checker.
func NewCoordinatorChecker(coord *pause.Coordinator, resyncInterval time.Duration) *CoordinatorChecker {
	return &CoordinatorChecker{
		coord:          coord,
		resyncInterval: resyncInterval,
		timeout:        time.Second,
	}
}

func (c *CoordinatorChecker) Name() string           { return "pause-coordinator" }
func (c *CoordinatorChecker) IsCritical() bool       { return false }
func (c *CoordinatorChecker) Timeout() time.Duration { return c.timeout }

func (c *CoordinatorChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Component: "pause-coordinator",
		Timestamp: start,
	}

	if !c.coord.Enabled() {
		result.Status = StatusHealthy
		result.Message = "Pause coordination disabled"
		result.Duration = time.Since(start)
		return result
	}

	last := c.coord.LastResync()
	age := time.Since(last)
	result.Details = map[string]interface{}{
		"cached_paused_queues": len(c.coord.CachedPaused()),
		"last_resync_age_ms":   age.Milliseconds(),
	}

	switch {
	case last.IsZero():
		result.Status = StatusDegraded
		result.Message = "No resync has completed yet"
	case age > 3*c.resyncInterval:
		result.Status = StatusDegraded
		result.Message = "Pause cache is stale; resyncs are failing"
	default:
		result.Status = StatusHealthy
		result.Message = "Pause coordinator healthy"
	}
	result.Duration = time.Since(start)
	return result
}
