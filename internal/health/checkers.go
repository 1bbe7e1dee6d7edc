package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/geosentry/citation-engine/internal/circuitbreaker"
)

// DatabaseHealthChecker checks PostgreSQL connectivity for the Storage
// Layer, grounded on the teacher's DatabaseHealthChecker (same file):
// circuit-breaker short-circuit first, then PingContext, then a
// latency-based degraded threshold, with latency_ms in the result Details.
// Connection-pool usage is not checked.
type DatabaseHealthChecker struct {
	wrapper *circuitbreaker.DatabaseWrapper
	logger  *zap.Logger
	timeout time.Duration
}

func NewDatabaseHealthChecker(wrapper *circuitbreaker.DatabaseWrapper, logger *zap.Logger) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (d *DatabaseHealthChecker) Name() string           { return "database" }
func (d *DatabaseHealthChecker) IsCritical() bool       { return true }
func (d *DatabaseHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "database", Critical: true, Timestamp: start}

	if d.wrapper != nil && d.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "database circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := d.wrapper.PingContext(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "database ping failed"
		return result
	}

	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "database responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "database healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// RedisHealthChecker checks the Redis instance backing platform locking
// (internal/platformlock), grounded on
// the teacher's RedisHealthChecker (same file): circuit-breaker
// short-circuit, then Ping, then a latency-based degraded threshold.
type RedisHealthChecker struct {
	client  redis.UniversalClient
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

func NewRedisHealthChecker(c redis.UniversalClient, wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisHealthChecker {
	return &RedisHealthChecker{client: c, wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return true }
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: true, Timestamp: start}

	if r.wrapper != nil && r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "redis circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := r.client.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "redis ping failed"
		return result
	}

	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// TemporalHealthChecker checks the Temporal frontend service the Task
// Engine's workflow/activity worker depends on, grounded on the teacher's
// AgentCoreHealthChecker (same file) — a critical gRPC-backed
// dependency health check done via the client's own health RPC rather than
// a raw TCP probe.
type TemporalHealthChecker struct {
	client  client.Client
	logger  *zap.Logger
	timeout time.Duration
}

func NewTemporalHealthChecker(c client.Client, logger *zap.Logger) *TemporalHealthChecker {
	return &TemporalHealthChecker{client: c, logger: logger, timeout: 5 * time.Second}
}

func (t *TemporalHealthChecker) Name() string           { return "temporal" }
func (t *TemporalHealthChecker) IsCritical() bool       { return true }
func (t *TemporalHealthChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "temporal", Critical: true, Timestamp: start}

	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "temporal frontend health check failed"
		return result
	}

	if result.Duration > 200*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "temporal responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "temporal healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}
