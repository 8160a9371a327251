// Package health exposes liveness and dependency checks over HTTP.
package health

import (
	"context"
	"time"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult captures one checker's verdict.
type CheckResult struct {
	Component string                 `json:"component"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Critical  bool                   `json:"critical"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration_ns"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Checker is a single component health check.
type Checker interface {
	Name() string
	IsCritical() bool
	Timeout() time.Duration
	Check(ctx context.Context) CheckResult
}
