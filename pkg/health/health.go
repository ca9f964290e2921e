// Package health serves liveness, readiness and dependency health endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Status represents the health status
type Status string

// Health statuses
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// DatabasePinger is satisfied by *sqlx.DB.
type DatabasePinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger is satisfied by *redis.Client from pkg/redis.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// Checker provides health check functionality
type Checker struct {
	db        DatabasePinger
	cache     CachePinger
	startTime time.Time
	version   string

	mu    sync.RWMutex
	ready bool
}

// NewChecker builds a checker. cache may be nil: Redis only backs rate limiting and the
// scheduler lease, so its absence degrades the service instead of failing it.
func NewChecker(db DatabasePinger, cache CachePinger, version string) *Checker {
	return &Checker{
		db:        db,
		cache:     cache,
		startTime: time.Now(),
		version:   version,
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler returns 200 while the process is running
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     c.uptime(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler returns 200 once the service is ready and its dependencies respond
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is starting or shutting down"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler returns a detailed health check
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.runChecks(ctx.Request().Context())
	overall := overallStatus(checks)

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     c.uptime(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

func (c *Checker) uptime() string {
	return time.Since(c.startTime).Round(time.Second).String()
}

func (c *Checker) runChecks(ctx context.Context) map[string]CheckResult {
	checks := map[string]CheckResult{
		"database": ping(ctx, c.db != nil, func(ctx context.Context) error { return c.db.PingContext(ctx) }, StatusUnhealthy),
	}
	if c.cache == nil {
		checks["redis"] = CheckResult{Status: StatusDegraded, Message: "redis not configured"}
	} else {
		checks["redis"] = ping(ctx, true, c.cache.Ping, StatusDegraded)
	}
	return checks
}

func ping(ctx context.Context, configured bool, fn func(context.Context) error, failure Status) CheckResult {
	if !configured {
		return CheckResult{Status: failure, Message: "not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return CheckResult{Status: failure, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func overallStatus(checks map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// RegisterRoutes mounts the endpoints under /api/v1/health.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")
	health.GET("", c.HealthHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
