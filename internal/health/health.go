package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/logger"
)

// Status grades a component or the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

// ComponentStatus is one subsystem's verdict.
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the full health check payload.
type Response struct {
	Status     Status             `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	Components []*ComponentStatus `json:"components"`
}

// Pinger is the database surface the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports live websocket connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Checker runs the component checks behind the /health endpoint.
type Checker struct {
	db        Pinger
	hub       ConnectionCounter
	cfg       *config.Config
	log       *zap.Logger
	startTime time.Time
	version   string
}

func NewChecker(db Pinger, hub ConnectionCounter, cfg *config.Config, version string) *Checker {
	return &Checker{
		db:        db,
		hub:       hub,
		cfg:       cfg,
		log:       logger.New("health"),
		startTime: time.Now(),
		version:   version,
	}
}

// Check runs every component check and aggregates the result.
func (c *Checker) Check(ctx context.Context) *Response {
	components := []*ComponentStatus{
		c.checkDatabase(ctx),
		c.checkConnections(),
		c.checkMemory(),
	}

	return &Response{
		Status:     overallStatus(components),
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		Uptime:     formatUptime(time.Since(c.startTime)),
		Components: components,
	}
}

func (c *Checker) checkDatabase(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{Name: "database"}
	if err := c.db.Ping(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "database ping failed"
		status.Details = map[string]any{"error": err.Error()}
		return status
	}
	status.Status = StatusHealthy
	status.Message = "database reachable"
	return status
}

func (c *Checker) checkConnections() *ComponentStatus {
	status := &ComponentStatus{Name: "connections", Details: map[string]any{}}

	count := c.hub.ConnectionCount()
	max := c.cfg.Server.Throttling.MaxConnections
	if max <= 0 {
		max = 1000
	}
	utilization := float64(count) / float64(max) * 100

	status.Details["active_connections"] = count
	status.Details["max_connections"] = max
	status.Details["utilization_percent"] = utilization

	switch {
	case utilization > 95:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("connection limit nearly exhausted: %d/%d", count, max)
	case utilization > 80:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("high connection utilization: %d/%d", count, max)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("connection count normal: %d/%d", count, max)
	}
	return status
}

func (c *Checker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := &ComponentStatus{Name: "memory", Details: map[string]any{}}

	allocMB := float64(m.Alloc) / 1024 / 1024
	status.Details["alloc_mb"] = allocMB
	status.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	status.Details["num_gc"] = m.NumGC
	status.Details["goroutines"] = runtime.NumGoroutine()

	const (
		memoryWarningMB  = 500
		memoryCriticalMB = 1000
	)
	switch {
	case allocMB > memoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("high memory usage: %.1f MB", allocMB)
	case allocMB > memoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("memory usage normal: %.1f MB", allocMB)
	}
	return status
}

func overallStatus(components []*ComponentStatus) Status {
	result := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			result = StatusDegraded
		}
	}
	return result
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Handler serves /health. With ?ready=1 the status code reflects readiness;
// otherwise a degraded service still answers 200.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		resp := c.Check(ctx)

		statusCode := http.StatusOK
		if resp.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			c.log.Error("failed to encode health response", zap.Error(err))
		}
	}
}
