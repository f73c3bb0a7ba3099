package api

import (
	"net/http"
	"time"

	"github.com/ignite/audience-sync/internal/pkg/httputil"
)

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthCheck probes the database and Redis. Nil dependencies report
// "not_configured" without degrading overall status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status: "healthy",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Checks: make(map[string]ComponentCheck),
	}

	if h.db != nil {
		start := time.Now()
		if err := h.db.PingContext(r.Context()); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = ComponentCheck{Status: "down", Message: err.Error()}
		} else {
			status.Checks["database"] = ComponentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	} else {
		status.Checks["database"] = ComponentCheck{Status: "not_configured"}
	}

	if h.redis != nil {
		start := time.Now()
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			status.Status = "degraded"
			status.Checks["redis"] = ComponentCheck{Status: "down", Message: err.Error()}
		} else {
			status.Checks["redis"] = ComponentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	} else {
		status.Checks["redis"] = ComponentCheck{Status: "not_configured"}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, status)
}
