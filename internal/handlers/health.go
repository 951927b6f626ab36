package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthChecker handles health check requests
type HealthChecker struct {
	db    Pinger
	redis Pinger
}

// NewHealthChecker creates a new health checker. redis may be nil when the transport
// limiter keeps its counters in memory.
func NewHealthChecker(db Pinger, redis Pinger) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = map[string]string{
			"database": h.check(r.Context(), h.db),
			"redis":    h.check(r.Context(), h.redis),
		}
		for _, v := range response.Checks {
			if v == "unhealthy" {
				response.Status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// check pings p with a short deadline. Error details are not exposed.
func (h *HealthChecker) check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.PingContext(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// Version is stamped at build time with -ldflags "-X .../handlers.Version=...".
var Version = "dev"

// VersionInfo handles the /version endpoint
func VersionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
