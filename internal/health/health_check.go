// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthCheck manages health check functionality.
type HealthCheck struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthCheck creates a new HealthCheck instance. checks maps a component
// name (e.g. "database") to its pinger.
func NewHealthCheck(checks map[string]Pinger, timeout time.Duration, logger *zap.Logger) *HealthCheck {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthCheck{
		checks:  checks,
		timeout: timeout,
		logger:  logger,
	}
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Errors []string          `json:"errors,omitempty"`
}

// LivenessHandler handles GET /health/live requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /health/ready requests.
// Returns 200 OK only when every dependency answers a ping.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := hc.Check(r.Context())

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Check pings every dependency concurrently.
func (hc *HealthCheck) Check(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		resp = ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(hc.checks))}
	)
	for name, p := range hc.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			err := p.Ping(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				hc.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
				resp.Status = "not_ready"
				resp.Checks[name] = "unhealthy"
				resp.Errors = append(resp.Errors, name+": "+err.Error())
				return
			}
			resp.Checks[name] = "healthy"
		}(name, p)
	}
	wg.Wait()

	sort.Strings(resp.Errors)
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
