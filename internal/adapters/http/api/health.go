package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/aireview/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// NamedCheck is one readiness probe.
type NamedCheck struct {
	Name  string
	Check CheckFunc
}

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	checks []NamedCheck
}

// NewHealthHandler creates a health handler running checks on /readyz.
func NewHealthHandler(checks ...NamedCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HandleHealth answers GET /healthz while the process is running.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady answers GET /readyz with 503 when any check fails.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"ready":  status == http.StatusOK,
		"checks": results,
	})
}

// MetricsHandler exposes the service registry in Prometheus format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
