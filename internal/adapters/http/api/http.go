// Package api serves the operational HTTP surface: liveness, readiness,
// Prometheus metrics and service statistics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/aireview/internal/domain/model"
)

// JobStatsProvider aggregates stored reviews per job.
type JobStatsProvider interface {
	JobStats(ctx context.Context, jobID string) (model.JobStats, error)
}

// Server wires the ops routes.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a server. jobs may be nil, which disables /stats/jobs.
func NewServer(stats StatsProvider, jobs JobStatsProvider, checks ...NamedCheck) *Server {
	return &Server{
		healthHandler: NewHealthHandler(checks...),
		statsHandler:  NewStatsHandler(stats, jobs),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /stats/jobs/{jobID}", MetricsMiddleware(s.statsHandler.HandleJobStats, "job_stats"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
