package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/aireview/internal/domain/model"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	jobs          JobStatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, jobs JobStatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, jobs: jobs}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

// HandleJobStats handles GET /stats/jobs/{jobID} requests.
func (h *StatsHandler) HandleJobStats(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotFound, "not_found", ErrNotConfigured)
		return
	}
	jobID := strings.TrimSpace(r.PathValue("jobID"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	stats, err := h.jobs.JobStats(r.Context(), jobID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}
