package controllers

import (
	"net/http"

	"github.com/rzbill/linelog/internal/runtime"
)

// GeneralController handles health and stats endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Device statistics (/v1/stats)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/stats", c.handleStats)
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStats returns device occupancy and counters, plus archive totals
// when the archive is enabled.
func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	st, err := c.rt.Device().Stats(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	resp := map[string]any{"device": st}
	if a := c.rt.Archive(); a != nil {
		resp["archive"] = map[string]any{"count": a.Count(), "dropped": a.Dropped()}
	}
	writeJSON(w, resp)
}
