package controllers

import (
	"net/http"

	"github.com/rzbill/linelog/internal/archive"
	"github.com/rzbill/linelog/internal/runtime"
)

// ArchiveController lists records released by the device.
type ArchiveController struct {
	rt *runtime.Runtime
}

// NewArchiveController creates an archive controller.
func NewArchiveController(rt *runtime.Runtime) *ArchiveController {
	return &ArchiveController{rt: rt}
}

// RegisterRoutes registers archive routes with the given mux.
func (c *ArchiveController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/archive", c.handleList)
}

// handleList returns archived records; limit defaults to 100.
func (c *ArchiveController) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	a := c.rt.Archive()
	if a == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	q := r.URL.Query()
	limit := parseLimit(q.Get("limit"))
	if limit == 0 {
		limit = 100
	}
	entries, err := a.List(archive.ListOptions{Limit: limit, Reverse: parseBool(q.Get("reverse"))})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list archive")
		return
	}
	resp := archiveResp{Entries: make([]archiveEntryJSON, 0, len(entries)), Count: a.Count(), Dropped: a.Dropped()}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, archiveEntryJSON{
			ID:         e.ID,
			Reason:     string(e.Reason),
			ReleasedAt: e.ReleasedAt,
			Size:       len(e.Data),
			Payload:    e.Data,
		})
	}
	writeJSON(w, resp)
}
