package controllers

import (
	"net/http"

	"github.com/rzbill/linelog/internal/runtime"
	"github.com/rzbill/linelog/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	device  *DeviceController
	archive *ArchiveController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		device:  NewDeviceController(rt, logger),
		archive: NewArchiveController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.device.RegisterRoutes(mux)
	r.archive.RegisterRoutes(mux)
}
