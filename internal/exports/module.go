package exports

import (
	apphttp "leadcrm_backend/internal/http"
)

// Module is the exports module implementing http.Module.
type Module struct {
	handler *Handler
	svc     *Service
}

// NewModule creates the exports module.
func NewModule(svc *Service) *Module {
	return &Module{handler: NewHandler(svc), svc: svc}
}

// Service exposes the daily report job to the scheduler.
func (m *Module) Service() *Service { return m.svc }

// Name returns the module identifier.
func (m *Module) Name() string {
	return "exports"
}

// RegisterRoutes mounts export routes on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Admin.Group("/exports")
	g.GET("/:report", m.handler.HandleExport)
	g.POST("/daily_report", m.handler.HandleRunDaily)
}

var _ apphttp.Module = (*Module)(nil)
