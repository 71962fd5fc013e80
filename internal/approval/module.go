package approval

import (
	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/validator"
)

// Module is the approval workflow bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the approval module around svc.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "approval" }

// RegisterRoutes mounts the branch-head and agent routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	bh := ctx.Protected
	bh.GET("/bh_approval_leads", m.handler.requireReviewer(ActionView), m.handler.HandleListWaiting)
	bh.POST("/bh_approve_lead", m.handler.requireReviewer(ActionApprove), m.handler.HandleApprove)
	bh.POST("/bh_reject_lead", m.handler.requireReviewer(ActionReject), m.handler.HandleReject)
	bh.GET("/bh_lead_details", m.handler.requireReviewer(ActionView), m.handler.HandleLeadDetails)

	agents := ctx.Protected.Group("")
	agents.Use(httpkit.RequireRole(httpkit.RolePS, httpkit.RoleCRE, httpkit.RoleAdmin))
	agents.POST("/submit_for_approval", m.handler.HandleSubmit)
	agents.POST("/update_follow_up", m.handler.HandleUpdateFollowUp)
	agents.GET("/ps_rejected_leads", m.handler.HandleListRejected)
}

var _ apphttp.Module = (*Module)(nil)
