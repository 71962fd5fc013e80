package autoassign

import (
	"context"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/validator"
)

// TriggerHeader carries the shared trigger token.
const TriggerHeader = "X-Trigger-Token"

// Module is the distributor bounded context implementing http.Module.
type Module struct {
	service      *Service
	handler      *Handler
	triggerToken string
	limiter      *httpkit.IPRateLimiter
}

// NewModule wires the distributor around an existing service.
func NewModule(svc *Service, val *validator.Validator, triggerToken string, log *logger.Logger) *Module {
	return &Module{
		service:      svc,
		handler:      NewHandler(svc, val),
		triggerToken: triggerToken,
		limiter:      httpkit.NewTriggerRateLimiter(log),
	}
}

// Service returns the distributor service for the schedulers.
func (m *Module) Service() *Service { return m.service }

// Name returns the module identifier.
func (m *Module) Name() string { return "autoassign" }

// RegisterRoutes mounts the trigger, statistics and admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.API.GET("/auto_assign_trigger",
		m.limiter.RateLimit(),
		httpkit.SharedToken(m.triggerToken, TriggerHeader),
		m.handler.HandleTrigger,
	)

	stats := ctx.Protected.Group("/auto_assign")
	stats.Use(httpkit.RequireRole(httpkit.RoleAdmin))
	stats.GET("/agents", m.handler.HandleAgents)
	stats.GET("/sources", m.handler.HandleSources)
	stats.GET("/summary", m.handler.HandleSummary)

	admin := ctx.Admin.Group("/auto_assign")
	admin.GET("/configs", m.handler.HandleListConfigs)
	admin.PUT("/configs/:source", m.handler.HandleReplaceConfig)
	admin.POST("/reset_counts", m.handler.HandleResetCounts)
	admin.GET("/history", m.handler.HandleHistory)
	admin.POST("/history/purge", m.handler.HandlePurgeHistory)
	admin.GET("/system/status", m.handler.HandleSystemStatus)
	admin.GET("/system/health", m.handler.HandleSystemHealth)
	admin.GET("/system/statistics", m.handler.HandleSystemStatistics)
	admin.POST("/system/clear_errors", m.handler.HandleClearErrors)
}

// StatusFields reports the distributor state on /api/status.
func (m *Module) StatusFields(ctx context.Context) map[string]any {
	status, err := m.service.Tracker().Status(ctx)
	if err != nil {
		return map[string]any{"auto_assign": map[string]any{"error": "status unavailable"}}
	}
	health := m.service.Tracker().Health(status)
	return map[string]any{
		"auto_assign": map[string]any{
			"is_running":    status.IsRunning,
			"mode":          status.Mode,
			"last_run":      status.LastRun,
			"next_run":      status.NextRun,
			"health_status": health.Status,
		},
	}
}

var (
	_ apphttp.Module         = (*Module)(nil)
	_ apphttp.StatusReporter = (*Module)(nil)
)
