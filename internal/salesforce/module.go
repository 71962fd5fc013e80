package salesforce

import (
	"strconv"
	"time"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes an on-demand sync to admins.
type Module struct {
	syncer *Syncer
}

// NewModule creates the Salesforce module. A nil syncer answers 503.
func NewModule(syncer *Syncer) *Module {
	return &Module{syncer: syncer}
}

func (m *Module) Name() string { return "salesforce" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/salesforce/sync", m.handleSync)
}

func (m *Module) handleSync(c *gin.Context) {
	if m.syncer == nil {
		httpkit.HandleError(c, apperr.Unavailable("salesforce sync is not configured", nil))
		return
	}
	window := DefaultWindow
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > int(MaxWindow/time.Hour) {
			httpkit.HandleError(c, apperr.Validation("hours must be between 1 and 720"))
			return
		}
		window = time.Duration(hours) * time.Hour
	}
	res, err := m.syncer.Run(c.Request.Context(), window)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

var _ apphttp.Module = (*Module)(nil)
