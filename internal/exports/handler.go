package exports

import (
	"net/http"
	"strconv"

	"leadcrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler serves report downloads.
type Handler struct {
	svc *Service
}

// NewHandler creates a new export handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// HandleExport streams GET /admin/exports/:report?format=csv|xlsx.
func (h *Handler) HandleExport(c *gin.Context) {
	file, err := h.svc.Export(c.Request.Context(), c.Param("report"), c.Query("format"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// HandleRunDaily generates the daily report on demand.
func (h *Handler) HandleRunDaily(c *gin.Context) {
	res, err := h.svc.RunDaily(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}
