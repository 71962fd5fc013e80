package calls

import (
	"net/http"
	"time"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// RecordRequest is the body of POST /call_attempts.
type RecordRequest struct {
	UID          string `json:"uid" validate:"required,notblank"`
	CallNo       int    `json:"call_no" validate:"required,min=1,max=7"`
	Status       string `json:"status" validate:"required,notblank"`
	Remarks      string `json:"remarks" validate:"max=1000"`
	FollowUpDate string `json:"follow_up_date"`
}

// Module exposes call attempt routes.
type Module struct {
	svc *Service
	val *validator.Validator
}

// NewModule creates the call attempts module.
func NewModule(svc *Service, val *validator.Validator) *Module {
	return &Module{svc: svc, val: val}
}

func (m *Module) Name() string { return "calls" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/call_attempts")
	g.Use(httpkit.RequireRole(httpkit.RoleCRE, httpkit.RolePS, httpkit.RoleAdmin))
	g.POST("", m.handleRecord)
	g.GET("/:uid", m.handleList)
}

func (m *Module) handleRecord(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", validator.FieldErrors(err))
		return
	}

	in := RecordInput{UID: req.UID, CallNo: req.CallNo, Status: req.Status, CreName: id.Name(), Remarks: req.Remarks}
	if req.FollowUpDate != "" {
		d, err := time.Parse("2006-01-02", req.FollowUpDate)
		if err != nil {
			httpkit.HandleError(c, apperr.Validation("follow_up_date must be YYYY-MM-DD"))
			return
		}
		in.FollowUpDate = &d
	}

	attempt, err := m.svc.Record(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, attempt)
}

func (m *Module) handleList(c *gin.Context) {
	attempts, err := m.svc.List(c.Request.Context(), c.Param("uid"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"uid": c.Param("uid"), "attempts": attempts})
}

var _ apphttp.Module = (*Module)(nil)
