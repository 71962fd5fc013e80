package approval

import (
	"context"
	"net/http"
	"time"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

// Handler serves the approval routes.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a new approval handler.
// The source_table tag is registered on val.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	_ = val.RegisterValidation("source_table", func(fl playground.FieldLevel) bool {
		_, err := ParseSourceTable(fl.Field().String())
		return err == nil
	})
	return &Handler{svc: svc, val: val}
}

func actorFrom(id httpkit.Identity) Actor {
	role := ""
	if roles := id.Roles(); len(roles) > 0 {
		role = roles[0]
	}
	return Actor{
		ID:     id.UserID(),
		Name:   id.Name(),
		Branch: id.Branch(),
		Role:   role,
		Admin:  id.HasRole(httpkit.RoleAdmin),
	}
}

// requireReviewer lets branch heads and admins through. Any other caller
// is audited as a denied attempt and gets 403.
func (h *Handler) requireReviewer(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := httpkit.GetIdentity(c)
		if id.HasRole(httpkit.RoleBranchHead) || id.HasRole(httpkit.RoleAdmin) {
			c.Next()
			return
		}
		table, leadID := c.Query("source_table"), c.Query("lead_id")
		if c.Request.Method == http.MethodPost {
			var body struct {
				SourceTable string `json:"source_table"`
				LeadID      string `json:"lead_id"`
			}
			if err := c.ShouldBindJSON(&body); err == nil {
				table, leadID = body.SourceTable, body.LeadID
			}
		}
		h.svc.DenyRole(c.Request.Context(), actorFrom(id), action, table, leadID)
		c.AbortWithStatusJSON(http.StatusForbidden, httpkit.ErrorResponse{Error: "forbidden"})
	}
}

// bind decodes and validates the JSON body and resolves the source table.
func (h *Handler) bind(c *gin.Context, req any, table func() string) (SourceTable, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return "", false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", validator.FieldErrors(err))
		return "", false
	}
	st, err := ParseSourceTable(table())
	if httpkit.HandleError(c, err) {
		return "", false
	}
	return st, true
}

// DecisionRequest is the body of the approve and reject routes.
type DecisionRequest struct {
	SourceTable string `json:"source_table" validate:"required,source_table"`
	LeadID      string `json:"lead_id" validate:"required,notblank"`
	Remarks     string `json:"remarks" validate:"max=1000"`
}

func (h *Handler) HandleApprove(c *gin.Context) {
	h.decide(c, h.svc.Approve)
}

func (h *Handler) HandleReject(c *gin.Context) {
	h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c *gin.Context, fn func(ctx context.Context, actor Actor, in DecisionInput) (Lead, error)) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req DecisionRequest
	st, ok := h.bind(c, &req, func() string { return req.SourceTable })
	if !ok {
		return
	}

	lead, err := fn(c.Request.Context(), actorFrom(id), DecisionInput{SourceTable: st, LeadID: req.LeadID, Remarks: req.Remarks})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"success": true, "lead": lead})
}

// SubmitRequest is the body of the submit route.
type SubmitRequest struct {
	SourceTable string `json:"source_table" validate:"required,source_table"`
	LeadID      string `json:"lead_id" validate:"required,notblank"`
	LeadStatus  string `json:"lead_status" validate:"required"`
	OrderID     string `json:"order_id"`
}

func (h *Handler) HandleSubmit(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req SubmitRequest
	st, ok := h.bind(c, &req, func() string { return req.SourceTable })
	if !ok {
		return
	}

	lead, err := h.svc.Submit(c.Request.Context(), actorFrom(id), SubmitInput{
		SourceTable: st,
		LeadID:      req.LeadID,
		LeadStatus:  req.LeadStatus,
		OrderID:     req.OrderID,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"success": true, "lead": lead})
}

// FollowUpRequest is the body of the follow-up route.
type FollowUpRequest struct {
	SourceTable  string `json:"source_table" validate:"required,source_table"`
	LeadID       string `json:"lead_id" validate:"required,notblank"`
	FollowUpDate string `json:"follow_up_date" validate:"required"`
}

func (h *Handler) HandleUpdateFollowUp(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req FollowUpRequest
	st, ok := h.bind(c, &req, func() string { return req.SourceTable })
	if !ok {
		return
	}
	date, err := time.Parse(dateLayout, req.FollowUpDate)
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("follow_up_date must be YYYY-MM-DD"))
		return
	}

	err = h.svc.UpdateFollowUp(c.Request.Context(), actorFrom(id), FollowUpInput{SourceTable: st, LeadID: req.LeadID, FollowUpDate: date})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"success": true})
}

func (h *Handler) HandleListWaiting(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	leads, err := h.svc.Waiting(c.Request.Context(), actorFrom(id), c.Query("branch"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leads": leads, "count": len(leads)})
}

func (h *Handler) HandleLeadDetails(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	st, err := ParseSourceTable(c.Query("source_table"))
	if httpkit.HandleError(c, err) {
		return
	}
	leadID := c.Query("lead_id")
	if leadID == "" {
		httpkit.HandleError(c, apperr.Validation("lead_id is required"))
		return
	}

	lead, err := h.svc.Detail(c.Request.Context(), actorFrom(id), st, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) HandleListRejected(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	leads, err := h.svc.Rejected(c.Request.Context(), actorFrom(id), c.Query("ps_name"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leads": leads, "count": len(leads)})
}
