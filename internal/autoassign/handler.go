package autoassign

import (
	"net/http"
	"strconv"

	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves the distributor routes.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a new distributor handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleTrigger runs one pass. A pass with failed sources answers 500 with
// the full result so the poller can log it.
func (h *Handler) HandleTrigger(c *gin.Context) {
	res, err := h.svc.RunPass(c.Request.Context(), TriggerHTTP, c.Query("source"))
	if httpkit.HandleError(c, err) {
		return
	}
	if !res.Success {
		httpkit.JSON(c, http.StatusInternalServerError, res)
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) HandleAgents(c *gin.Context) {
	loads, err := h.svc.AgentLoads(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"agents": loads})
}

func (h *Handler) HandleSources(c *gin.Context) {
	stats, err := h.svc.SourceStats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"sources": stats})
}

func (h *Handler) HandleSummary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

func (h *Handler) HandleListConfigs(c *gin.Context) {
	configs, err := h.svc.Configs(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"configs": configs})
}

// ReplaceConfigRequest is the body of PUT configs/:source.
type ReplaceConfigRequest struct {
	Agents      []ConfigEntry `json:"agents" validate:"dive"`
	ResetCounts bool          `json:"reset_counts"`
}

func (h *Handler) HandleReplaceConfig(c *gin.Context) {
	var req ReplaceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	for i := range req.Agents {
		if req.Agents[i].Priority == 0 {
			req.Agents[i].Priority = 1
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", validator.FieldErrors(err))
		return
	}

	source := c.Param("source")
	if err := h.svc.ReplaceConfig(c.Request.Context(), source, req.Agents, req.ResetCounts); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"source": source, "agents": len(req.Agents)})
}

// ResetCountsRequest lists the agents to reset; empty means all.
type ResetCountsRequest struct {
	CreIDs []int64 `json:"cre_ids" validate:"dive,gt=0"`
}

func (h *Handler) HandleResetCounts(c *gin.Context) {
	var req ResetCountsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", validator.FieldErrors(err))
		return
	}

	n, err := h.svc.ResetCounts(c.Request.Context(), req.CreIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"reset": n})
}

func (h *Handler) HandleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, offset = clampPage(limit, offset)

	records, err := h.svc.History(c.Request.Context(), c.Query("source"), limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"history": records, "limit": limit, "offset": offset})
}

func (h *Handler) HandlePurgeHistory(c *gin.Context) {
	removed, err := h.svc.PurgeHistory(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"success": true, "deleted": removed})
}

func (h *Handler) HandleSystemStatus(c *gin.Context) {
	status, err := h.svc.Tracker().Status(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

func (h *Handler) HandleSystemHealth(c *gin.Context) {
	health, err := h.svc.Health(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, health)
}

func (h *Handler) HandleSystemStatistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

func (h *Handler) HandleClearErrors(c *gin.Context) {
	if err := h.svc.Tracker().ClearErrors(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"message": "errors cleared"})
}
