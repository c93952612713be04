package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
	"github.com/pulseboard/pulseboard-backend-go/pkg/utils"
)

// GetAlerts lists fired alert events, optionally filtered.
func (h *Handlers) GetAlerts(c *gin.Context) {
	filter := repositories.AlertFilter{
		EntityID:       c.Query("entity_id"),
		Severity:       c.Query("severity"),
		Unacknowledged: c.Query("unacknowledged") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = since
	}

	events, err := h.alerts.GetAlerts(c.Request.Context(), filter)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	utils.SendSuccess(c, events)
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
}

// AcknowledgeAlert marks an alert event acknowledged.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "acknowledged_by is required")
		return
	}

	id := c.Param("id")
	if err := h.alerts.Acknowledge(c.Request.Context(), id, req.AcknowledgedBy); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "already acknowledged") {
			status = http.StatusConflict
		}
		utils.SendError(c, status, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"acknowledged": id, "by": req.AcknowledgedBy})
}
