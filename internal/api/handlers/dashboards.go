package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
	"github.com/pulseboard/pulseboard-backend-go/pkg/utils"
)

type dashboardRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" binding:"required"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
}

// CreateDashboard creates a new dashboard.
func (h *Handlers) CreateDashboard(c *gin.Context) {
	var req dashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid dashboard payload: "+err.Error())
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	dashboard := &models.Dashboard{ID: req.ID, Name: req.Name}
	if req.Owner != "" {
		dashboard.Owner.String, dashboard.Owner.Valid = req.Owner, true
	}
	if req.Description != "" {
		dashboard.Description.String, dashboard.Description.Valid = req.Description, true
	}

	if err := h.repos.Dashboard.Create(c.Request.Context(), dashboard); err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.SendCreated(c, dashboard)
}

// GetDashboards lists all dashboards.
func (h *Handlers) GetDashboards(c *gin.Context) {
	dashboards, err := h.repos.Dashboard.GetAll(c.Request.Context())
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	utils.SendSuccess(c, dashboards)
}

// GetDashboard returns one dashboard with its widget definitions.
func (h *Handlers) GetDashboard(c *gin.Context) {
	id := c.Param("id")

	dashboard, err := h.repos.Dashboard.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}

	widgets, err := h.repos.Entity.GetByDashboard(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	utils.SendSuccess(c, gin.H{
		"dashboard": dashboard,
		"widgets":   widgets,
	})
}

// UpdateDashboard updates a dashboard's metadata.
func (h *Handlers) UpdateDashboard(c *gin.Context) {
	var req dashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid dashboard payload: "+err.Error())
		return
	}

	dashboard := &models.Dashboard{ID: c.Param("id"), Name: req.Name}
	if req.Owner != "" {
		dashboard.Owner.String, dashboard.Owner.Valid = req.Owner, true
	}
	if req.Description != "" {
		dashboard.Description.String, dashboard.Description.Valid = req.Description, true
	}

	if err := h.repos.Dashboard.Update(c.Request.Context(), dashboard); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		utils.SendError(c, status, err.Error())
		return
	}
	utils.SendSuccess(c, dashboard)
}

// DeleteDashboard removes a dashboard and its widgets.
func (h *Handlers) DeleteDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	dashboardID := c.Param("id")

	widgets, err := h.repos.Entity.GetByDashboard(ctx, dashboardID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	for _, widget := range widgets {
		if err := h.engine.Remove(ctx, widget.ID); err != nil {
			h.log.WithError(err).WithField("entity_id", widget.ID).Warn("Failed to remove widget during dashboard delete")
		}
	}

	if err := h.repos.Dashboard.Delete(ctx, dashboardID); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		utils.SendError(c, status, err.Error())
		return
	}

	utils.SendSuccess(c, gin.H{"deleted": dashboardID, "widgets_removed": len(widgets)})
}

// GetDashboardResults executes every widget of a dashboard and returns
// per-widget outcomes. Widget failures surface inline, never as a whole
// request failure.
func (h *Handlers) GetDashboardResults(c *gin.Context) {
	dashboardID := c.Param("id")

	if _, err := h.repos.Dashboard.GetByID(c.Request.Context(), dashboardID); err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}

	result, err := h.engine.ExecuteDashboard(c.Request.Context(), dashboardID, h.maxAgeParam(c, dashboardID))
	if err != nil {
		h.sendDomainError(c, err)
		return
	}
	utils.SendSuccess(c, result)
}
