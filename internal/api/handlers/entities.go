package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/export"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/pkg/utils"
)

// createEntity is the shared registration path of widgets and reports.
func (h *Handlers) createEntity(c *gin.Context, kind types.EntityKind) {
	var ent types.Entity
	if err := c.ShouldBindJSON(&ent); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid entity payload: "+err.Error())
		return
	}

	if ent.ID == "" {
		ent.ID = uuid.New().String()
	}
	ent.Kind = kind
	ent.Active = true

	if err := h.engine.Register(c.Request.Context(), &ent); err != nil {
		h.sendDomainError(c, err)
		return
	}
	utils.SendCreated(c, ent)
}

func (h *Handlers) getEntity(c *gin.Context, kind types.EntityKind) {
	ent, err := h.engine.Get(c.Param("id"))
	if err != nil || ent.Kind != kind {
		utils.SendError(c, http.StatusNotFound, "entity not found with ID: "+c.Param("id"))
		return
	}
	utils.SendSuccess(c, ent)
}

func (h *Handlers) updateEntity(c *gin.Context, kind types.EntityKind) {
	var ent types.Entity
	if err := c.ShouldBindJSON(&ent); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid entity payload: "+err.Error())
		return
	}
	ent.ID = c.Param("id")
	ent.Kind = kind

	if err := h.engine.Update(c.Request.Context(), &ent); err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.SendError(c, http.StatusNotFound, err.Error())
			return
		}
		h.sendDomainError(c, err)
		return
	}
	utils.SendSuccess(c, ent)
}

func (h *Handlers) deleteEntity(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Remove(c.Request.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			utils.SendError(c, http.StatusNotFound, err.Error())
			return
		}
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// getEntityResult serves a widget's or report's current result, from
// cache when fresh enough. Repeated filter=field:op:value params narrow
// the row set for this read only.
func (h *Handlers) getEntityResult(c *gin.Context) {
	extra, err := parseFilterParams(c.QueryArray("filter"))
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	ent, err := h.engine.Get(c.Param("id"))
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	var result *types.CachedResult
	if len(extra) > 0 {
		result, err = h.engine.ExecuteFiltered(c.Request.Context(), ent.ID, extra)
	} else {
		result, err = h.engine.Execute(c.Request.Context(), ent.ID, h.maxAgeParam(c, ent.DashboardID))
	}
	if err != nil {
		h.sendDomainError(c, err)
		return
	}
	utils.SendSuccess(c, result)
}

// parseFilterParams turns field:op:value strings into filter specs.
// Values that parse as numbers are passed through as float64.
func parseFilterParams(params []string) ([]types.FilterSpec, error) {
	if len(params) == 0 {
		return nil, nil
	}
	filters := make([]types.FilterSpec, 0, len(params))
	for _, p := range params {
		parts := strings.SplitN(p, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field:op:value", p)
		}
		op := types.FilterOperator(parts[1])
		switch op {
		case types.OpEquals, types.OpNotEquals, types.OpGreater, types.OpGreaterEq,
			types.OpLess, types.OpLessEq, types.OpContains:
		default:
			return nil, fmt.Errorf("unsupported filter operator %q", parts[1])
		}
		var value interface{} = parts[2]
		if f, err := strconv.ParseFloat(parts[2], 64); err == nil {
			value = f
		}
		filters = append(filters, types.FilterSpec{
			Field:    parts[0],
			Operator: op,
			Value:    value,
		})
	}
	return filters, nil
}

// CreateWidget registers a widget.
func (h *Handlers) CreateWidget(c *gin.Context) { h.createEntity(c, types.KindWidget) }

// GetWidget returns a widget definition.
func (h *Handlers) GetWidget(c *gin.Context) { h.getEntity(c, types.KindWidget) }

// UpdateWidget replaces a widget definition.
func (h *Handlers) UpdateWidget(c *gin.Context) { h.updateEntity(c, types.KindWidget) }

// DeleteWidget removes a widget.
func (h *Handlers) DeleteWidget(c *gin.Context) { h.deleteEntity(c) }

// GetWidgetResult serves a widget's current result.
func (h *Handlers) GetWidgetResult(c *gin.Context) { h.getEntityResult(c) }

// CreateReport registers a report.
func (h *Handlers) CreateReport(c *gin.Context) { h.createEntity(c, types.KindReport) }

// GetReport returns a report definition.
func (h *Handlers) GetReport(c *gin.Context) { h.getEntity(c, types.KindReport) }

// UpdateReport replaces a report definition.
func (h *Handlers) UpdateReport(c *gin.Context) { h.updateEntity(c, types.KindReport) }

// DeleteReport removes a report.
func (h *Handlers) DeleteReport(c *gin.Context) { h.deleteEntity(c) }

// GetReportResult serves a report's current result.
func (h *Handlers) GetReportResult(c *gin.Context) { h.getEntityResult(c) }

// RunReport triggers a report's pipeline immediately, including
// delivery when recipients are configured.
func (h *Handlers) RunReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.engine.Get(id); err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}

	h.engine.RunScheduled(c.Request.Context(), id)
	utils.SendSuccess(c, gin.H{"triggered": id})
}

// ExportReport renders a report's current result in the requested
// format and streams it back.
func (h *Handlers) ExportReport(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", export.FormatCSV)

	ent, err := h.engine.Get(id)
	if err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}

	result, err := h.engine.Execute(c.Request.Context(), id, h.maxAgeParam(c, ent.DashboardID))
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	payload, err := export.Export(result.Table, format, ent.Name)
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	filename := ent.ID + "." + strings.ToLower(format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, export.ContentType(format), payload)
}
