package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/config"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/alerts"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/engine"
	"github.com/pulseboard/pulseboard-backend-go/internal/database"
	"github.com/pulseboard/pulseboard-backend-go/internal/websocket"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
	"github.com/pulseboard/pulseboard-backend-go/pkg/utils"
)

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	cfg    *config.Config
	repos  *database.Repositories
	engine *engine.Engine
	alerts *alerts.Service
	wsHub  *websocket.Hub
	log    *logrus.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(cfg *config.Config, repos *database.Repositories, eng *engine.Engine, alertService *alerts.Service, wsHub *websocket.Hub, logger *logrus.Logger) *Handlers {
	return &Handlers{
		cfg:    cfg,
		repos:  repos,
		engine: eng,
		alerts: alertService,
		wsHub:  wsHub,
		log:    logger,
	}
}

// Health returns the health status of the service.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.engine.CacheStats()

	utils.SendSuccess(c, gin.H{
		"status":    "healthy",
		"service":   "pulseboard-backend-go",
		"timestamp": time.Now().Format(time.RFC3339),
		"entities":  h.engine.RegisteredCount(),
		"cache": gin.H{
			"hits":   stats.Hits,
			"misses": stats.Misses,
			"puts":   stats.Puts,
		},
		"websocket": h.wsHub.GetStats(),
	})
}

// sendDomainError maps a pipeline error onto the right status code.
func (h *Handlers) sendDomainError(c *gin.Context, err error) {
	utils.SendError(c, errors.GetStatusCode(err), err.Error())
}

// maxAgeParam reads the max_age/refresh query knobs. The default is the
// dashboard's configured cache TTL when it has one, the system default
// otherwise; refresh=true forces a fresh run.
func (h *Handlers) maxAgeParam(c *gin.Context, dashboardID string) time.Duration {
	if c.Query("refresh") == "true" {
		return -1
	}
	if raw := c.Query("max_age"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return h.dashboardTTL(c.Request.Context(), dashboardID)
}

// dashboardTTL resolves the default result max age for a dashboard.
func (h *Handlers) dashboardTTL(ctx context.Context, dashboardID string) time.Duration {
	ttl := h.cfg.Defaults.CacheTTL()
	if dashboardID == "" {
		return ttl
	}
	dashboard, err := h.repos.Dashboard.GetByID(ctx, dashboardID)
	if err != nil {
		return ttl
	}
	settings, err := dashboard.ParseSettings()
	if err != nil {
		h.log.WithError(err).WithField("dashboard_id", dashboardID).Warn("Malformed dashboard settings")
		return ttl
	}
	return settings.CacheTTL(ttl)
}
