package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/api/handlers"
	"github.com/pulseboard/pulseboard-backend-go/internal/api/middleware"
	"github.com/pulseboard/pulseboard-backend-go/internal/config"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/alerts"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/engine"
	"github.com/pulseboard/pulseboard-backend-go/internal/database"
	"github.com/pulseboard/pulseboard-backend-go/internal/websocket"
)

// NewRouter creates and configures the main HTTP router.
func NewRouter(cfg *config.Config, repos *database.Repositories, eng *engine.Engine, alertService *alerts.Service, wsHub *websocket.Hub, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	h := handlers.NewHandlers(cfg, repos, eng, alertService, wsHub, logger)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.WebSocketHandler())

	api := router.Group("/api/v1")
	{
		dashboards := api.Group("/dashboards")
		{
			dashboards.POST("", h.CreateDashboard)
			dashboards.GET("", h.GetDashboards)
			dashboards.GET("/:id", h.GetDashboard)
			dashboards.PUT("/:id", h.UpdateDashboard)
			dashboards.DELETE("/:id", h.DeleteDashboard)
			dashboards.GET("/:id/results", h.GetDashboardResults)
		}

		widgets := api.Group("/widgets")
		{
			widgets.POST("", h.CreateWidget)
			widgets.GET("/:id", h.GetWidget)
			widgets.PUT("/:id", h.UpdateWidget)
			widgets.DELETE("/:id", h.DeleteWidget)
			widgets.GET("/:id/result", h.GetWidgetResult)
		}

		reports := api.Group("/reports")
		{
			reports.POST("", h.CreateReport)
			reports.GET("/:id", h.GetReport)
			reports.PUT("/:id", h.UpdateReport)
			reports.DELETE("/:id", h.DeleteReport)
			reports.GET("/:id/result", h.GetReportResult)
			reports.GET("/:id/export", h.ExportReport)
			reports.POST("/:id/run", h.RunReport)
		}

		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.GET("", h.GetAlerts)
			alertRoutes.POST("/:id/acknowledge", h.AcknowledgeAlert)
		}
	}

	return router
}
