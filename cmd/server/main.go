package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/api"
	"github.com/pulseboard/pulseboard-backend-go/internal/config"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/alerts"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/engine"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/metrics"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/scheduler"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database"
	"github.com/pulseboard/pulseboard-backend-go/internal/websocket"
	"github.com/pulseboard/pulseboard-backend-go/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create repositories
	repos := database.NewRepositories(db)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Core services
	collector := metrics.NewCollector()
	alertService := alerts.NewService(repos.Alert, log)

	// Data source invokers: static is built in, queries run against the
	// local database, api sources go over HTTP
	resolver := engine.NewSourceResolver()
	resolver.RegisterInvoker(types.SourceQuery, engine.NewQueryInvoker(db))
	resolver.RegisterInvoker(types.SourceAPI, engine.NewAPIInvoker(nil))

	// The scheduler fires into the engine; the engine arms timers on the
	// scheduler. Break the cycle by wiring the engine in after creation.
	var eng *engine.Engine
	sched, err := scheduler.New(scheduler.Config{
		Timezone: cfg.Scheduler.Timezone,
		Workers:  cfg.Scheduler.Workers,
		QueueLen: cfg.Scheduler.QueueLen,
	}, func(ctx context.Context, entityID string) {
		eng.RunScheduled(ctx, entityID)
	}, log)
	if err != nil {
		log.Fatal("Failed to create scheduler:", err)
	}

	eng = engine.New(engine.Deps{
		Entities:   repos.Entity,
		Dashboards: repos.Dashboard,
		Alerts:     alertService,
		Invoker:    resolver,
		Publisher:  wsHub,
		Scheduler:  sched,
		Collector:  collector,
		Delivery:   engine.NewLogDelivery(log),
	}, cfg.Defaults, log)

	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eng.Start(startCtx); err != nil {
		log.Fatal("Failed to start engine:", err)
	}
	cancelStart()

	// Initialize router
	router := api.NewRouter(cfg, repos, eng, alertService, wsHub, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting Pulseboard Backend on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop scheduler gracefully")
	}
	wsHub.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Info("Server exited")
}
