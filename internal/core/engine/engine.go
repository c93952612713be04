package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/config"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/aggregator"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/alerts"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/cache"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/export"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/metrics"
	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
	"github.com/pulseboard/pulseboard-backend-go/internal/websocket"
	"github.com/pulseboard/pulseboard-backend-go/pkg/errors"
)

// Publisher delivers live update messages to dashboard subscribers.
type Publisher interface {
	Publish(dashboardID string, message websocket.Message)
}

// RefreshScheduler owns the per-entity refresh timers.
type RefreshScheduler interface {
	Schedule(ent *types.Entity) error
	Unschedule(entityID string) error
}

// Delivery ships a rendered report to its recipients. The engine treats
// delivery as fire-and-forget; failures are logged, never retried here.
type Delivery interface {
	Deliver(ctx context.Context, report *types.Entity, payload []byte, contentType string, recipients []string) error
}

// InsightProvider contributes free-text observations to a result
// summary. Optional; a nil provider means summaries carry no insights.
type InsightProvider interface {
	Insights(ctx context.Context, ent *types.Entity, table *types.ResultTable) []string
}

// Deps are the engine's collaborators. Entities and Invoker are
// required; the rest may be nil and the matching behavior is skipped.
type Deps struct {
	Entities   repositories.EntityRepository
	Dashboards repositories.DashboardRepository
	Alerts     *alerts.Service
	Invoker    Invoker
	Publisher  Publisher
	Scheduler  RefreshScheduler
	Collector  *metrics.Collector
	Insights   InsightProvider
	Delivery   Delivery
}

// Engine orchestrates the execution pipeline of widgets and reports:
// cache lookup, data source invocation, aggregation, result caching,
// alert evaluation, and live publication.
type Engine struct {
	deps      Deps
	registry  *registry
	cache     *cache.ResultCache
	evaluator *alerts.Evaluator
	defaults  config.DefaultsConfig
	logger    *logrus.Logger
}

// New creates an engine.
func New(deps Deps, defaults config.DefaultsConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		deps:      deps,
		registry:  newRegistry(),
		cache:     cache.NewResultCache(),
		evaluator: alerts.NewEvaluator(defaults.AlertDedupWindow(), logger),
		defaults:  defaults,
		logger:    logger,
	}
}

// Start loads all persisted entities and arms timers for the active
// ones.
func (e *Engine) Start(ctx context.Context) error {
	entities, err := e.deps.Entities.GetAll(ctx)
	if err != nil {
		return err
	}

	var loaded, armed int
	for _, ent := range entities {
		if !ent.Active {
			continue
		}
		e.registry.put(ent)
		loaded++
		if e.deps.Scheduler != nil {
			if err := e.deps.Scheduler.Schedule(ent); err != nil {
				e.logger.WithError(err).WithField("entity_id", ent.ID).Warn("Failed to arm refresh timer")
				continue
			}
			armed++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"loaded": loaded,
		"armed":  armed,
	}).Info("Engine started")
	return nil
}

// Register validates, persists, and arms a new entity. Configuration
// problems surface here, not at execution time.
func (e *Engine) Register(ctx context.Context, ent *types.Entity) error {
	if err := e.validate(ent); err != nil {
		return err
	}

	if err := e.deps.Entities.Create(ctx, ent); err != nil {
		return err
	}
	e.registry.put(ent)

	if ent.Active && e.deps.Scheduler != nil {
		if err := e.deps.Scheduler.Schedule(ent); err != nil {
			return err
		}
	}

	e.logger.WithFields(logrus.Fields{
		"entity_id": ent.ID,
		"kind":      ent.Kind,
	}).Info("Entity registered")
	return nil
}

// Update replaces an entity's definition. The refresh timer is re-armed
// atomically and the stale cached result is dropped.
func (e *Engine) Update(ctx context.Context, ent *types.Entity) error {
	if err := e.validate(ent); err != nil {
		return err
	}

	if err := e.deps.Entities.Update(ctx, ent); err != nil {
		return err
	}
	e.registry.put(ent)
	e.cache.Invalidate(ent.ID)

	if e.deps.Scheduler != nil {
		if ent.Active {
			if err := e.deps.Scheduler.Schedule(ent); err != nil {
				return err
			}
		} else {
			// Unschedule is a no-op error when no timer was armed
			_ = e.deps.Scheduler.Unschedule(ent.ID)
		}
	}

	e.logger.WithField("entity_id", ent.ID).Info("Entity updated")
	return nil
}

// Remove deletes an entity and tears down its timer, cached result, and
// alert dedup state.
func (e *Engine) Remove(ctx context.Context, entityID string) error {
	if err := e.deps.Entities.Delete(ctx, entityID); err != nil {
		return err
	}

	ent, ok := e.registry.remove(entityID)
	if ok {
		if e.deps.Scheduler != nil {
			_ = e.deps.Scheduler.Unschedule(entityID)
		}
		e.evaluator.Forget(ent.Conditions)
	}
	e.cache.Invalidate(entityID)

	e.logger.WithField("entity_id", entityID).Info("Entity removed")
	return nil
}

// Get returns a registered entity definition.
func (e *Engine) Get(entityID string) (*types.Entity, error) {
	ent, ok := e.registry.get(entityID)
	if !ok {
		return nil, errors.NewConfigurationError("entity %s is not registered", entityID)
	}
	return ent, nil
}

// Execute produces the current result of an entity. A cached result no
// older than maxAge is returned as-is; maxAge of zero accepts any
// cached result, a negative maxAge forces a fresh execution.
func (e *Engine) Execute(ctx context.Context, entityID string, maxAge time.Duration) (*types.CachedResult, error) {
	ent, ok := e.registry.get(entityID)
	if !ok {
		return nil, errors.NewConfigurationError("entity %s is not registered", entityID)
	}

	if maxAge >= 0 {
		if cached, hit := e.cache.Get(entityID, maxAge); hit {
			if e.deps.Collector != nil {
				e.deps.Collector.RecordCacheHit()
			}
			return cached, nil
		}
		if e.deps.Collector != nil {
			e.deps.Collector.RecordCacheMiss()
		}
	}

	return e.executeFresh(ctx, ent, nil)
}

// ExecuteFiltered runs an entity's pipeline with additional filters
// applied on top of its own. The result reflects the narrowed row set,
// so it bypasses the cache entirely and fires no alerts or updates.
func (e *Engine) ExecuteFiltered(ctx context.Context, entityID string, extra []types.FilterSpec) (*types.CachedResult, error) {
	if len(extra) == 0 {
		return e.Execute(ctx, entityID, -1)
	}
	ent, ok := e.registry.get(entityID)
	if !ok {
		return nil, errors.NewConfigurationError("entity %s is not registered", entityID)
	}
	return e.executeFresh(ctx, ent, extra)
}

// RunScheduled is the scheduler's entry point: a forced fresh run, plus
// delivery for reports that declare recipients.
func (e *Engine) RunScheduled(ctx context.Context, entityID string) {
	ent, ok := e.registry.get(entityID)
	if !ok {
		return
	}

	result, err := e.executeFresh(ctx, ent, nil)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"entity_id": entityID,
			"kind":      ent.Kind,
		}).Error("Scheduled run failed")
		return
	}

	if ent.Kind == types.KindReport && ent.Refresh.Schedule != nil {
		e.deliverReport(ctx, ent, result)
	}
}

// executeFresh runs the full pipeline: invoke, aggregate, cache,
// evaluate alerts, publish. A failed run leaves the previous cached
// result untouched. With extra filters the run is ad hoc and skips the
// cache, alert and publish steps.
func (e *Engine) executeFresh(ctx context.Context, ent *types.Entity, extra []types.FilterSpec) (*types.CachedResult, error) {
	start := time.Now()

	timeout := e.defaults.InvokerTimeout()
	if ent.Source.TimeoutSeconds > 0 {
		timeout = time.Duration(ent.Source.TimeoutSeconds) * time.Second
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := e.deps.Invoker.Invoke(invokeCtx, ent.Source)
	if err != nil {
		e.recordExecution(ent, "error", start)
		if errors.IsCategory(err, errors.CategoryConfiguration) {
			return nil, err
		}
		return nil, errors.NewDataSourceError(err, "data source invocation failed for %s", ent.ID)
	}

	filters := ent.Filters
	if len(extra) > 0 {
		filters = append(append([]types.FilterSpec{}, ent.Filters...), extra...)
	}

	table, err := aggregator.Aggregate(rows, ent.Metrics, ent.Dimensions, filters)
	if err != nil {
		e.recordExecution(ent, "error", start)
		return nil, err
	}

	if e.deps.Insights != nil && table.Summary != nil {
		table.Summary.Insights = e.deps.Insights.Insights(ctx, ent, table)
	}

	// The caller went away; the result is stale on arrival
	if err := ctx.Err(); err != nil {
		e.recordExecution(ent, "canceled", start)
		return nil, err
	}

	duration := time.Since(start)

	// Ad hoc filtered reads and entities removed mid-run leave no trace
	if _, registered := e.registry.get(ent.ID); !registered || len(extra) > 0 {
		return &types.CachedResult{EntityID: ent.ID, Table: table, ProducedAt: time.Now(), Duration: duration}, nil
	}

	result := e.cache.Put(ent.ID, table, duration)
	e.recordExecution(ent, "success", start)

	e.fireAlerts(ctx, ent, table)
	e.publishUpdate(ent, table, duration)

	return result, nil
}

func (e *Engine) fireAlerts(ctx context.Context, ent *types.Entity, table *types.ResultTable) {
	if len(ent.Conditions) == 0 {
		return
	}

	events := e.evaluator.Evaluate(ent.ID, table, ent.Conditions, e.alertWindow(ctx, ent))
	for _, event := range events {
		if e.deps.Collector != nil {
			e.deps.Collector.RecordAlert(string(event.Severity))
		}
		if e.deps.Alerts != nil {
			if err := e.deps.Alerts.Record(ctx, event); err != nil {
				e.logger.WithError(err).WithField("alert_id", event.ID).Error("Failed to persist alert event")
			}
		}
		if e.deps.Publisher != nil && ent.DashboardID != "" {
			e.deps.Publisher.Publish(ent.DashboardID, websocket.AlertTriggeredMessage(
				ent.ID, event.ID, event.Metric, event.Observed, event.Threshold, string(event.Severity)))
		}
	}
}

// alertWindow resolves the dedup window for an entity: its dashboard's
// settings when present, the configured default otherwise.
func (e *Engine) alertWindow(ctx context.Context, ent *types.Entity) time.Duration {
	window := e.defaults.AlertDedupWindow()
	if ent.DashboardID == "" || e.deps.Dashboards == nil {
		return window
	}

	dashboard, err := e.deps.Dashboards.GetByID(ctx, ent.DashboardID)
	if err != nil {
		e.logger.WithError(err).WithField("dashboard_id", ent.DashboardID).Warn("Failed to load dashboard settings")
		return window
	}
	settings, err := dashboard.ParseSettings()
	if err != nil {
		e.logger.WithError(err).WithField("dashboard_id", ent.DashboardID).Warn("Malformed dashboard settings")
		return window
	}
	return settings.DedupWindow(window)
}

func (e *Engine) publishUpdate(ent *types.Entity, table *types.ResultTable, duration time.Duration) {
	if e.deps.Publisher == nil || ent.DashboardID == "" {
		return
	}

	if ent.Kind == types.KindReport {
		e.deps.Publisher.Publish(ent.DashboardID, websocket.ReportUpdatedMessage(ent.ID, len(table.Rows), duration))
		return
	}
	e.deps.Publisher.Publish(ent.DashboardID, websocket.WidgetUpdatedMessage(ent.ID, len(table.Rows), duration))
}

func (e *Engine) deliverReport(ctx context.Context, ent *types.Entity, result *types.CachedResult) {
	schedule := ent.Refresh.Schedule
	if e.deps.Delivery == nil || len(schedule.Recipients) == 0 {
		return
	}

	format := schedule.Format
	if format == "" {
		format = export.FormatPDF
	}

	payload, err := export.Export(result.Table, format, ent.Name)
	if err != nil {
		e.logger.WithError(err).WithField("entity_id", ent.ID).Error("Failed to render report for delivery")
		return
	}

	if err := e.deps.Delivery.Deliver(ctx, ent, payload, export.ContentType(format), schedule.Recipients); err != nil {
		e.logger.WithError(err).WithField("entity_id", ent.ID).Error("Report delivery failed")
		return
	}

	e.logger.WithFields(logrus.Fields{
		"entity_id":  ent.ID,
		"format":     format,
		"recipients": len(schedule.Recipients),
	}).Info("Report delivered")
}

func (e *Engine) recordExecution(ent *types.Entity, status string, start time.Time) {
	if e.deps.Collector == nil {
		return
	}
	e.deps.Collector.RecordExecution(string(ent.Kind), status, time.Since(start))
}

// validate runs the registration-time checks. Formula problems are
// rejected here so execution never sees a malformed definition.
func (e *Engine) validate(ent *types.Entity) error {
	if err := ent.Validate(); err != nil {
		return errors.NewConfigurationError("%v", err)
	}
	if err := aggregator.ValidateMetrics(ent.Metrics); err != nil {
		return err
	}
	return nil
}

// CacheStats exposes the result cache counters.
func (e *Engine) CacheStats() cache.Statistics {
	return e.cache.Stats()
}

// RegisteredCount returns how many entities are live.
func (e *Engine) RegisteredCount() int {
	return e.registry.size()
}
