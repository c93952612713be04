package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments of the execution pipeline.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	alertsFired       *prometheus.CounterVec
	connectedClients  prometheus.Gauge
	scheduledEntities prometheus.Gauge
}

// NewCollector creates and registers the pipeline collectors.
func NewCollector() *Collector {
	const prefix = "pulseboard"

	return &Collector{
		executionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_executions_total",
				Help: "Total number of entity executions",
			},
			[]string{"kind", "status"},
		),
		executionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_execution_duration_seconds",
				Help:    "Entity execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		cacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_cache_hits_total",
				Help: "Total number of result cache hits",
			},
		),
		cacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_cache_misses_total",
				Help: "Total number of result cache misses",
			},
		),
		alertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_alerts_fired_total",
				Help: "Total number of fired alert events",
			},
			[]string{"severity"},
		),
		connectedClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),
		scheduledEntities: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_scheduled_entities",
				Help: "Number of entities with an armed refresh timer",
			},
		),
	}
}

// RecordExecution records one finished entity execution.
func (c *Collector) RecordExecution(kind, status string, duration time.Duration) {
	c.executionsTotal.WithLabelValues(kind, status).Inc()
	c.executionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheHit increments the cache hit counter.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss increments the cache miss counter.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// RecordAlert records one fired alert event.
func (c *Collector) RecordAlert(severity string) {
	c.alertsFired.WithLabelValues(severity).Inc()
}

// SetConnectedClients updates the connected client gauge.
func (c *Collector) SetConnectedClients(n int) {
	c.connectedClients.Set(float64(n))
}

// SetScheduledEntities updates the armed timer gauge.
func (c *Collector) SetScheduledEntities(n int) {
	c.scheduledEntities.Set(float64(n))
}
