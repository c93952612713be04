package types

import (
	"fmt"
	"time"
)

// Row is a single record returned by a data source: field name -> value.
type Row map[string]interface{}

// EntityKind distinguishes the two entity flavors driving a pipeline.
type EntityKind string

const (
	KindWidget EntityKind = "widget"
	KindReport EntityKind = "report"
)

// SourceKind identifies the backing data source of an entity.
type SourceKind string

const (
	SourceMetrics SourceKind = "metrics"
	SourceQuery   SourceKind = "query"
	SourceAPI     SourceKind = "api"
	SourceStatic  SourceKind = "static"
)

// DataSourceDescriptor describes where an entity's raw rows come from.
// Exactly one kind-specific section is meaningful depending on Kind.
type DataSourceDescriptor struct {
	Kind SourceKind `json:"kind"`

	// SourceMetrics
	MetricIDs []string `json:"metric_ids,omitempty"`

	// SourceQuery
	Query  string                 `json:"query,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`

	// SourceAPI
	Endpoint string            `json:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`

	// SourceStatic
	StaticRows []Row `json:"static_rows,omitempty"`

	// TimeoutSeconds overrides the system default deadline for the
	// external call. Zero means use the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// AggregationMethod is how a metric's values are folded per group.
type AggregationMethod string

const (
	AggSum      AggregationMethod = "sum"
	AggAvg      AggregationMethod = "avg"
	AggCount    AggregationMethod = "count"
	AggMin      AggregationMethod = "min"
	AggMax      AggregationMethod = "max"
	AggDistinct AggregationMethod = "distinct"
	AggCustom   AggregationMethod = "custom"
)

// FormatSpec describes how a column should be rendered. It is attached to
// columns for consumers; underlying numeric values are never rewritten.
type FormatSpec struct {
	Decimals int    `json:"decimals"`
	Prefix   string `json:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// MetricSpec declares one computed metric of an entity.
type MetricSpec struct {
	Field   string            `json:"field"`
	Method  AggregationMethod `json:"method"`
	Label   string            `json:"label,omitempty"`
	Format  *FormatSpec       `json:"format,omitempty"`
	Formula string            `json:"formula,omitempty"` // only for AggCustom
}

// DimensionType is the semantic type of a dimension column.
type DimensionType string

const (
	DimString DimensionType = "string"
	DimNumber DimensionType = "number"
	DimTime   DimensionType = "time"
)

// BucketRange is one labeled range of a bucketed numeric dimension.
// Min is inclusive, Max exclusive.
type BucketRange struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// BucketSpec groups numeric dimension values into buckets, either
// fixed-size (Size > 0) or by explicit labeled ranges.
type BucketSpec struct {
	Size   float64       `json:"size,omitempty"`
	Ranges []BucketRange `json:"ranges,omitempty"`
}

// DimensionSpec declares one grouping dimension of an entity.
type DimensionSpec struct {
	Field  string        `json:"field"`
	Type   DimensionType `json:"type"`
	Label  string        `json:"label,omitempty"`
	Bucket *BucketSpec   `json:"bucket,omitempty"`
}

// FilterOperator compares a row field against a filter value.
type FilterOperator string

const (
	OpEquals      FilterOperator = "eq"
	OpNotEquals   FilterOperator = "neq"
	OpGreater     FilterOperator = "gt"
	OpGreaterEq   FilterOperator = "gte"
	OpLess        FilterOperator = "lt"
	OpLessEq      FilterOperator = "lte"
	OpContains    FilterOperator = "contains"
	OpIn          FilterOperator = "in"
)

// FilterCombinator joins a filter with the one before it.
type FilterCombinator string

const (
	CombinatorAnd FilterCombinator = "and"
	CombinatorOr  FilterCombinator = "or"
)

// FilterSpec is one row-level predicate. Combinator describes how this
// filter joins the running result of the previous filters; it is ignored
// on the first filter of a list.
type FilterSpec struct {
	Field      string           `json:"field"`
	Operator   FilterOperator   `json:"operator"`
	Value      interface{}      `json:"value,omitempty"`
	Values     []interface{}    `json:"values,omitempty"`
	Combinator FilterCombinator `json:"combinator,omitempty"`
}

// ScheduleFrequency is the unit of a cron-style report schedule.
type ScheduleFrequency string

const (
	FreqHourly  ScheduleFrequency = "hourly"
	FreqDaily   ScheduleFrequency = "daily"
	FreqWeekly  ScheduleFrequency = "weekly"
	FreqMonthly ScheduleFrequency = "monthly"
)

// Schedule is a cron-style rule for report execution and delivery.
type Schedule struct {
	Frequency  ScheduleFrequency `json:"frequency"`
	DayOfWeek  *time.Weekday     `json:"day_of_week,omitempty"`  // weekly
	DayOfMonth *int              `json:"day_of_month,omitempty"` // monthly
	TimeOfDay  string            `json:"time_of_day"`            // "15:04"
	Timezone   string            `json:"timezone,omitempty"`     // IANA name, default UTC
	Recipients []string          `json:"recipients,omitempty"`
	Format     string            `json:"format,omitempty"` // export format name
}

// RefreshPolicy controls how an entity is kept fresh. Exactly one of
// IntervalSeconds (> 0) and Schedule must be set.
type RefreshPolicy struct {
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
	Schedule        *Schedule `json:"schedule,omitempty"`
}

// Validate enforces the one-of invariant.
func (p RefreshPolicy) Validate() error {
	hasInterval := p.IntervalSeconds > 0
	hasSchedule := p.Schedule != nil
	if hasInterval == hasSchedule {
		return fmt.Errorf("refresh policy requires exactly one of interval_seconds or schedule")
	}
	return nil
}

// Severity of an alert condition or event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertCondition is a numeric threshold rule evaluated against every
// freshly produced result of its entity.
type AlertCondition struct {
	ID        string   `json:"id"`
	EntityID  string   `json:"entity_id"`
	Metric    string   `json:"metric"`
	Operator  string   `json:"operator"` // > < >= <= ==
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// AlertEvent is a generated instance of a triggered condition.
type AlertEvent struct {
	ID             string     `json:"id"`
	EntityID       string     `json:"entity_id"`
	ConditionID    string     `json:"condition_id"`
	Metric         string     `json:"metric"`
	Observed       float64    `json:"observed"`
	Threshold      float64    `json:"threshold"`
	Operator       string     `json:"operator"`
	Severity       Severity   `json:"severity"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Entity is a widget or report definition driving one data pipeline.
type Entity struct {
	ID          string               `json:"id"`
	Kind        EntityKind           `json:"kind"`
	DashboardID string               `json:"dashboard_id,omitempty"` // widgets only
	Name        string               `json:"name"`
	Owner       string               `json:"owner,omitempty"`
	Source      DataSourceDescriptor `json:"source"`
	Metrics     []MetricSpec         `json:"metrics"`
	Dimensions  []DimensionSpec      `json:"dimensions,omitempty"`
	Filters     []FilterSpec         `json:"filters,omitempty"`
	Refresh     RefreshPolicy        `json:"refresh"`
	Conditions  []AlertCondition     `json:"conditions,omitempty"`
	Active      bool                 `json:"active"`
	CreatedAt   time.Time            `json:"created_at,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at,omitempty"`
}

// Validate checks the structural invariants of an entity definition.
// Formula references are checked separately by the aggregator.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	if e.Kind != KindWidget && e.Kind != KindReport {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.Kind == KindWidget && e.DashboardID == "" {
		return fmt.Errorf("widget %s requires a dashboard_id", e.ID)
	}
	if len(e.Metrics) == 0 {
		return fmt.Errorf("entity %s declares no metrics", e.ID)
	}
	for i, m := range e.Metrics {
		if m.Field == "" {
			return fmt.Errorf("entity %s: metric %d has no field", e.ID, i)
		}
	}
	switch e.Source.Kind {
	case SourceMetrics, SourceQuery, SourceAPI, SourceStatic:
	default:
		return fmt.Errorf("entity %s: unknown source kind %q", e.ID, e.Source.Kind)
	}
	if err := e.Refresh.Validate(); err != nil {
		return fmt.Errorf("entity %s: %w", e.ID, err)
	}
	for i, c := range e.Conditions {
		switch c.Operator {
		case ">", "<", ">=", "<=", "==":
		default:
			return fmt.Errorf("entity %s: condition %d has unknown operator %q", e.ID, i, c.Operator)
		}
		if c.Metric == "" {
			return fmt.Errorf("entity %s: condition %d has no metric", e.ID, i)
		}
	}
	return nil
}

// TrendDirection is the coarse movement of a metric across a result.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// MetricValue is an aggregated value. NoData marks aggregations over an
// empty row set where 0 would be misleading (avg/min/max).
type MetricValue struct {
	Value  float64 `json:"value"`
	NoData bool    `json:"no_data,omitempty"`
}

// Summary carries per-metric totals, trend directions, and optional
// free-text insights supplied by an external collaborator.
type Summary struct {
	Totals   map[string]MetricValue    `json:"totals"`
	Trends   map[string]TrendDirection `json:"trends,omitempty"`
	Insights []string                  `json:"insights,omitempty"`
}

// Column describes one ordered output column of a ResultTable.
type Column struct {
	Field  string        `json:"field"`
	Label  string        `json:"label"`
	Type   DimensionType `json:"type"`
	Format *FormatSpec   `json:"format,omitempty"`
}

// ResultTable is the normalized column/row output of aggregation.
type ResultTable struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
	Summary *Summary `json:"summary,omitempty"`
}

// CachedResult is the last successful result produced for an entity.
type CachedResult struct {
	EntityID   string        `json:"entity_id"`
	Table      *ResultTable  `json:"table"`
	ProducedAt time.Time     `json:"produced_at"`
	Duration   time.Duration `json:"duration"`
	FromCache  bool          `json:"from_cache"`
}

// Age returns how old the result is relative to now.
func (c *CachedResult) Age(now time.Time) time.Duration {
	return now.Sub(c.ProducedAt)
}

// DashboardSettings overrides the system-wide pipeline defaults for one
// dashboard's widgets. Zero values fall back to the configured defaults.
type DashboardSettings struct {
	AlertDedupMinutes int `json:"alert_dedup_minutes,omitempty"`
	CacheTTLSeconds   int `json:"cache_ttl_seconds,omitempty"`
}

// DedupWindow returns the dashboard's alert dedup window, or fallback
// when unset.
func (s *DashboardSettings) DedupWindow(fallback time.Duration) time.Duration {
	if s == nil || s.AlertDedupMinutes <= 0 {
		return fallback
	}
	return time.Duration(s.AlertDedupMinutes) * time.Minute
}

// CacheTTL returns the dashboard's default result max age, or fallback
// when unset.
func (s *DashboardSettings) CacheTTL(fallback time.Duration) time.Duration {
	if s == nil || s.CacheTTLSeconds <= 0 {
		return fallback
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}
