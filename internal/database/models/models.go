package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// Dashboard groups widgets under a shared subscription topic. Settings
// is an optional JSON blob overriding pipeline defaults for this
// dashboard's widgets.
type Dashboard struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Owner       sql.NullString  `json:"owner" db:"owner"`
	Description sql.NullString  `json:"description" db:"description"`
	Settings    json.RawMessage `json:"settings,omitempty" db:"settings"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ParseSettings decodes the settings blob. A missing blob yields nil
// settings, which every consumer treats as "use the defaults".
func (d *Dashboard) ParseSettings() (*types.DashboardSettings, error) {
	if len(d.Settings) == 0 {
		return nil, nil
	}
	settings := &types.DashboardSettings{}
	if err := json.Unmarshal(d.Settings, settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for dashboard %s: %w", d.ID, err)
	}
	return settings, nil
}

// Entity is the stored form of a widget or report definition. Parts
// of the definition that have no relational shape live in JSON blob
// columns.
type Entity struct {
	ID          string          `json:"id" db:"id"`
	Kind        string          `json:"kind" db:"kind"`
	DashboardID sql.NullString  `json:"dashboard_id" db:"dashboard_id"`
	Name        string          `json:"name" db:"name"`
	Owner       sql.NullString  `json:"owner" db:"owner"`
	Source      json.RawMessage `json:"source" db:"source"`
	Metrics     json.RawMessage `json:"metrics" db:"metrics"`
	Dimensions  json.RawMessage `json:"dimensions" db:"dimensions"`
	Filters     json.RawMessage `json:"filters" db:"filters"`
	Refresh     json.RawMessage `json:"refresh" db:"refresh"`
	Conditions  json.RawMessage `json:"conditions" db:"conditions"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// AlertEvent is the stored form of a fired alert.
type AlertEvent struct {
	ID             string         `json:"id" db:"id"`
	EntityID       string         `json:"entity_id" db:"entity_id"`
	ConditionID    string         `json:"condition_id" db:"condition_id"`
	Metric         string         `json:"metric" db:"metric"`
	Observed       float64        `json:"observed" db:"observed"`
	Threshold      float64        `json:"threshold" db:"threshold"`
	Operator       string         `json:"operator" db:"operator"`
	Severity       string         `json:"severity" db:"severity"`
	Timestamp      time.Time      `json:"timestamp" db:"timestamp"`
	Acknowledged   bool           `json:"acknowledged" db:"acknowledged"`
	AcknowledgedBy sql.NullString `json:"acknowledged_by" db:"acknowledged_by"`
	AcknowledgedAt sql.NullTime   `json:"acknowledged_at" db:"acknowledged_at"`
}

// EntityFromType converts a domain entity into its stored form.
func EntityFromType(ent *types.Entity) (*Entity, error) {
	model := &Entity{
		ID:     ent.ID,
		Kind:   string(ent.Kind),
		Name:   ent.Name,
		Active: ent.Active,
	}
	if ent.DashboardID != "" {
		model.DashboardID = sql.NullString{String: ent.DashboardID, Valid: true}
	}
	if ent.Owner != "" {
		model.Owner = sql.NullString{String: ent.Owner, Valid: true}
	}

	blobs := []struct {
		name string
		src  interface{}
		dst  *json.RawMessage
	}{
		{"source", ent.Source, &model.Source},
		{"metrics", ent.Metrics, &model.Metrics},
		{"dimensions", ent.Dimensions, &model.Dimensions},
		{"filters", ent.Filters, &model.Filters},
		{"refresh", ent.Refresh, &model.Refresh},
		{"conditions", ent.Conditions, &model.Conditions},
	}
	for _, b := range blobs {
		raw, err := json.Marshal(b.src)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entity %s: %w", b.name, err)
		}
		*b.dst = raw
	}

	return model, nil
}

// ToType converts a stored entity back into its domain form.
func (m *Entity) ToType() (*types.Entity, error) {
	ent := &types.Entity{
		ID:        m.ID,
		Kind:      types.EntityKind(m.Kind),
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.DashboardID.Valid {
		ent.DashboardID = m.DashboardID.String
	}
	if m.Owner.Valid {
		ent.Owner = m.Owner.String
	}

	blobs := []struct {
		name string
		raw  json.RawMessage
		dst  interface{}
	}{
		{"source", m.Source, &ent.Source},
		{"metrics", m.Metrics, &ent.Metrics},
		{"dimensions", m.Dimensions, &ent.Dimensions},
		{"filters", m.Filters, &ent.Filters},
		{"refresh", m.Refresh, &ent.Refresh},
		{"conditions", m.Conditions, &ent.Conditions},
	}
	for _, b := range blobs {
		if len(b.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(b.raw, b.dst); err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", b.name, err)
		}
	}

	return ent, nil
}

// AlertEventFromType converts a domain alert event into its stored form.
func AlertEventFromType(ev *types.AlertEvent) *AlertEvent {
	model := &AlertEvent{
		ID:           ev.ID,
		EntityID:     ev.EntityID,
		ConditionID:  ev.ConditionID,
		Metric:       ev.Metric,
		Observed:     ev.Observed,
		Threshold:    ev.Threshold,
		Operator:     ev.Operator,
		Severity:     string(ev.Severity),
		Timestamp:    ev.Timestamp,
		Acknowledged: ev.Acknowledged,
	}
	if ev.AcknowledgedBy != "" {
		model.AcknowledgedBy = sql.NullString{String: ev.AcknowledgedBy, Valid: true}
	}
	if ev.AcknowledgedAt != nil {
		model.AcknowledgedAt = sql.NullTime{Time: *ev.AcknowledgedAt, Valid: true}
	}
	return model
}

// ToType converts a stored alert event back into its domain form.
func (m *AlertEvent) ToType() *types.AlertEvent {
	ev := &types.AlertEvent{
		ID:           m.ID,
		EntityID:     m.EntityID,
		ConditionID:  m.ConditionID,
		Metric:       m.Metric,
		Observed:     m.Observed,
		Threshold:    m.Threshold,
		Operator:     m.Operator,
		Severity:     types.Severity(m.Severity),
		Timestamp:    m.Timestamp,
		Acknowledged: m.Acknowledged,
	}
	if m.AcknowledgedBy.Valid {
		ev.AcknowledgedBy = m.AcknowledgedBy.String
	}
	if m.AcknowledgedAt.Valid {
		at := m.AcknowledgedAt.Time
		ev.AcknowledgedAt = &at
	}
	return ev
}
