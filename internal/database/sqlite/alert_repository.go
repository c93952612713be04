package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
)

// AlertRepository implements repositories.AlertRepository.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *sqlx.DB) repositories.AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, entity_id, condition_id, metric, observed, threshold, operator, severity, timestamp, acknowledged, acknowledged_by, acknowledged_at`

// CreateEvent stores a fired alert event.
func (r *AlertRepository) CreateEvent(ctx context.Context, event *types.AlertEvent) error {
	model := models.AlertEventFromType(event)

	query := `
		INSERT INTO alert_events (` + alertColumns + `)
		VALUES (:id, :entity_id, :condition_id, :metric, :observed, :threshold, :operator, :severity, :timestamp, :acknowledged, :acknowledged_by, :acknowledged_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("failed to create alert event %s: %w", event.ID, err)
	}
	return nil
}

// GetEvent retrieves one alert event by ID.
func (r *AlertRepository) GetEvent(ctx context.Context, id string) (*types.AlertEvent, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_events WHERE id = ?`

	model := &models.AlertEvent{}
	err := r.db.GetContext(ctx, model, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert event not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert event: %w", err)
	}
	return model.ToType(), nil
}

// GetEvents retrieves alert events matching the filter, newest first.
func (r *AlertRepository) GetEvents(ctx context.Context, filter repositories.AlertFilter) ([]*types.AlertEvent, error) {
	var conditions []string
	var args []interface{}

	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Unacknowledged {
		conditions = append(conditions, "acknowledged = 0")
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT ` + alertColumns + ` FROM alert_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []*models.AlertEvent
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}

	events := make([]*types.AlertEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.ToType())
	}
	return events, nil
}

// AcknowledgeEvent marks an event acknowledged. Acknowledging an already
// acknowledged event is an error so the first acknowledger is kept.
func (r *AlertRepository) AcknowledgeEvent(ctx context.Context, id, who string, at time.Time) error {
	query := `
		UPDATE alert_events
		SET acknowledged = 1, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0
	`
	result, err := r.db.ExecContext(ctx, query, who, at, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert event %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check acknowledge result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert event %s not found or already acknowledged", id)
	}
	return nil
}
