package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
)

// DashboardRepository implements repositories.DashboardRepository.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) repositories.DashboardRepository {
	return &DashboardRepository{db: db}
}

// Create stores a new dashboard.
func (r *DashboardRepository) Create(ctx context.Context, dashboard *models.Dashboard) error {
	now := time.Now()
	dashboard.CreatedAt = now
	dashboard.UpdatedAt = now

	query := `
		INSERT INTO dashboards (id, name, owner, description, settings, created_at, updated_at)
		VALUES (:id, :name, :owner, :description, :settings, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, dashboard); err != nil {
		return fmt.Errorf("failed to create dashboard %s: %w", dashboard.ID, err)
	}
	return nil
}

// GetByID retrieves a dashboard by ID.
func (r *DashboardRepository) GetByID(ctx context.Context, id string) (*models.Dashboard, error) {
	query := `SELECT id, name, owner, description, settings, created_at, updated_at FROM dashboards WHERE id = ?`

	dashboard := &models.Dashboard{}
	err := r.db.GetContext(ctx, dashboard, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dashboard not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return dashboard, nil
}

// GetAll retrieves all dashboards.
func (r *DashboardRepository) GetAll(ctx context.Context) ([]*models.Dashboard, error) {
	query := `SELECT id, name, owner, description, settings, created_at, updated_at FROM dashboards ORDER BY name`

	var dashboards []*models.Dashboard
	if err := r.db.SelectContext(ctx, &dashboards, query); err != nil {
		return nil, fmt.Errorf("failed to query dashboards: %w", err)
	}
	return dashboards, nil
}

// Update replaces a dashboard's mutable fields.
func (r *DashboardRepository) Update(ctx context.Context, dashboard *models.Dashboard) error {
	dashboard.UpdatedAt = time.Now()

	query := `
		UPDATE dashboards
		SET name = :name, owner = :owner, description = :description, settings = :settings, updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, dashboard)
	if err != nil {
		return fmt.Errorf("failed to update dashboard %s: %w", dashboard.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("dashboard not found with ID: %s", dashboard.ID)
	}
	return nil
}

// Delete removes a dashboard. Its widgets are removed by the foreign
// key cascade.
func (r *DashboardRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("dashboard not found with ID: %s", id)
	}
	return nil
}
