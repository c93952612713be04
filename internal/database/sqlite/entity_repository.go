package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
)

// EntityRepository implements repositories.EntityRepository.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *sqlx.DB) repositories.EntityRepository {
	return &EntityRepository{db: db}
}

const entityColumns = `id, kind, dashboard_id, name, owner, source, metrics, dimensions, filters, refresh, conditions, active, created_at, updated_at`

// Create stores a new entity definition.
func (r *EntityRepository) Create(ctx context.Context, entity *types.Entity) error {
	model, err := models.EntityFromType(entity)
	if err != nil {
		return err
	}

	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	query := `
		INSERT INTO entities (` + entityColumns + `)
		VALUES (:id, :kind, :dashboard_id, :name, :owner, :source, :metrics, :dimensions, :filters, :refresh, :conditions, :active, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("failed to create entity %s: %w", entity.ID, err)
	}

	entity.CreatedAt = now
	entity.UpdatedAt = now
	return nil
}

// GetByID retrieves an entity definition by ID.
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`

	model := &models.Entity{}
	err := r.db.GetContext(ctx, model, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return model.ToType()
}

// GetByDashboard retrieves all widgets of a dashboard.
func (r *EntityRepository) GetByDashboard(ctx context.Context, dashboardID string) ([]*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE dashboard_id = ? ORDER BY id`
	return r.selectEntities(ctx, query, dashboardID)
}

// GetByKind retrieves all entities of one kind.
func (r *EntityRepository) GetByKind(ctx context.Context, kind types.EntityKind) ([]*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ? ORDER BY id`
	return r.selectEntities(ctx, query, string(kind))
}

// GetAll retrieves every entity definition.
func (r *EntityRepository) GetAll(ctx context.Context) ([]*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY id`
	return r.selectEntities(ctx, query)
}

func (r *EntityRepository) selectEntities(ctx context.Context, query string, args ...interface{}) ([]*types.Entity, error) {
	var rows []*models.Entity
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	entities := make([]*types.Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := row.ToType()
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

// Update replaces an entity definition.
func (r *EntityRepository) Update(ctx context.Context, entity *types.Entity) error {
	model, err := models.EntityFromType(entity)
	if err != nil {
		return err
	}
	model.UpdatedAt = time.Now()

	query := `
		UPDATE entities
		SET kind = :kind, dashboard_id = :dashboard_id, name = :name, owner = :owner,
		    source = :source, metrics = :metrics, dimensions = :dimensions, filters = :filters,
		    refresh = :refresh, conditions = :conditions, active = :active, updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		return fmt.Errorf("failed to update entity %s: %w", entity.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entity not found with ID: %s", entity.ID)
	}

	entity.UpdatedAt = model.UpdatedAt
	return nil
}

// Delete removes an entity definition.
func (r *EntityRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entity not found with ID: %s", id)
	}
	return nil
}
