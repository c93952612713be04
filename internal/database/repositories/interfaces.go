package repositories

import (
	"context"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
)

// DashboardRepository manages dashboard records.
type DashboardRepository interface {
	Create(ctx context.Context, dashboard *models.Dashboard) error
	GetByID(ctx context.Context, id string) (*models.Dashboard, error)
	GetAll(ctx context.Context) ([]*models.Dashboard, error)
	Update(ctx context.Context, dashboard *models.Dashboard) error
	Delete(ctx context.Context, id string) error
}

// EntityRepository manages widget and report definitions. The stored
// form is a row with JSON blob columns; implementations convert to and
// from the domain type at the boundary.
type EntityRepository interface {
	Create(ctx context.Context, entity *types.Entity) error
	GetByID(ctx context.Context, id string) (*types.Entity, error)
	GetByDashboard(ctx context.Context, dashboardID string) ([]*types.Entity, error)
	GetByKind(ctx context.Context, kind types.EntityKind) ([]*types.Entity, error)
	GetAll(ctx context.Context) ([]*types.Entity, error)
	Update(ctx context.Context, entity *types.Entity) error
	Delete(ctx context.Context, id string) error
}

// AlertFilter narrows alert event queries. Zero values mean no
// constraint; Limit <= 0 means no limit.
type AlertFilter struct {
	EntityID       string
	Severity       string
	Unacknowledged bool
	Since          time.Time
	Limit          int
}

// AlertRepository manages fired alert events.
type AlertRepository interface {
	CreateEvent(ctx context.Context, event *types.AlertEvent) error
	GetEvent(ctx context.Context, id string) (*types.AlertEvent, error)
	GetEvents(ctx context.Context, filter AlertFilter) ([]*types.AlertEvent, error)
	AcknowledgeEvent(ctx context.Context, id, who string, at time.Time) error
}
