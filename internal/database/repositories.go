package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/sqlite"
)

// Repositories holds all repository instances.
type Repositories struct {
	Dashboard repositories.DashboardRepository
	Entity    repositories.EntityRepository
	Alert     repositories.AlertRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Dashboard: sqlite.NewDashboardRepository(db),
		Entity:    sqlite.NewEntityRepository(db),
		Alert:     sqlite.NewAlertRepository(db),
	}
}
