package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/models"
	"github.com/pulseboard/pulseboard-backend-go/internal/database/repositories"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE dashboards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT,
			description TEXT,
			settings TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			dashboard_id TEXT,
			name TEXT NOT NULL,
			owner TEXT,
			source TEXT NOT NULL,
			metrics TEXT NOT NULL,
			dimensions TEXT,
			filters TEXT,
			refresh TEXT NOT NULL,
			conditions TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE alert_events (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL,
			condition_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			observed REAL NOT NULL,
			threshold REAL NOT NULL,
			operator TEXT NOT NULL,
			severity TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by TEXT,
			acknowledged_at DATETIME
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func sampleWidget(id, dashboardID string) *types.Entity {
	return &types.Entity{
		ID:          id,
		Kind:        types.KindWidget,
		DashboardID: dashboardID,
		Name:        "Revenue by region",
		Owner:       "ops",
		Source: types.DataSourceDescriptor{
			Kind:      types.SourceMetrics,
			MetricIDs: []string{"revenue"},
		},
		Metrics: []types.MetricSpec{
			{Field: "amount", Method: types.AggSum, Label: "Total"},
		},
		Dimensions: []types.DimensionSpec{
			{Field: "region", Type: types.DimString},
		},
		Filters: []types.FilterSpec{
			{Field: "region", Operator: types.OpNotEquals, Value: "test"},
		},
		Refresh: types.RefreshPolicy{IntervalSeconds: 60},
		Conditions: []types.AlertCondition{
			{ID: "c1", EntityID: id, Metric: "amount", Operator: ">", Threshold: 1000, Severity: types.SeverityWarning},
		},
		Active: true,
	}
}

func TestEntityRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	widget := sampleWidget("w1", "d1")
	require.NoError(t, repo.Create(ctx, widget))
	assert.False(t, widget.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "w1")
	require.NoError(t, err)

	assert.Equal(t, widget.ID, got.ID)
	assert.Equal(t, types.KindWidget, got.Kind)
	assert.Equal(t, "d1", got.DashboardID)
	assert.Equal(t, widget.Source, got.Source)
	assert.Equal(t, widget.Metrics, got.Metrics)
	assert.Equal(t, widget.Dimensions, got.Dimensions)
	assert.Equal(t, widget.Filters, got.Filters)
	assert.Equal(t, widget.Refresh, got.Refresh)
	assert.Equal(t, widget.Conditions, got.Conditions)
	assert.True(t, got.Active)
}

func TestEntityRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestEntityRepository_GetByDashboard(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleWidget("w1", "d1")))
	require.NoError(t, repo.Create(ctx, sampleWidget("w2", "d1")))
	require.NoError(t, repo.Create(ctx, sampleWidget("w3", "d2")))

	widgets, err := repo.GetByDashboard(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, "w1", widgets[0].ID)
	assert.Equal(t, "w2", widgets[1].ID)
}

func TestEntityRepository_GetByKind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleWidget("w1", "d1")))

	report := sampleWidget("r1", "")
	report.Kind = types.KindReport
	report.DashboardID = ""
	report.Refresh = types.RefreshPolicy{
		Schedule: &types.Schedule{Frequency: types.FreqDaily, TimeOfDay: "09:00"},
	}
	require.NoError(t, repo.Create(ctx, report))

	reports, err := repo.GetByKind(ctx, types.KindReport)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "r1", reports[0].ID)
	require.NotNil(t, reports[0].Refresh.Schedule)
	assert.Equal(t, types.FreqDaily, reports[0].Refresh.Schedule.Frequency)
}

func TestEntityRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	widget := sampleWidget("w1", "d1")
	require.NoError(t, repo.Create(ctx, widget))

	widget.Name = "Renamed"
	widget.Refresh = types.RefreshPolicy{IntervalSeconds: 300}
	require.NoError(t, repo.Update(ctx, widget))

	got, err := repo.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 300, got.Refresh.IntervalSeconds)

	missing := sampleWidget("nope", "d1")
	assert.Error(t, repo.Update(ctx, missing))
}

func TestEntityRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleWidget("w1", "d1")))
	require.NoError(t, repo.Delete(ctx, "w1"))
	assert.Error(t, repo.Delete(ctx, "w1"))

	_, err := repo.GetByID(ctx, "w1")
	assert.Error(t, err)
}

func TestDashboardRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDashboardRepository(db)
	ctx := context.Background()

	dash := &models.Dashboard{ID: "d1", Name: "Sales"}
	require.NoError(t, repo.Create(ctx, dash))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Sales", got.Name)

	got.Name = "Sales EMEA"
	require.NoError(t, repo.Update(ctx, got))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Sales EMEA", all[0].Name)

	require.NoError(t, repo.Delete(ctx, "d1"))
	_, err = repo.GetByID(ctx, "d1")
	assert.Error(t, err)
}

func TestDashboardRepository_SettingsRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDashboardRepository(db)
	ctx := context.Background()

	dash := &models.Dashboard{
		ID:       "d1",
		Name:     "Ops",
		Settings: json.RawMessage(`{"alert_dedup_minutes":15,"cache_ttl_seconds":30}`),
	}
	require.NoError(t, repo.Create(ctx, dash))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	settings, err := got.ParseSettings()
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, 15*time.Minute, settings.DedupWindow(time.Hour))
	assert.Equal(t, 30*time.Second, settings.CacheTTL(time.Minute))

	// A dashboard without settings falls back to the defaults
	bare := &models.Dashboard{ID: "d2", Name: "Bare"}
	require.NoError(t, repo.Create(ctx, bare))
	got, err = repo.GetByID(ctx, "d2")
	require.NoError(t, err)
	settings, err = got.ParseSettings()
	require.NoError(t, err)
	assert.Nil(t, settings)
	assert.Equal(t, time.Hour, settings.DedupWindow(time.Hour))
	assert.Equal(t, time.Minute, settings.CacheTTL(time.Minute))
}

func TestAlertRepository_CreateAndFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlertRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []*types.AlertEvent{
		{ID: "a1", EntityID: "w1", ConditionID: "c1", Metric: "amount", Observed: 1500, Threshold: 1000, Operator: ">", Severity: types.SeverityWarning, Timestamp: base},
		{ID: "a2", EntityID: "w1", ConditionID: "c2", Metric: "errors", Observed: 9, Threshold: 5, Operator: ">", Severity: types.SeverityCritical, Timestamp: base.Add(time.Hour)},
		{ID: "a3", EntityID: "w2", ConditionID: "c3", Metric: "amount", Observed: 2000, Threshold: 1000, Operator: ">", Severity: types.SeverityWarning, Timestamp: base.Add(2 * time.Hour)},
	}
	for _, ev := range events {
		require.NoError(t, repo.CreateEvent(ctx, ev))
	}

	all, err := repo.GetEvents(ctx, repositories.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID, "newest first")

	byEntity, err := repo.GetEvents(ctx, repositories.AlertFilter{EntityID: "w1"})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	critical, err := repo.GetEvents(ctx, repositories.AlertFilter{Severity: "critical"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "a2", critical[0].ID)

	since, err := repo.GetEvents(ctx, repositories.AlertFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "a3", since[0].ID)

	limited, err := repo.GetEvents(ctx, repositories.AlertFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAlertRepository_Acknowledge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlertRepository(db)
	ctx := context.Background()

	ev := &types.AlertEvent{
		ID: "a1", EntityID: "w1", ConditionID: "c1", Metric: "amount",
		Observed: 1500, Threshold: 1000, Operator: ">",
		Severity: types.SeverityWarning, Timestamp: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))

	ackAt := time.Now().UTC()
	require.NoError(t, repo.AcknowledgeEvent(ctx, "a1", "alice", ackAt))

	got, err := repo.GetEvent(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assert.Equal(t, "alice", got.AcknowledgedBy)
	require.NotNil(t, got.AcknowledgedAt)

	unacked, err := repo.GetEvents(ctx, repositories.AlertFilter{Unacknowledged: true})
	require.NoError(t, err)
	assert.Empty(t, unacked)

	// Second acknowledge keeps the first acknowledger
	assert.Error(t, repo.AcknowledgeEvent(ctx, "a1", "bob", time.Now()))
	assert.Error(t, repo.AcknowledgeEvent(ctx, "missing", "alice", time.Now()))
}
