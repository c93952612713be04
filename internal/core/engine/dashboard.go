package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// WidgetResult is one widget's outcome inside a dashboard fetch. Either
// Result or Error is set.
type WidgetResult struct {
	EntityID string              `json:"entity_id"`
	Result   *types.CachedResult `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// DashboardResult is the partial-failure aggregate of a dashboard
// fetch: every widget reports success or its own error.
type DashboardResult struct {
	DashboardID string         `json:"dashboard_id"`
	Widgets     []WidgetResult `json:"widgets"`
}

// ExecuteDashboard runs every widget of a dashboard concurrently and
// collects per-widget outcomes. One failing widget never hides the
// others.
func (e *Engine) ExecuteDashboard(ctx context.Context, dashboardID string, maxAge time.Duration) (*DashboardResult, error) {
	ids := e.registry.dashboardWidgets(dashboardID)

	result := &DashboardResult{
		DashboardID: dashboardID,
		Widgets:     make([]WidgetResult, len(ids)),
	}
	if len(ids) == 0 {
		return result, nil
	}

	limit := e.defaults.MaxWidgetConcurrency
	if limit <= 0 {
		limit = len(ids)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(slot int, entityID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			widget := WidgetResult{EntityID: entityID}
			res, err := e.Execute(ctx, entityID, maxAge)
			if err != nil {
				widget.Error = err.Error()
			} else {
				widget.Result = res
			}
			result.Widgets[slot] = widget
		}(i, id)
	}
	wg.Wait()

	return result, nil
}
