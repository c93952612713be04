package alerts

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

func resultWithTotal(metric string, value float64) *types.ResultTable {
	return &types.ResultTable{
		Summary: &types.Summary{
			Totals: map[string]types.MetricValue{metric: {Value: value}},
		},
	}
}

func testEvaluator(window time.Duration) *Evaluator {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewEvaluator(window, log)
}

func TestEvaluator_Operators(t *testing.T) {
	tests := []struct {
		operator  string
		observed  float64
		threshold float64
		fires     bool
	}{
		{">", 10, 5, true},
		{">", 5, 5, false},
		{"<", 3, 5, true},
		{"<", 5, 5, false},
		{">=", 5, 5, true},
		{"<=", 5, 5, true},
		{"==", 5, 5, true},
		{"==", 5.0000001, 5, false},
		{"==", 5 + 1e-12, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			e := testEvaluator(time.Hour)
			cond := types.AlertCondition{
				ID: "c-" + tt.operator, EntityID: "w1", Metric: "v",
				Operator: tt.operator, Threshold: tt.threshold, Severity: types.SeverityWarning,
			}
			events := e.Evaluate("w1", resultWithTotal("v", tt.observed), []types.AlertCondition{cond}, 0)
			if tt.fires {
				require.Len(t, events, 1)
				assert.Equal(t, tt.observed, events[0].Observed)
				assert.Equal(t, types.SeverityWarning, events[0].Severity)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestEvaluator_DedupWindow(t *testing.T) {
	e := testEvaluator(time.Hour)
	now := time.Now()
	e.nowFn = func() time.Time { return now }

	cond := types.AlertCondition{ID: "c1", EntityID: "w1", Metric: "v", Operator: ">", Threshold: 1}
	conds := []types.AlertCondition{cond}

	// First firing produces an event
	events := e.Evaluate("w1", resultWithTotal("v", 10), conds, 0)
	require.Len(t, events, 1)

	// Inside the window: suppressed
	now = now.Add(30 * time.Minute)
	events = e.Evaluate("w1", resultWithTotal("v", 10), conds, 0)
	assert.Empty(t, events)

	// After the window elapses: fires again
	now = now.Add(31 * time.Minute)
	events = e.Evaluate("w1", resultWithTotal("v", 10), conds, 0)
	require.Len(t, events, 1)
}

func TestEvaluator_PerCallWindowOverride(t *testing.T) {
	e := testEvaluator(time.Hour)
	now := time.Now()
	e.nowFn = func() time.Time { return now }

	cond := types.AlertCondition{ID: "c1", EntityID: "w1", Metric: "v", Operator: ">", Threshold: 1}

	require.Len(t, e.Evaluate("w1", resultWithTotal("v", 5), []types.AlertCondition{cond}, time.Minute), 1)

	now = now.Add(2 * time.Minute)
	require.Len(t, e.Evaluate("w1", resultWithTotal("v", 5), []types.AlertCondition{cond}, time.Minute), 1)
}

func TestEvaluator_MissingMetricSkippedSilently(t *testing.T) {
	e := testEvaluator(time.Hour)
	cond := types.AlertCondition{ID: "c1", EntityID: "w1", Metric: "absent", Operator: ">", Threshold: 0}

	events := e.Evaluate("w1", resultWithTotal("v", 100), []types.AlertCondition{cond}, 0)
	assert.Empty(t, events)
}

func TestEvaluator_NoDataSkipped(t *testing.T) {
	e := testEvaluator(time.Hour)
	table := &types.ResultTable{
		Summary: &types.Summary{
			Totals: map[string]types.MetricValue{"v": {NoData: true}},
		},
	}
	cond := types.AlertCondition{ID: "c1", EntityID: "w1", Metric: "v", Operator: "<=", Threshold: 10}

	assert.Empty(t, e.Evaluate("w1", table, []types.AlertCondition{cond}, 0))
}

func TestEvaluator_IndependentConditions(t *testing.T) {
	e := testEvaluator(time.Hour)
	conds := []types.AlertCondition{
		{ID: "c1", EntityID: "w1", Metric: "v", Operator: ">", Threshold: 1, Severity: types.SeverityWarning},
		{ID: "c2", EntityID: "w1", Metric: "v", Operator: ">", Threshold: 5, Severity: types.SeverityCritical},
		{ID: "c3", EntityID: "w1", Metric: "v", Operator: "<", Threshold: 0},
	}

	events := e.Evaluate("w1", resultWithTotal("v", 10), conds, 0)
	require.Len(t, events, 2)
	// Severity carried through unchanged, no cross-condition dedup
	assert.Equal(t, types.SeverityWarning, events[0].Severity)
	assert.Equal(t, types.SeverityCritical, events[1].Severity)
}

func TestEvaluator_Forget(t *testing.T) {
	e := testEvaluator(time.Hour)
	cond := types.AlertCondition{ID: "c1", EntityID: "w1", Metric: "v", Operator: ">", Threshold: 1}

	require.Len(t, e.Evaluate("w1", resultWithTotal("v", 5), []types.AlertCondition{cond}, 0), 1)
	e.Forget([]types.AlertCondition{cond})
	require.Len(t, e.Evaluate("w1", resultWithTotal("v", 5), []types.AlertCondition{cond}, 0), 1)
}
