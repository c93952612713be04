package alerts

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// equalityEpsilon bounds the == threshold comparison on floats.
const equalityEpsilon = 1e-9

// Evaluator checks threshold conditions against freshly produced
// results. Repeated firings of the same condition inside the dedup
// window are suppressed; the last-fired timestamps live only in memory.
type Evaluator struct {
	mu            sync.Mutex
	lastFired     map[string]time.Time
	defaultWindow time.Duration
	logger        *logrus.Logger
	nowFn         func() time.Time
}

// NewEvaluator creates an evaluator with the given default dedup window.
func NewEvaluator(defaultWindow time.Duration, logger *logrus.Logger) *Evaluator {
	return &Evaluator{
		lastFired:     make(map[string]time.Time),
		defaultWindow: defaultWindow,
		logger:        logger,
		nowFn:         time.Now,
	}
}

// Evaluate applies each condition to the result's summary totals and
// returns an event per condition that newly transitioned into a
// triggered state. A window of zero falls back to the default. A metric
// absent from the summary makes its condition not evaluable and it is
// skipped silently.
func (e *Evaluator) Evaluate(entityID string, table *types.ResultTable, conditions []types.AlertCondition, window time.Duration) []*types.AlertEvent {
	if table == nil || table.Summary == nil || len(conditions) == 0 {
		return nil
	}
	if window <= 0 {
		window = e.defaultWindow
	}

	now := e.nowFn()
	var events []*types.AlertEvent

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cond := range conditions {
		total, ok := table.Summary.Totals[cond.Metric]
		if !ok || total.NoData {
			continue
		}
		if !compare(total.Value, cond.Operator, cond.Threshold) {
			continue
		}

		if fired, seen := e.lastFired[cond.ID]; seen && now.Sub(fired) < window {
			e.logger.WithFields(logrus.Fields{
				"entity_id":    entityID,
				"condition_id": cond.ID,
			}).Debug("Alert suppressed inside dedup window")
			continue
		}
		e.lastFired[cond.ID] = now

		events = append(events, &types.AlertEvent{
			ID:          uuid.New().String(),
			EntityID:    entityID,
			ConditionID: cond.ID,
			Metric:      cond.Metric,
			Observed:    total.Value,
			Threshold:   cond.Threshold,
			Operator:    cond.Operator,
			Severity:    cond.Severity,
			Timestamp:   now,
		})

		e.logger.WithFields(logrus.Fields{
			"entity_id":    entityID,
			"condition_id": cond.ID,
			"metric":       cond.Metric,
			"observed":     total.Value,
			"threshold":    cond.Threshold,
			"severity":     cond.Severity,
		}).Info("Alert condition triggered")
	}

	return events
}

// Forget drops the dedup state for an entity's conditions, used when the
// entity is removed.
func (e *Evaluator) Forget(conditions []types.AlertCondition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cond := range conditions {
		delete(e.lastFired, cond.ID)
	}
}

func compare(observed float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return observed > threshold
	case "<":
		return observed < threshold
	case ">=":
		return observed >= threshold
	case "<=":
		return observed <= threshold
	case "==":
		return math.Abs(observed-threshold) < equalityEpsilon
	default:
		return false
	}
}
