package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func intervalEntity(id string, seconds int) *types.Entity {
	return &types.Entity{
		ID:   id,
		Kind: types.KindWidget,
		Name: "test " + id,
		Source: types.DataSourceDescriptor{
			Kind: types.SourceStatic,
		},
		Refresh: types.RefreshPolicy{IntervalSeconds: seconds},
	}
}

func newTestScheduler(t *testing.T, run RunFunc) *Scheduler {
	t.Helper()
	s, err := New(Config{Workers: 2, QueueLen: 16}, run, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		if s.IsRunning() {
			_ = s.Stop()
		}
	})
	return s
}

func TestScheduler_IntervalFires(t *testing.T) {
	var count int64
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&count, 1)
	})

	require.NoError(t, s.Schedule(intervalEntity("w1", 1)))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_SingleFlight(t *testing.T) {
	var active, maxActive int64
	var mu sync.Mutex
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {
		current := atomic.AddInt64(&active, 1)
		mu.Lock()
		if current > maxActive {
			maxActive = current
		}
		mu.Unlock()
		// Outlive several ticks so overlapping fires would be visible
		time.Sleep(2500 * time.Millisecond)
		atomic.AddInt64(&active, -1)
	})

	require.NoError(t, s.Schedule(intervalEntity("slow", 1)))

	time.Sleep(4 * time.Second)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(1), maxActive, "same entity must never run concurrently")
}

func TestScheduler_RearmsAfterFailure(t *testing.T) {
	var count int64
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&count, 1)
		panic("simulated pipeline crash")
	})

	require.NoError(t, s.Schedule(intervalEntity("crashy", 1)))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) >= 2
	}, 5*time.Second, 50*time.Millisecond, "a failed run must not stop future runs")
}

func TestScheduler_ReplaceKeepsSingleFlight(t *testing.T) {
	var runs int64
	s, err := New(Config{Workers: 1, QueueLen: 16}, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&runs, 1)
	}, testLogger())
	require.NoError(t, err)

	// Workers are not started, so a fired tick stays queued and stands
	// in for a run still in flight while the policy is replaced
	require.NoError(t, s.Schedule(intervalEntity("w1", 3600)))
	s.mu.Lock()
	oldHandle := s.entries["w1"]
	s.mu.Unlock()

	s.fire(oldHandle)
	require.Len(t, s.queue, 1)

	require.NoError(t, s.Schedule(intervalEntity("w1", 60)))
	s.mu.Lock()
	newHandle := s.entries["w1"]
	s.mu.Unlock()

	// The replacement timer's tick must be blocked by the pending run
	s.fire(newHandle)
	assert.Len(t, s.queue, 1, "pending run must block the replacement timer's tick")

	// Drain the pending run; the next tick goes through again
	s.execute(<-s.queue)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	s.fire(newHandle)
	assert.Len(t, s.queue, 1)
	s.execute(<-s.queue)
	assert.Equal(t, int64(2), atomic.LoadInt64(&runs))
}

func TestScheduler_StaleTickAfterReregisterDoesNotRun(t *testing.T) {
	var runs int64
	s, err := New(Config{Workers: 1, QueueLen: 16}, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&runs, 1)
	}, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Schedule(intervalEntity("w1", 3600)))
	s.mu.Lock()
	oldHandle := s.entries["w1"]
	s.mu.Unlock()
	s.fire(oldHandle)

	// Unschedule and register afresh while the old tick is still queued
	require.NoError(t, s.Unschedule("w1"))
	require.NoError(t, s.Schedule(intervalEntity("w1", 3600)))

	// The stale tick belongs to the dead registration and must not run
	s.execute(<-s.queue)
	assert.Equal(t, int64(0), atomic.LoadInt64(&runs))

	// The fresh registration fires and runs normally
	s.mu.Lock()
	newHandle := s.entries["w1"]
	s.mu.Unlock()
	s.fire(newHandle)
	s.execute(<-s.queue)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))
}

func TestScheduler_ReplacePolicy(t *testing.T) {
	var hits int64
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&hits, 1)
	})

	ent := intervalEntity("w1", 1)
	require.NoError(t, s.Schedule(ent))
	require.True(t, s.IsScheduled("w1"))

	// Replace with a schedule far in the future; the old timer must be gone
	hour := 3600
	ent.Refresh = types.RefreshPolicy{IntervalSeconds: hour}
	require.NoError(t, s.Schedule(ent))

	next, err := s.NextRun("w1")
	require.NoError(t, err)
	assert.Greater(t, time.Until(next), 30*time.Minute)

	before := atomic.LoadInt64(&hits)
	time.Sleep(2 * time.Second)
	assert.Equal(t, before, atomic.LoadInt64(&hits), "replaced interval must not keep firing")
}

func TestScheduler_Unschedule(t *testing.T) {
	var hits int64
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {
		atomic.AddInt64(&hits, 1)
	})

	require.NoError(t, s.Schedule(intervalEntity("w1", 1)))
	require.NoError(t, s.Unschedule("w1"))
	assert.False(t, s.IsScheduled("w1"))
	assert.Error(t, s.Unschedule("w1"))

	before := atomic.LoadInt64(&hits)
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt64(&hits))
}

func TestScheduler_ReportSchedule(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {})

	ent := &types.Entity{
		ID:   "r1",
		Kind: types.KindReport,
		Name: "weekly revenue",
		Source: types.DataSourceDescriptor{
			Kind: types.SourceStatic,
		},
		Refresh: types.RefreshPolicy{
			Schedule: &types.Schedule{
				Frequency: types.FreqDaily,
				TimeOfDay: "09:00",
				Timezone:  "UTC",
			},
		},
	}
	require.NoError(t, s.Schedule(ent))

	next, err := s.NextRun("r1")
	require.NoError(t, err)
	assert.Equal(t, 9, next.UTC().Hour())
	assert.Equal(t, 0, next.UTC().Minute())
	assert.True(t, next.After(time.Now()))
}

func TestScheduler_InvalidPolicy(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {})

	ent := intervalEntity("bad", 0)
	assert.Error(t, s.Schedule(ent), "policy must carry either an interval or a schedule")

	ent.Refresh = types.RefreshPolicy{
		Schedule: &types.Schedule{Frequency: types.FreqDaily, TimeOfDay: "not-a-time"},
	}
	assert.Error(t, s.Schedule(ent))
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(Config{}, func(ctx context.Context, entityID string) {}, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	require.NoError(t, s.Stop())
	assert.Error(t, s.Stop())
}

func TestScheduler_Statistics(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context, entityID string) {})
	require.NoError(t, s.Schedule(intervalEntity("w1", 3600)))

	stats := s.Statistics()
	assert.Equal(t, true, stats["running"])
	assert.Equal(t, 1, stats["total_entities"])
}
