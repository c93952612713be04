package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// RunFunc executes one entity's refresh pipeline. The scheduler never
// inspects the outcome: a failed run is the engine's concern and must
// not stop future runs.
type RunFunc func(ctx context.Context, entityID string)

// Config contains scheduler configuration.
type Config struct {
	Timezone string
	Workers  int
	QueueLen int
}

// scheduledEntity is the timer handle for one registered entity.
type scheduledEntity struct {
	EntityID string
	Kind     types.EntityKind
	EntryID  cron.EntryID
	LastRun  *time.Time
	RunCount int64

	// flight guards against overlapping runs of the same entity. The
	// pointer is carried across policy replacements, so a tick queued
	// under the old timer still blocks the replacement timer's ticks
	// until it drains.
	flight *atomic.Bool
}

// queuedRun is one drained tick. It carries the flight flag the tick
// acquired so the worker releases that exact flag, not whichever flag
// the entity holds by the time the tick drains.
type queuedRun struct {
	entityID string
	flight   *atomic.Bool
}

// Scheduler owns every per-entity refresh timer. Fixed-interval widgets
// and cron-style report schedules share a single cron timer wheel; fires
// are drained by a fixed pool of workers through one queue. Replacing an
// entity's policy removes the old cron entry and arms the new one under
// one lock, so no window exists where both could fire.
type Scheduler struct {
	cron     *cron.Cron
	entries  map[string]*scheduledEntity
	timezone *time.Location
	logger   *logrus.Logger
	mu       sync.Mutex
	running  bool

	queue   chan queuedRun
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	run     RunFunc
}

// New creates a scheduler. The RunFunc is invoked from worker
// goroutines, one in-flight run per entity at most.
func New(cfg Config, run RunFunc, logger *logrus.Logger) (*Scheduler, error) {
	timezone := time.UTC
	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.WithError(err).Warnf("Invalid timezone %s, using UTC", cfg.Timezone)
		} else {
			timezone = tz
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueLen := cfg.QueueLen
	if queueLen <= 0 {
		queueLen = 256
	}

	cronInstance := cron.New(
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cronInstance,
		entries:  make(map[string]*scheduledEntity),
		timezone: timezone,
		logger:   logger,
		queue:    make(chan queuedRun, queueLen),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		run:      run,
	}, nil
}

// Start launches the worker pool and the timer wheel.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.cron.Start()
	s.running = true
	s.logger.WithField("workers", s.workers).Info("Refresh scheduler started")

	return nil
}

// Stop halts the timer wheel and waits for in-flight runs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timeout waiting for scheduled jobs to complete")
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn("Timeout waiting for workers to drain")
	}

	s.logger.Info("Refresh scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule arms (or atomically re-arms) the timer for an entity
// according to its refresh policy.
func (s *Scheduler) Schedule(ent *types.Entity) error {
	if err := ent.Refresh.Validate(); err != nil {
		return err
	}

	var schedule cron.Schedule
	if ent.Refresh.IntervalSeconds > 0 {
		schedule = cron.Every(time.Duration(ent.Refresh.IntervalSeconds) * time.Second)
	} else {
		if err := ValidateSchedule(ent.Refresh.Schedule); err != nil {
			return err
		}
		schedule = &reportSchedule{spec: *ent.Refresh.Schedule}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace-policy is atomic: old entry gone before the new one
	// exists, and the flight flag survives the swap so a tick already
	// queued under the old timer keeps blocking the new one.
	flight := &atomic.Bool{}
	if existing, ok := s.entries[ent.ID]; ok {
		s.cron.Remove(existing.EntryID)
		delete(s.entries, ent.ID)
		flight = existing.flight
	}

	handle := &scheduledEntity{EntityID: ent.ID, Kind: ent.Kind, flight: flight}
	handle.EntryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(handle)
	}))
	s.entries[ent.ID] = handle

	s.logger.WithFields(logrus.Fields{
		"entity_id": ent.ID,
		"kind":      ent.Kind,
		"next_run":  s.cron.Entry(handle.EntryID).Next,
	}).Info("Entity scheduled")

	return nil
}

// Unschedule cancels an entity's timer.
func (s *Scheduler) Unschedule(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.entries[entityID]
	if !exists {
		return fmt.Errorf("entity %s is not scheduled", entityID)
	}

	s.cron.Remove(handle.EntryID)
	delete(s.entries, entityID)

	s.logger.WithField("entity_id", entityID).Info("Entity unscheduled")
	return nil
}

// IsScheduled reports whether an entity currently has a timer.
func (s *Scheduler) IsScheduled(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[entityID]
	return ok
}

// NextRun returns the next fire instant for an entity.
func (s *Scheduler) NextRun(entityID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.entries[entityID]
	if !exists {
		return time.Time{}, fmt.Errorf("entity %s is not scheduled", entityID)
	}
	return s.cron.Entry(handle.EntryID).Next, nil
}

// Statistics returns scheduler state for diagnostics.
func (s *Scheduler) Statistics() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"running":        s.running,
		"total_entities": len(s.entries),
		"timezone":       s.timezone.String(),
		"cron_entries":   len(s.cron.Entries()),
		"queue_depth":    len(s.queue),
	}
}

// fire is called by the timer wheel. It enqueues the entity for the
// worker pool, skipping the tick when the previous run of this entity
// is still in flight.
func (s *Scheduler) fire(handle *scheduledEntity) {
	if !handle.flight.CompareAndSwap(false, true) {
		s.logger.WithField("entity_id", handle.EntityID).Debug("Previous run still in flight, skipping tick")
		return
	}

	select {
	case s.queue <- queuedRun{entityID: handle.EntityID, flight: handle.flight}:
	default:
		handle.flight.Store(false)
		s.logger.WithField("entity_id", handle.EntityID).Warn("Execution queue full, dropping tick")
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.queue:
			s.execute(job)
		case <-s.ctx.Done():
			return
		}
	}
}

// execute runs one entity pipeline. The flight flag the tick acquired
// is always released, success or failure, so the entity returns to the
// scheduled state and its future ticks keep firing.
func (s *Scheduler) execute(job queuedRun) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("entity_id", job.entityID).Errorf("Panic in scheduled run: %v", r)
		}
		job.flight.Store(false)
	}()

	s.mu.Lock()
	handle, exists := s.entries[job.entityID]
	if exists && handle.flight == job.flight {
		now := time.Now()
		handle.LastRun = &now
		atomic.AddInt64(&handle.RunCount, 1)
	} else {
		// Unscheduled, or unscheduled and re-registered, between fire
		// and drain; the tick belongs to a dead registration
		exists = false
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	start := time.Now()
	s.run(s.ctx, job.entityID)

	s.logger.WithFields(logrus.Fields{
		"entity_id": job.entityID,
		"duration":  time.Since(start),
	}).Debug("Scheduled run completed")
}

// reportSchedule adapts a cron-style report schedule to the timer
// wheel. Next is recomputed after every fire, so a failed execution
// still gets its following run.
type reportSchedule struct {
	spec types.Schedule
}

func (r *reportSchedule) Next(t time.Time) time.Time {
	// Ask for the instant strictly after t so consecutive calls advance
	next, err := ComputeNextRun(&r.spec, t.Add(time.Second))
	if err != nil {
		return time.Time{}
	}
	return next
}
