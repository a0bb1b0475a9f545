package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/metrics"
)

// registeredJob pairs a job definition with its bound function and the
// per-job execution bookkeeping (instance count, pending fires).
type registeredJob struct {
	def      Job
	fn       JobFunc
	entryID  cron.EntryID
	schedule cron.Schedule

	active          int
	pendingCoalesce bool
	deferred        []time.Time // misfire deadlines of fires waiting for a free slot
	mu              sync.Mutex
}

// Scheduler manages background jobs on a bounded worker pool, with
// trigger state persisted through a Store.
type Scheduler struct {
	cron         *cron.Cron
	store        *Store
	pool         *workerPool
	location     *time.Location
	jobs         map[string]*registeredJob
	running      bool
	stopping     bool
	drainTimeout time.Duration
	log          zerolog.Logger
	mu           sync.Mutex
}

// New creates a scheduler evaluating triggers in the given timezone.
func New(store *Store, location *time.Location, workers int, drainTimeout time.Duration, log zerolog.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(location)),
		store:        store,
		pool:         newWorkerPool(workers),
		location:     location,
		jobs:         make(map[string]*registeredJob),
		drainTimeout: drainTimeout,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

// schedule builds the cron schedule for a validated trigger.
func (s *Scheduler) buildSchedule(t Trigger) (cron.Schedule, error) {
	if t.Interval > 0 {
		return cron.Every(t.Interval), nil
	}
	return cron.ParseStandard(t.cronSpec())
}

// RegisterJob registers or replaces a job definition and binds its
// function. Idempotent by job ID: re-registering replaces the trigger and
// rebinds fn (last write wins). The definition is persisted so the
// schedule survives restarts. Malformed triggers are rejected
// synchronously and not persisted.
func (s *Scheduler) RegisterJob(job Job, fn JobFunc) error {
	if job.ID == "" {
		return fmt.Errorf("job id must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("job %s has no function bound", job.ID)
	}
	if err := job.Trigger.Validate(); err != nil {
		return fmt.Errorf("invalid trigger for job %s: %w", job.ID, err)
	}
	job.applyDefaults()

	sched, err := s.buildSchedule(job.Trigger)
	if err != nil {
		return fmt.Errorf("failed to build schedule for job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		s.cron.Remove(existing.entryID)
	}

	reg := &registeredJob{
		def:      job,
		fn:       fn,
		schedule: sched,
	}
	reg.entryID = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.fire(reg, false)
	}))
	s.jobs[job.ID] = reg

	next := sched.Next(time.Now().In(s.location))
	if err := s.store.Save(job, &next); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("trigger", job.Trigger.String()).
		Int("max_instances", job.MaxInstances).
		Bool("coalesce", job.Coalesce).
		Msg("Job registered")

	return nil
}

// Start reconciles persisted schedule state and begins firing triggers.
// A job whose persisted next fire was missed within its grace period
// fires once immediately; older misses are logged as misfires.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || s.stopping {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler already started or stopped, ignoring")
		return
	}

	now := time.Now().In(s.location)
	var fireNow []*registeredJob

	stored, err := s.store.Load()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load persisted jobs, starting without misfire recovery")
	}
	for _, sj := range stored {
		reg, ok := s.jobs[sj.ID]
		if !ok {
			s.log.Warn().
				Str("job_id", sj.ID).
				Msg("Persisted job has no bound function, leaving definition in place")
			continue
		}
		if sj.NextFireAt == nil || !sj.NextFireAt.Before(now) {
			continue
		}

		missedBy := now.Sub(*sj.NextFireAt)
		if missedBy <= reg.def.MisfireGrace {
			// Missed runs collapse into this single immediate fire
			fireNow = append(fireNow, reg)
		} else {
			metrics.JobMisfires.WithLabelValues(sj.ID).Inc()
			s.log.Warn().
				Str("job_id", sj.ID).
				Dur("missed_by", missedBy).
				Msg("Missed fire outside grace period, recorded as misfire")
		}
	}

	s.running = true
	s.cron.Start()
	s.mu.Unlock()

	for _, reg := range fireNow {
		s.fire(reg, false)
	}

	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops firing new triggers and waits (bounded) for in-flight
// executions to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopping = true
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	if !s.pool.Drain(s.drainTimeout) {
		s.log.Warn().Msg("Jobs still running after drain grace period")
	}

	s.log.Info().Msg("Scheduler stopped")
}

// TriggerNow forces immediate execution outside the normal schedule.
// Returns false if the job id is unknown or the scheduler is stopping.
// The caller is only blocked for the handoff, not for completion.
func (s *Scheduler) TriggerNow(id string) bool {
	s.mu.Lock()
	reg, ok := s.jobs[id]
	stopping := s.stopping
	s.mu.Unlock()

	if !ok || stopping {
		return false
	}

	go s.fire(reg, true)
	return true
}

// Status reports the running flag, registered job count, and the next
// scheduled fire time across all jobs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		JobCount: len(s.jobs),
	}

	now := time.Now().In(s.location)
	for _, reg := range s.jobs {
		n := reg.schedule.Next(now)
		if n.IsZero() {
			continue
		}
		if st.NextFireTime == nil || n.Before(*st.NextFireTime) {
			next := n
			st.NextFireTime = &next
		}
	}

	return st
}

// fire handles one trigger firing: bookkeeping, instance gating, and
// submission to the pool. Manual fires skip schedule bookkeeping.
func (s *Scheduler) fire(reg *registeredJob, manual bool) {
	if !manual {
		now := time.Now().In(s.location)
		next := reg.schedule.Next(now)
		if err := s.store.UpdateFireTimes(reg.def.ID, &now, &next); err != nil {
			s.log.Error().Err(err).Str("job_id", reg.def.ID).Msg("Failed to persist fire times")
		}
	}

	reg.mu.Lock()
	if reg.active >= reg.def.MaxInstances {
		if reg.def.Coalesce {
			// Multiple pending fires collapse to one
			reg.pendingCoalesce = true
			reg.mu.Unlock()
			s.log.Debug().Str("job_id", reg.def.ID).Msg("Fire coalesced while saturated")
			return
		}
		reg.deferred = append(reg.deferred, time.Now().Add(reg.def.MisfireGrace))
		reg.mu.Unlock()
		s.log.Debug().Str("job_id", reg.def.ID).Msg("Fire deferred until an instance slot frees up")
		return
	}
	reg.active++
	reg.mu.Unlock()

	s.submit(reg)
}

// submit hands an already-accounted execution to the pool.
func (s *Scheduler) submit(reg *registeredJob) {
	ok := s.pool.Submit(func() {
		s.execute(reg)
	})
	if !ok {
		reg.mu.Lock()
		reg.active--
		reg.mu.Unlock()
		s.log.Warn().Str("job_id", reg.def.ID).Msg("Worker pool drained, fire dropped")
	}
}

// execute runs the job function with failure isolation, then promotes any
// fire that queued up while this instance held the slot.
func (s *Scheduler) execute(reg *registeredJob) {
	start := time.Now()
	err := s.runIsolated(reg)
	duration := time.Since(start)

	if err != nil {
		metrics.JobExecutions.WithLabelValues(reg.def.ID, "error").Inc()
		s.log.Error().
			Err(err).
			Str("job_id", reg.def.ID).
			Time("fired_at", start).
			Dur("duration", duration).
			Msg("Job execution failed")
	} else {
		metrics.JobExecutions.WithLabelValues(reg.def.ID, "success").Inc()
		s.log.Debug().
			Str("job_id", reg.def.ID).
			Dur("duration", duration).
			Msg("Job execution completed")
	}

	s.promotePending(reg)
}

// runIsolated invokes the bound function, converting panics into errors so
// a failing job never deregisters itself or crashes the pool.
func (s *Scheduler) runIsolated(reg *registeredJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
	defer cancel()

	return reg.fn(ctx)
}

// promotePending releases this execution's instance slot and hands it to
// a coalesced or deferred fire if one is waiting.
func (s *Scheduler) promotePending(reg *registeredJob) {
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()

	reg.mu.Lock()
	reg.active--

	if stopping {
		reg.pendingCoalesce = false
		reg.deferred = nil
		reg.mu.Unlock()
		return
	}

	if reg.pendingCoalesce {
		reg.pendingCoalesce = false
		reg.active++
		reg.mu.Unlock()
		s.submit(reg)
		return
	}

	for len(reg.deferred) > 0 {
		deadline := reg.deferred[0]
		reg.deferred = reg.deferred[1:]
		if time.Now().After(deadline) {
			metrics.JobMisfires.WithLabelValues(reg.def.ID).Inc()
			s.log.Warn().
				Str("job_id", reg.def.ID).
				Time("deadline", deadline).
				Msg("Deferred fire abandoned past misfire grace")
			continue
		}
		reg.active++
		reg.mu.Unlock()
		s.submit(reg)
		return
	}

	reg.mu.Unlock()
}
