package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"netpresence/internal/observability/metrics"
)

var (
	// ErrCycleInFlight is returned when a cycle is requested while one runs.
	ErrCycleInFlight = errors.New("scheduler: poll cycle already running")
	// ErrSchedulerStopped is returned by TriggerNow once Stop has been called.
	ErrSchedulerStopped = errors.New("scheduler: stopped")
)

// CycleRunner runs one poll cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Ticker abstracts time.Ticker for tests.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time { return r.t.C }

func (r *realTicker) Stop() { r.t.Stop() }

// Scheduler triggers poll cycles at a fixed interval, starting immediately.
// At most one cycle runs at a time; ticks that arrive while a cycle is
// running are skipped.
type Scheduler struct {
	runner    CycleRunner
	interval  time.Duration
	logger    zerolog.Logger
	newTicker func(time.Duration) Ticker

	running atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopping bool
	loopWG   sync.WaitGroup
	cycleWG  sync.WaitGroup
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTicker replaces the ticker factory.
func WithTicker(factory func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner CycleRunner, interval time.Duration, logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		newTicker: func(d time.Duration) Ticker {
			return &realTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. It returns immediately; the first
// cycle fires right away.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopping {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.loop(loopCtx)
	}()
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop ends the loop and waits for an in-flight cycle to finish. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.stopping = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.loopWG.Wait()
	}
	s.cycleWG.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// TriggerNow runs a cycle synchronously unless one is already running or
// the scheduler is stopping. Cancelling ctx does not abort the cycle.
func (s *Scheduler) TriggerNow(ctx context.Context) (CycleResult, error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return CycleResult{}, ErrSchedulerStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		metrics.IncPollSkipped()
		return CycleResult{}, ErrCycleInFlight
	}
	s.cycleWG.Add(1)
	s.mu.Unlock()

	defer s.cycleWG.Done()
	defer s.running.Store(false)
	return s.runner.RunCycle(context.WithoutCancel(ctx))
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.dispatch(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.Chan():
			s.dispatch(ctx, tick.UTC())
		}
	}
}

// dispatch starts a cycle in the background, or skips the tick when one is running.
func (s *Scheduler) dispatch(ctx context.Context, tick time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.IncPollSkipped()
		s.logger.Warn().Time("tick", tick).Msg("poll cycle still running, tick skipped")
		return
	}
	s.cycleWG.Add(1)
	go func() {
		defer s.cycleWG.Done()
		defer s.running.Store(false)
		s.runOnce(ctx)
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	// A cycle finishes its transaction even if the loop is stopped meanwhile.
	result, err := s.runner.RunCycle(context.WithoutCancel(ctx))
	if err != nil {
		event := s.logger.Error().Err(err).Str("cycle_id", result.CycleID)
		var cerr *CycleError
		if errors.As(err, &cerr) {
			event = event.Str("stage", cerr.Stage)
		}
		event.Msg("poll cycle failed")
		return
	}
	s.logger.Info().
		Str("cycle_id", result.CycleID).
		Int("sightings", result.Sightings).
		Int("created_devices", result.Reconcile.CreatedDevices).
		Int("created_employees", result.Reconcile.CreatedEmployees).
		Int("went_online", result.Reconcile.WentOnline).
		Int("went_offline", result.Reconcile.WentOffline).
		Int("skipped_transitions", result.Reconcile.SkippedTransitions).
		Dur("duration", result.Duration).
		Msg("poll cycle completed")
}
