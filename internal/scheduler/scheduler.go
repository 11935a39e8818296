package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a scheduler.
type Status string

const (
	StatusStopped     Status = "stopped"
	StatusStarting    Status = "starting"
	StatusRunning     Status = "running"
	StatusStopping    Status = "stopping"
	StatusForceKilled Status = "force_killed"
)

// ErrIllegalTransition is returned when a lifecycle operation is not legal
// from the scheduler's current state.
var ErrIllegalTransition = errors.New("illegal scheduler transition")

// JobFunc is one work cycle. The context is cancelled only by ForceKill,
// never by a graceful Stop.
type JobFunc func(ctx context.Context) error

// State is a point-in-time snapshot of a scheduler's lifecycle.
type State struct {
	Status    Status    `json:"status"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	InFlight  int       `json:"in_flight"`
}

// Scheduler drives a job on a fixed interval with an explicit lifecycle:
// Stopped → Starting → Running → Stopping → Stopped, plus ForceKill from any
// state. Each scheduler owns its own goroutine and ticker; the only shared
// mutable state between schedulers is the stores themselves.
type Scheduler struct {
	name     string
	interval time.Duration
	job      JobFunc
	log      *logger.Logger

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	loopDone  chan struct{}
}

// New creates a scheduler in the Stopped state.
// Parameters:
//   - name: scheduler name used in logs and state endpoints.
//   - interval: delay between scheduled runs.
//   - job: work cycle to execute.
//   - log: logger instance.
// Returns:
//   - *Scheduler: initialized scheduler, not yet started.
func New(name string, interval time.Duration, job JobFunc, log *logger.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		log:      log.WithField(logger.FieldScheduler, name),
		state:    State{Status: StatusStopped},
	}
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// State returns a snapshot of the current lifecycle state.
// Parameters: none.
// Returns:
//   - State: copy of the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions Stopped → Starting, performs one immediate run, then
// enters Running and ticks on the configured interval. Illegal from Running.
// Parameters: none.
// Returns:
//   - <-chan error: receives the immediate run's outcome (buffered, never blocks the loop).
//   - error: ErrIllegalTransition if the scheduler is not startable.
func (s *Scheduler) Start() (<-chan error, error) {
	s.mu.Lock()
	if s.state.Status != StatusStopped {
		st := s.state.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: start from %s", ErrIllegalTransition, st)
	}
	s.state.Status = StatusStarting
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	firstRun := make(chan error, 1)
	go s.loop(firstRun, s.stopCh, s.runCtx, s.loopDone)

	s.log.Info("Scheduler starting")
	return firstRun, nil
}

// Stop gracefully shuts the scheduler down. Legal only from Running. The
// in-flight run, if any, finishes untouched; future scheduled runs are
// cancelled. Blocks until the loop has exited.
// Parameters: none.
// Returns:
//   - error: ErrIllegalTransition if the scheduler is not Running.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state.Status != StatusRunning {
		st := s.state.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrIllegalTransition, st)
	}
	s.state.Status = StatusStopping
	close(s.stopCh)
	done := s.loopDone
	cancel := s.runCancel
	s.mu.Unlock()

	s.log.Info("Scheduler stopping, waiting for in-flight run")
	<-done
	// The loop has exited, so no run is left to observe the cancellation.
	// Without this the run context leaks one generation per Start/Stop.
	cancel()
	s.log.Info("Scheduler stopped")
	return nil
}

// ForceKill immediately cancels future runs and abandons in-flight work
// without waiting. Legal from any state; always ends in Stopped. A
// reconciliation pass should run afterwards since an abandoned run may leave
// a partially-migrated item behind.
// Parameters: none.
// Returns: none.
func (s *Scheduler) ForceKill() {
	s.mu.Lock()
	prev := s.state.Status
	s.state.Status = StatusForceKilled
	if s.runCancel != nil {
		s.runCancel()
	}
	abandoned := s.state.InFlight
	s.state.Status = StatusStopped
	s.state.NextRun = time.Time{}
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"previous_status": string(prev),
		"abandoned":       abandoned,
	}).Warn("Scheduler force-killed")
}

// RunOnce executes a single work cycle out of band from the schedule,
// synchronously. Illegal while Stopping.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: the job's error, or ErrIllegalTransition while Stopping.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusStopping || s.state.Status == StatusForceKilled {
		st := s.state.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: run-once from %s", ErrIllegalTransition, st)
	}
	s.mu.Unlock()

	return s.runJob(ctx)
}

// loop performs the immediate first run, reports its outcome, then ticks.
// The channels are captured per Start so a force-killed loop that is still
// draining cannot touch a later generation's channels.
func (s *Scheduler) loop(firstRun chan<- error, stopCh <-chan struct{}, runCtx context.Context, loopDone chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.state.Status == StatusStopping {
			s.state.Status = StatusStopped
			s.state.NextRun = time.Time{}
		}
		s.mu.Unlock()
		close(loopDone)
	}()

	err := s.runJob(runCtx)
	firstRun <- err

	s.mu.Lock()
	if s.state.Status != StatusStarting {
		// Stopped or force-killed during the immediate run.
		s.mu.Unlock()
		return
	}
	s.state.Status = StatusRunning
	s.state.NextRun = time.Now().Add(s.interval)
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-runCtx.Done():
			return
		case <-ticker.C:
			_ = s.runJob(runCtx)
			s.mu.Lock()
			s.state.NextRun = time.Now().Add(s.interval)
			s.mu.Unlock()
		}
	}
}

// runJob executes one cycle and tracks in-flight count and last-run time.
// Each run gets its own id so every log line the job emits can be tied back
// to the cycle that produced it.
func (s *Scheduler) runJob(ctx context.Context) error {
	s.mu.Lock()
	s.state.InFlight++
	s.mu.Unlock()

	runLog := s.log.WithField(logger.FieldRunID, uuid.New().String())
	ctx = runLog.WithContext(ctx)

	start := time.Now()
	err := s.job(ctx)

	s.mu.Lock()
	s.state.InFlight--
	s.state.LastRun = start
	if err != nil {
		s.state.LastError = err.Error()
	} else {
		s.state.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		runLog.WithError(err).WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).
			Error("Scheduler run failed")
	} else {
		runLog.WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).
			Debug("Scheduler run completed")
	}
	return err
}
