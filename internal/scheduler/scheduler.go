// Package scheduler runs the top ten update on an interval and on demand.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	tlog "github.com/treefix50/topten/internal/log"
	"github.com/treefix50/topten/internal/topten"
)

var (
	ErrAlreadyRunning = errors.New("scheduler: a run is already in progress")
	ErrNotStarted     = errors.New("scheduler: not started")
)

// RunFunc executes one update. The context carries the run id.
type RunFunc func(ctx context.Context, progress topten.Progress) (topten.Result, error)

// IntervalFunc is consulted before every wait so interval changes apply
// from the next cycle on.
type IntervalFunc func() time.Duration

type Options struct {
	RunOnStart bool
	// MinInterval guards against a zero or tiny interval spinning the loop.
	MinInterval time.Duration
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running        bool           `json:"running"`
	RunID          string         `json:"runId,omitempty"`
	Progress       float64        `json:"progress"`
	NextRunAt      time.Time      `json:"nextRunAt,omitzero"`
	LastRunID      string         `json:"lastRunId,omitempty"`
	LastStartedAt  time.Time      `json:"lastStartedAt,omitzero"`
	LastFinishedAt time.Time      `json:"lastFinishedAt,omitzero"`
	LastError      string         `json:"lastError,omitempty"`
	LastResult     *topten.Result `json:"lastResult,omitempty"`
}

type Scheduler struct {
	run      RunFunc
	interval IntervalFunc
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	status  Status
}

func New(run RunFunc, interval IntervalFunc, opts Options) *Scheduler {
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Minute
	}
	return &Scheduler{
		run:      run,
		interval: interval,
		opts:     opts,
		logger:   tlog.WithComponent("scheduler"),
		now:      time.Now,
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Str("event", "scheduler.started").Bool("run_on_start", s.opts.RunOnStart).Msg("scheduler started")
}

// Stop cancels an in-flight run and waits for it until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Str("event", "scheduler.stopped").Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Str("event", "scheduler.stop_timeout").Msg("scheduler stop timed out")
		return ctx.Err()
	}
}

// Trigger starts a run now. It does not wait for the run to finish.
func (s *Scheduler) Trigger() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", ErrNotStarted
	}
	return s.startRunLocked("manual")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.opts.RunOnStart {
		s.tick("startup")
	}

	for {
		wait := s.nextInterval()
		s.mu.Lock()
		s.status.NextRunAt = s.now().Add(wait)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick("interval")
		}
	}
}

func (s *Scheduler) nextInterval() time.Duration {
	wait := s.opts.MinInterval
	if s.interval != nil {
		if d := s.interval(); d > wait {
			wait = d
		}
	}
	return wait
}

func (s *Scheduler) tick(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if _, err := s.startRunLocked(reason); errors.Is(err, ErrAlreadyRunning) {
		s.logger.Info().Str("event", "scheduler.skip").Str("reason", reason).Str("run_id", s.status.RunID).Msg("previous run still in progress, skipping")
	}
}

func (s *Scheduler) startRunLocked(reason string) (string, error) {
	if s.status.Running {
		return "", ErrAlreadyRunning
	}
	runID := uuid.NewString()
	s.status.Running = true
	s.status.RunID = runID
	s.status.Progress = 0
	s.status.LastStartedAt = s.now()

	ctx := tlog.ContextWithRunID(s.ctx, runID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, runID, reason)
	}()
	return runID, nil
}

func (s *Scheduler) execute(ctx context.Context, runID, reason string) {
	logger := tlog.WithComponentFromContext(ctx, "scheduler")
	logger.Info().Str("event", "scheduler.run_start").Str("reason", reason).Msg("run started")

	res, err := s.runSafely(ctx, topten.ProgressFunc(func(p float64) { s.report(runID, p) }))

	s.mu.Lock()
	s.status.Running = false
	s.status.RunID = ""
	s.status.LastRunID = runID
	s.status.LastFinishedAt = s.now()
	s.status.LastResult = &res
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Str("event", "scheduler.run_failed").Msg("run failed")
		return
	}
	logger.Info().Str("event", "scheduler.run_done").Msg("run finished")
}

func (s *Scheduler) runSafely(ctx context.Context, progress topten.Progress) (res topten.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res.Phase = topten.PhaseErrored
			err = errors.New("scheduler: run panicked")
			logger := tlog.WithComponentFromContext(ctx, "scheduler")
			logger.Error().
				Interface("panic", r).
				Str("event", "scheduler.run_panic").
				Msg("run panicked")
		}
	}()
	return s.run(ctx, progress)
}

// report clamps progress to [0, 100] and ignores values below the last one.
func (s *Scheduler) report(runID string, p float64) {
	p = min(max(p, 0), 100)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.RunID != runID || p < s.status.Progress {
		return
	}
	s.status.Progress = p
}
