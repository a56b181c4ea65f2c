// Package scheduler runs periodic simulation tasks: market ticks, pending
// order matching, option repricing and expiry settlement.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradekaro/internal/logging"
	"tradekaro/internal/metrics"
)

// Task is a named job run every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs tasks on independent tickers. A tick that arrives while
// the previous run of the same task is still active is skipped.
type Scheduler struct {
	tasks   []*entry
	logger  zerolog.Logger
	metrics *metrics.Recorder
	breaker BreakerConfig
	now     func() time.Time
	running atomic.Bool
	active  sync.WaitGroup
}

type entry struct {
	task    Task
	breaker *breaker
	busy    atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// TaskStats holds counters for one task.
type TaskStats struct {
	Name    string       `json:"name"`
	Runs    uint64       `json:"runs"`
	Skipped uint64       `json:"skipped"`
	Failed  uint64       `json:"failed"`
	Breaker BreakerState `json:"breaker"`
}

// New creates a scheduler with the default breaker. rec may be nil.
func New(logger zerolog.Logger, rec *metrics.Recorder) *Scheduler {
	return &Scheduler{
		logger:  logging.WithComponent(logger, "scheduler"),
		metrics: rec,
		breaker: DefaultBreakerConfig(),
		now:     time.Now,
	}
}

// WithBreaker replaces the breaker settings for tasks added afterwards.
func (s *Scheduler) WithBreaker(cfg BreakerConfig) *Scheduler {
	s.breaker = cfg
	return s
}

// Add registers a task. Tasks must be added before Run.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a run function")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive, got %s", t.Name, t.Interval)
	}
	if s.running.Load() {
		return fmt.Errorf("task %s: scheduler already running", t.Name)
	}
	s.tasks = append(s.tasks, &entry{task: t, breaker: newBreaker(s.breaker, s.now)})
	return nil
}

// Run blocks until ctx is cancelled, running each task on its own ticker.
// Task errors are logged and counted; they never stop the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running.Swap(true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range s.tasks {
		e := e
		g.Go(func() error {
			ticker := time.NewTicker(e.task.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.tick(ctx, e)
				}
			}
		})
	}
	err := g.Wait()
	s.active.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return err
}

// RunOnce runs every task a single time in registration order and waits
// for each to finish.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, e := range s.tasks {
		if s.acquire(e) {
			s.run(ctx, e)
		}
	}
}

// tick starts the task in the background unless a previous run is still
// active.
func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if !s.acquire(e) {
		return
	}
	s.active.Add(1)
	go func() {
		defer s.active.Done()
		s.run(ctx, e)
	}()
}

func (s *Scheduler) acquire(e *entry) bool {
	if !e.busy.CompareAndSwap(false, true) {
		e.skipped.Add(1)
		s.metrics.RecordSkip(e.task.Name)
		s.logger.Debug().Str("task", e.task.Name).Msg("Tick skipped, previous run still active")
		return false
	}
	if !e.breaker.allow() {
		e.busy.Store(false)
		e.skipped.Add(1)
		s.metrics.RecordSkip(e.task.Name)
		return false
	}
	return true
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer e.busy.Store(false)

	ctx = logging.WithLogger(ctx, s.logger.With().Str("task", e.task.Name).Logger())
	start := time.Now()
	err := e.task.Run(ctx)
	d := time.Since(start)

	e.runs.Add(1)
	if err != nil {
		e.failed.Add(1)
	}
	s.metrics.RecordRun(e.task.Name, d, err)
	logging.LogTick(s.logger, e.task.Name, d, err)

	before := e.breaker.current()
	if after := e.breaker.record(err); after != before {
		s.logger.Warn().
			Str("task", e.task.Name).
			Str("from", string(before)).
			Str("to", string(after)).
			Msg("Task breaker changed state")
	}
}

// Stats returns per-task counters in registration order.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = TaskStats{
			Name:    e.task.Name,
			Runs:    e.runs.Load(),
			Skipped: e.skipped.Load(),
			Failed:  e.failed.Load(),
			Breaker: e.breaker.current(),
		}
	}
	return out
}
