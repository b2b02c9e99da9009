// Package scheduler runs named maintenance tasks on fixed intervals. Each
// task is guarded against overlapping with itself: a tick that arrives while
// the previous run is still in flight is dropped, not queued. Task failures
// and panics are reported and swallowed so the loop keeps ticking.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

// ReportContext labels scheduled task failures sent to the Reporter.
const ReportContext = "SCHEDULED_TASK_ERROR"

var (
	ErrStarted       = errors.New("scheduler already started")
	ErrDuplicateTask = errors.New("task already registered")
	ErrNilTask       = errors.New("task is nil")
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Reporter receives task failures. Implementations must not panic.
type Reporter interface {
	Report(context string, err error)
}

// TaskStats counts outcomes for one registered task.
type TaskStats struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Running  bool          `json:"running"`
}

type job struct {
	name     string
	task     Task
	interval time.Duration

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Scheduler owns the registered tasks and their guards.
type Scheduler struct {
	clock    Clock
	reporter Reporter
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	jobs    []*job
	byName  map[string]*job
	started bool

	wg sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics records run, skip and failure counts.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// New creates a scheduler reporting failures to reporter.
func New(reporter Reporter, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    RealClock(),
		reporter: reporter,
		logger:   zap.NewNop(),
		byName:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EffectiveInterval applies the floor: max(intervalSeconds, minIntervalSeconds).
func EffectiveInterval(intervalSeconds, minIntervalSeconds int) time.Duration {
	seconds := intervalSeconds
	if minIntervalSeconds > seconds {
		seconds = minIntervalSeconds
	}
	if seconds <= 0 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// Register adds a task and returns the interval it will run at. Tasks must
// be registered before Start.
func (s *Scheduler) Register(name string, task Task, intervalSeconds, minIntervalSeconds int) (time.Duration, error) {
	if task == nil {
		return 0, fmt.Errorf("register %s: %w", name, ErrNilTask)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return 0, fmt.Errorf("register %s: %w", name, ErrStarted)
	}
	if _, exists := s.byName[name]; exists {
		return 0, fmt.Errorf("register %s: %w", name, ErrDuplicateTask)
	}
	j := &job{
		name:     name,
		task:     task,
		interval: EffectiveInterval(intervalSeconds, minIntervalSeconds),
	}
	s.jobs = append(s.jobs, j)
	s.byName[name] = j
	s.logger.Info("scheduled task registered",
		zap.String("task", name),
		zap.Duration("interval", j.interval))
	return j.interval, nil
}

// Start launches one ticking loop per task. Loops stop when ctx is
// cancelled; runs already in flight complete and can be awaited with Wait.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	for _, j := range s.jobs {
		ticker := s.clock.NewTicker(j.interval)
		s.wg.Add(1)
		go s.loop(ctx, j, ticker)
	}
	return nil
}

// Run starts the scheduler, blocks until ctx is cancelled, then waits for
// in-flight runs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Wait()
	return nil
}

// Wait blocks until every loop has exited and every in-flight run finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stats returns per-task counters in registration order.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStats, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, TaskStats{
			Name:     j.name,
			Interval: j.interval,
			Runs:     j.runs.Load(),
			Skipped:  j.skipped.Load(),
			Failed:   j.failed.Load(),
			Running:  j.running.Load(),
		})
	}
	return out
}

// Running reports whether the named task currently has a run in flight.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	j, ok := s.byName[name]
	s.mu.Unlock()
	return ok && j.running.Load()
}

func (s *Scheduler) loop(ctx context.Context, j *job, ticker Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.tick(ctx, j)
		}
	}
}

// tick starts a run unless one is already in flight for this task.
func (s *Scheduler) tick(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		s.metrics.RecordTask(j.name, observability.TaskSkipped)
		s.logger.Debug("scheduled task still running; tick dropped", zap.String("task", j.name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		// In-flight runs are allowed to finish after shutdown begins.
		s.execute(context.WithoutCancel(ctx), j)
	}()
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	j.runs.Add(1)
	s.metrics.RecordTask(j.name, observability.TaskRun)

	err := s.invoke(ctx, j)
	if err == nil {
		return
	}
	j.failed.Add(1)
	s.metrics.RecordTask(j.name, observability.TaskFailed)
	s.report(fmt.Errorf("task %s: %w", j.name, err))
}

func (s *Scheduler) invoke(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.task(ctx)
}

func (s *Scheduler) report(err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("error reporter panicked", zap.Any("panic", r), zap.NamedError("reported", err))
		}
	}()
	if s.reporter == nil {
		s.logger.Error("scheduled task failed", zap.Error(err))
		return
	}
	s.reporter.Report(ReportContext, err)
}
