package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	interval time.Duration
	ch       chan time.Time
	stopped  atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{interval: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, ticker)
	return ticker
}

func (c *fakeClock) ticker(i int) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

// fire delivers one tick; the unbuffered send returns once the loop has
// received it.
func fire(t *testing.T, ticker *fakeTicker) {
	t.Helper()
	select {
	case ticker.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("tick was not received")
	}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []error
	labels  []string
}

func (r *recordingReporter) Report(context string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, context)
	r.reports = append(r.reports, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *recordingReporter) last() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1]
}

type panickingReporter struct{}

func (panickingReporter) Report(string, error) { panic("reporter down") }

func stats(s *Scheduler, name string) TaskStats {
	for _, st := range s.Stats() {
		if st.Name == name {
			return st
		}
	}
	return TaskStats{}
}

func TestEffectiveInterval(t *testing.T) {
	assert.Equal(t, 30*time.Second, EffectiveInterval(5, 30))
	assert.Equal(t, 60*time.Second, EffectiveInterval(60, 30))
	assert.Equal(t, 600*time.Second, EffectiveInterval(120, 600))
	assert.Equal(t, time.Second, EffectiveInterval(0, 0))
}

func TestRegisterAppliesFloor(t *testing.T) {
	clock := &fakeClock{}
	s := New(&recordingReporter{}, WithClock(clock))

	interval, err := s.Register("auto-close", func(context.Context) error { return nil }, 5, 30)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 30*time.Second, clock.ticker(0).interval)
	cancel()
	s.Wait()
	assert.True(t, clock.ticker(0).stopped.Load())
}

func TestRegisterRejectsInvalid(t *testing.T) {
	s := New(&recordingReporter{}, WithClock(&fakeClock{}))
	noop := func(context.Context) error { return nil }

	_, err := s.Register("nil", nil, 60, 30)
	assert.ErrorIs(t, err, ErrNilTask)

	_, err = s.Register("job", noop, 60, 30)
	require.NoError(t, err)
	_, err = s.Register("job", noop, 60, 30)
	assert.ErrorIs(t, err, ErrDuplicateTask)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	_, err = s.Register("late", noop, 60, 30)
	assert.ErrorIs(t, err, ErrStarted)
	assert.ErrorIs(t, s.Start(ctx), ErrStarted)
}

func TestSlowTaskNeverOverlaps(t *testing.T) {
	clock := &fakeClock{}
	s := New(&recordingReporter{}, WithClock(clock))

	var active, maxActive, started atomic.Int32
	release := make(chan struct{})
	_, err := s.Register("slow", func(context.Context) error {
		started.Add(1)
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	}, 60, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	const ticks = 6
	for i := 0; i < ticks; i++ {
		fire(t, clock.ticker(0))
	}
	require.Eventually(t, func() bool { return stats(s, "slow").Skipped == ticks-1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, started.Load())
	assert.True(t, s.Running("slow"))

	close(release)
	require.Eventually(t, func() bool { return !s.Running("slow") }, time.Second, 5*time.Millisecond)

	fire(t, clock.ticker(0))
	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Running("slow") }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, maxActive.Load())
	assert.EqualValues(t, 2, stats(s, "slow").Runs)
}

func TestFailingTaskKeepsTicking(t *testing.T) {
	clock := &fakeClock{}
	reporter := &recordingReporter{}
	s := New(reporter, WithClock(clock))

	var failing, healthy atomic.Int32
	_, err := s.Register("failing", func(context.Context) error {
		if failing.Add(1)%2 == 0 {
			panic("boom")
		}
		return errors.New("store unavailable")
	}, 60, 30)
	require.NoError(t, err)
	_, err = s.Register("healthy", func(context.Context) error {
		healthy.Add(1)
		return nil
	}, 60, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	for i := 1; i <= 3; i++ {
		fire(t, clock.ticker(0))
		require.Eventually(t, func() bool { return reporter.count() == i && !s.Running("failing") }, time.Second, 5*time.Millisecond)
		fire(t, clock.ticker(1))
		require.Eventually(t, func() bool { return healthy.Load() == int32(i) && !s.Running("healthy") }, time.Second, 5*time.Millisecond)
	}

	assert.EqualValues(t, 3, failing.Load())
	assert.EqualValues(t, 3, stats(s, "failing").Failed)
	assert.EqualValues(t, 0, stats(s, "healthy").Failed)
	assert.ErrorContains(t, reporter.last(), "task failing: store unavailable")
	reporter.mu.Lock()
	assert.ErrorContains(t, reporter.reports[1], "panic: boom")
	assert.Equal(t, ReportContext, reporter.labels[0])
	reporter.mu.Unlock()
}

func TestReporterPanicIsContained(t *testing.T) {
	clock := &fakeClock{}
	s := New(panickingReporter{}, WithClock(clock))

	var calls atomic.Int32
	_, err := s.Register("job", func(context.Context) error {
		calls.Add(1)
		return errors.New("fail")
	}, 60, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	for i := int32(1); i <= 2; i++ {
		fire(t, clock.ticker(0))
		require.Eventually(t, func() bool { return calls.Load() == i && !s.Running("job") }, time.Second, 5*time.Millisecond)
	}
}

func TestGuardsAreIndependent(t *testing.T) {
	clock := &fakeClock{}
	s := New(&recordingReporter{}, WithClock(clock))

	release := make(chan struct{})
	var active atomic.Int32
	block := func(context.Context) error {
		active.Add(1)
		<-release
		active.Add(-1)
		return nil
	}
	_, err := s.Register("a", block, 60, 30)
	require.NoError(t, err)
	_, err = s.Register("b", block, 60, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	fire(t, clock.ticker(0))
	fire(t, clock.ticker(1))
	require.Eventually(t, func() bool { return active.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Running("a"))
	assert.True(t, s.Running("b"))
	close(release)
}

func TestShutdownLetsInFlightRunFinish(t *testing.T) {
	clock := &fakeClock{}
	s := New(&recordingReporter{}, WithClock(clock))

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var ctxErr atomic.Value
	_, err := s.Register("archive", func(ctx context.Context) error {
		close(entered)
		<-release
		if ctx.Err() != nil {
			ctxErr.Store(ctx.Err())
		}
		finished.Store(true)
		return nil
	}, 60, 30)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	fire(t, clock.ticker(0))
	<-entered

	cancel()
	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
	assert.True(t, finished.Load())
	assert.Nil(t, ctxErr.Load(), "task context must not be cancelled by shutdown")
}
