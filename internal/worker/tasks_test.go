package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

func noop(context.Context) error { return nil }

func intervals(s *scheduler.Scheduler) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, st := range s.Stats() {
		out[st.Name] = st.Interval
	}
	return out
}

func TestRegisterTasks(t *testing.T) {
	cfg := config.Default().Maintenance
	cfg.AutoClose.Enabled = true
	cfg.AutoClose.IntervalSeconds = 5
	cfg.AutoDelete.Enabled = false
	cfg.Stats.Enabled = true
	cfg.Stats.IntervalSeconds = 60

	sched := scheduler.New(nil)
	err := RegisterTasks(sched, cfg, Routines{
		AutoClose:        noop,
		AutoDelete:       noop,
		BlacklistCleanup: noop,
		Stats:            noop,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]time.Duration{
		TaskAutoClose:        30 * time.Second,
		TaskBlacklistCleanup: 120 * time.Second,
		TaskStats:            600 * time.Second,
	}, intervals(sched))
}

func TestRegisterTasksSkipsMissingRoutines(t *testing.T) {
	cfg := config.Default().Maintenance
	cfg.AutoClose.Enabled = true

	sched := scheduler.New(nil)
	require.NoError(t, RegisterTasks(sched, cfg, Routines{AutoClose: noop}, nil))
	assert.Len(t, sched.Stats(), 1)
}

func TestRegisterTasksAfterStart(t *testing.T) {
	cfg := config.Default().Maintenance
	sched := scheduler.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))
	cancel()
	sched.Wait()

	err := RegisterTasks(sched, cfg, Routines{BlacklistCleanup: noop}, nil)
	assert.ErrorIs(t, err, scheduler.ErrStarted)
}
