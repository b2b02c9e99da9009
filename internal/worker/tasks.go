// Package worker registers the background maintenance tasks with the
// scheduler.
package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
)

// Task names as they appear in logs, metrics and readiness output.
const (
	TaskAutoClose        = "auto_close"
	TaskAutoDelete       = "auto_delete"
	TaskBlacklistCleanup = "blacklist_cleanup"
	TaskStats            = "stats"
)

// Routines are the task bodies. A nil routine is never registered.
type Routines struct {
	AutoClose        scheduler.Task
	AutoDelete       scheduler.Task
	BlacklistCleanup scheduler.Task
	Stats            scheduler.Task
}

// RegisterTasks registers every enabled routine with its configured interval.
// Stats runs on its own fixed floor; all other tasks share the global floor.
func RegisterTasks(sched *scheduler.Scheduler, cfg config.MaintenanceConfig, routines Routines, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries := []struct {
		name  string
		task  scheduler.Task
		cfg   config.TaskConfig
		floor int
	}{
		{TaskAutoClose, routines.AutoClose, cfg.AutoClose, cfg.MinIntervalSeconds},
		{TaskAutoDelete, routines.AutoDelete, cfg.AutoDelete, cfg.MinIntervalSeconds},
		{TaskBlacklistCleanup, routines.BlacklistCleanup, cfg.BlacklistCleanup, cfg.MinIntervalSeconds},
		{TaskStats, routines.Stats, cfg.Stats, config.StatsMinIntervalSeconds},
	}
	for _, e := range entries {
		if !e.cfg.Enabled || e.task == nil {
			logger.Debug("maintenance task disabled", zap.String("task", e.name))
			continue
		}
		if _, err := sched.Register(e.name, e.task, e.cfg.IntervalSeconds, e.floor); err != nil {
			return err
		}
	}
	return nil
}
