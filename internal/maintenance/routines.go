// Package maintenance holds the periodic ticket sweeps run by the scheduler.
//
// Each sweep reads the clock once, takes a snapshot of the store and handles
// tickets one at a time. A failure on one ticket is logged and collected;
// the sweep moves on to the next ticket and returns the collected failures
// joined, so the scheduler reports them once per pass.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/activity"
	"github.com/spec-kit/ticket-lifecycle/internal/archive"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Dependencies bundles collaborators shared by the sweeps.
type Dependencies struct {
	Engine     lifecycle.Engine
	Tickets    repository.TicketStore
	Probe      activity.Probe
	Archiver   archive.Archiver
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Summary reports what one sweep did.
type Summary struct {
	Scanned    int      `json:"scanned"`
	Candidates int      `json:"candidates"`
	Applied    int      `json:"applied"`
	Failed     int      `json:"failed"`
	DryRun     bool     `json:"dry_run"`
	TicketIDs  []string `json:"ticket_ids,omitempty"`
}

func publish(ctx context.Context, d Dependencies, event events.Event) {
	if d.Dispatcher == nil {
		return
	}
	if err := d.Dispatcher.Publish(ctx, event); err != nil {
		d.Logger.Warn("event handler failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
