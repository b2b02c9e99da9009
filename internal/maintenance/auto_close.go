package maintenance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
)

// AutoCloser closes open tickets whose channel has been quiet for longer
// than the engine's auto-close threshold.
type AutoCloser struct {
	deps   Dependencies
	dryRun bool
}

// NewAutoCloser builds the auto-close sweep. With dryRun set, decisions are
// logged and nothing is written.
func NewAutoCloser(deps Dependencies, dryRun bool) *AutoCloser {
	return &AutoCloser{deps: deps.withDefaults(), dryRun: dryRun}
}

// Run performs one sweep; it matches scheduler.Task.
func (a *AutoCloser) Run(ctx context.Context) error {
	_, err := a.Sweep(ctx)
	return err
}

// Sweep closes every eligible ticket. Tickets with unknown activity are
// never closed. Archival after a close is best-effort.
func (a *AutoCloser) Sweep(ctx context.Context) (Summary, error) {
	d := a.deps
	now := d.Now()
	summary := Summary{DryRun: a.dryRun}

	tickets, err := d.Tickets.All(ctx)
	if err != nil {
		return summary, fmt.Errorf("auto-close: list tickets: %w", err)
	}

	var errs []error
	for _, ticket := range tickets {
		if ticket.Status != domain.TicketStatusOpen {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary.Scanned++

		lastActivity, err := d.Probe.LastActivity(ctx, ticket.ID)
		if err != nil {
			d.Logger.Debug("auto-close: activity unknown",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			lastActivity = nil
		}
		if d.Engine.EvaluateAutoClose(ticket, now, lastActivity) != lifecycle.Close {
			continue
		}
		summary.Candidates++
		summary.TicketIDs = append(summary.TicketIDs, ticket.ID)

		if a.dryRun {
			d.Logger.Info("auto-close: would close ticket",
				zap.String("ticket_id", ticket.ID),
				zap.Timep("last_activity", lastActivity))
			continue
		}

		closed, err := d.Engine.Close(ticket, now)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}
		if err := d.Tickets.Set(ctx, closed); err != nil {
			summary.Failed++
			d.Logger.Warn("auto-close: failed to store ticket",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("auto-close %s: %w", ticket.ID, err))
			continue
		}
		summary.Applied++
		d.Metrics.RecordTicketTransition("auto_closed")

		payload := events.TicketClosedPayload{Automatic: true, ClosedAt: now}
		if err := d.Archiver.ArchiveAndClose(ctx, ticket.ID); err != nil {
			payload.ArchiveError = err.Error()
			d.Logger.Warn("auto-close: archive failed; ticket stays closed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
		d.Logger.Info("auto-close: closed ticket", zap.String("ticket_id", ticket.ID))
		publish(ctx, d, events.New(events.EventTicketClosed, ticket.ID, events.SystemActor, now, payload))
	}

	if summary.Candidates > 0 || len(errs) > 0 {
		d.Logger.Info("auto-close: sweep finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("closed", summary.Applied),
			zap.Int("failed", summary.Failed),
			zap.Bool("dry_run", a.dryRun))
	}
	return summary, errors.Join(errs...)
}
