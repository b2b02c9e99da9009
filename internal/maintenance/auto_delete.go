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

// AutoDeleter removes closed tickets once they have been closed for longer
// than the engine's auto-delete threshold.
type AutoDeleter struct {
	deps   Dependencies
	dryRun bool
}

// NewAutoDeleter builds the auto-delete sweep.
func NewAutoDeleter(deps Dependencies, dryRun bool) *AutoDeleter {
	return &AutoDeleter{deps: deps.withDefaults(), dryRun: dryRun}
}

// Run performs one sweep; it matches scheduler.Task.
func (a *AutoDeleter) Run(ctx context.Context) error {
	_, err := a.Sweep(ctx)
	return err
}

// Sweep deletes every eligible channel and then its record. A record is only
// removed after its channel is gone; a failed channel delete leaves the
// record for the next sweep. Closed tickets without a close time are never
// deleted.
func (a *AutoDeleter) Sweep(ctx context.Context) (Summary, error) {
	d := a.deps
	now := d.Now()
	summary := Summary{DryRun: a.dryRun}

	tickets, err := d.Tickets.All(ctx)
	if err != nil {
		return summary, fmt.Errorf("auto-delete: list tickets: %w", err)
	}

	var errs []error
	for _, ticket := range tickets {
		if ticket.Status != domain.TicketStatusClosed {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary.Scanned++

		if ticket.ClosedAt == nil {
			d.Logger.Debug("auto-delete: closed ticket has no close time; skipping",
				zap.String("ticket_id", ticket.ID))
			continue
		}
		if d.Engine.EvaluateAutoDelete(ticket, now) != lifecycle.Delete {
			continue
		}
		summary.Candidates++
		summary.TicketIDs = append(summary.TicketIDs, ticket.ID)

		if a.dryRun {
			d.Logger.Info("auto-delete: would delete ticket",
				zap.String("ticket_id", ticket.ID),
				zap.Timep("closed_at", ticket.ClosedAt))
			continue
		}

		if err := d.Archiver.DeleteChannel(ctx, ticket.ID); err != nil {
			summary.Failed++
			d.Logger.Warn("auto-delete: channel delete failed; record kept for retry",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("auto-delete %s: archive: %w", ticket.ID, err))
			continue
		}
		if err := d.Tickets.Delete(ctx, ticket.ID); err != nil {
			summary.Failed++
			d.Logger.Warn("auto-delete: failed to remove record",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("auto-delete %s: %w", ticket.ID, err))
			continue
		}
		summary.Applied++
		d.Metrics.RecordTicketTransition("auto_deleted")
		d.Logger.Info("auto-delete: deleted ticket", zap.String("ticket_id", ticket.ID))
		publish(ctx, d, events.New(events.EventTicketDeleted, ticket.ID, events.SystemActor, now, events.TicketDeletedPayload{Automatic: true}))
	}

	if summary.Candidates > 0 || len(errs) > 0 {
		d.Logger.Info("auto-delete: sweep finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("deleted", summary.Applied),
			zap.Int("failed", summary.Failed),
			zap.Bool("dry_run", a.dryRun))
	}
	return summary, errors.Join(errs...)
}
