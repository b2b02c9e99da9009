package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// HistoryService records every lifecycle event as an audit entry.
type HistoryService struct {
	history repository.TicketHistoryRepository
	logger  *zap.Logger
}

// NewHistoryService builds the service.
func NewHistoryService(history repository.TicketHistoryRepository, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{history: history, logger: logger}
}

// RegisterHandlers subscribes to all lifecycle events.
func (h *HistoryService) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClosed,
		events.EventTicketReopened,
		events.EventTicketDeleted,
		events.EventTicketClaimed,
	} {
		dispatcher.Subscribe(eventType, h.record)
	}
}

func (h *HistoryService) record(ctx context.Context, event events.Event) error {
	entry := domain.TicketHistory{
		ID:        event.ID,
		TicketID:  event.TicketID,
		Event:     string(event.Type),
		ActorType: string(event.Actor.Type),
		ActorID:   event.Actor.ID,
		Detail:    Describe(event),
		CreatedAt: event.Timestamp,
	}
	if err := h.history.Create(ctx, entry); err != nil {
		h.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

// ListHistory returns the audit trail of a ticket, including tickets that
// have since been deleted.
func (h *HistoryService) ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	entries, err := h.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	return entries, nil
}
