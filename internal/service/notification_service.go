package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/notify"
)

// NotificationService turns lifecycle events into staff notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. notifier may be nil.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClosed,
		events.EventTicketReopened,
		events.EventTicketDeleted,
		events.EventTicketClaimed,
	} {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	if n.notifier == nil {
		return nil
	}
	if err := n.notifier.Notify(ctx, Describe(event)); err != nil {
		n.logger.Warn("staff notification failed", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	return nil
}

// Describe renders an event as a one-line staff message.
func Describe(event events.Event) string {
	who := string(event.Actor.Type)
	if event.Actor.ID != "" {
		who = event.Actor.ID
	}
	switch p := event.Payload.(type) {
	case events.TicketClosedPayload:
		if p.Automatic {
			msg := fmt.Sprintf("Ticket %s auto-closed after inactivity", event.TicketID)
			if p.ArchiveError != "" {
				msg += " (archive failed: " + p.ArchiveError + ")"
			}
			return msg
		}
		return fmt.Sprintf("Ticket %s closed by %s", event.TicketID, who)
	case events.TicketDeletedPayload:
		if p.Automatic {
			return fmt.Sprintf("Ticket %s deleted by auto-delete", event.TicketID)
		}
		return fmt.Sprintf("Ticket %s deleted by %s", event.TicketID, who)
	case events.TicketClaimedPayload:
		return fmt.Sprintf("Ticket %s claimed by %s", event.TicketID, p.StaffID)
	case events.TicketOpenedPayload:
		if p.CategoryID != "" {
			return fmt.Sprintf("Ticket %s opened in %s", event.TicketID, p.CategoryID)
		}
	}
	verb := strings.TrimPrefix(string(event.Type), "ticket_")
	return fmt.Sprintf("Ticket %s %s by %s", event.TicketID, verb, who)
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
