package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/archive"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketService is the command surface over ticket records. It applies the
// lifecycle engine to stored records and performs the external side of each
// transition through the archiver.
type TicketService struct {
	engine      lifecycle.Engine
	tickets     repository.TicketStore
	messages    repository.TicketMessageRepository
	blacklist   repository.BlacklistRepository
	archiver    archive.Archiver
	transcripts archive.TranscriptSource
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Engine      lifecycle.Engine
	TicketRepo  repository.TicketStore
	MessageRepo repository.TicketMessageRepository
	Blacklist   repository.BlacklistRepository
	Archiver    archive.Archiver
	Transcripts archive.TranscriptSource
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

// OpenTicketInput describes a ticket channel created by the chat bridge.
type OpenTicketInput struct {
	ID         string
	CategoryID string
	CreatorID  string
}

// MessageInput describes one chat message reported by the bridge.
type MessageInput struct {
	ID         string
	AuthorID   string
	AuthorName string
	Body       string
	SentAt     *time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &TicketService{
		engine:      deps.Engine,
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		blacklist:   deps.Blacklist,
		archiver:    deps.Archiver,
		transcripts: deps.Transcripts,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
	}
}

// OpenTicket registers a new Open ticket for a channel.
func (s *TicketService) OpenTicket(ctx context.Context, input OpenTicketInput, actor events.Actor) (*domain.Ticket, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errorutil.NewValidationError("ticket id is required", nil)
	}
	now := s.now()
	if s.blacklist != nil && input.CreatorID != "" {
		banned, err := s.blacklist.Contains(ctx, input.CreatorID, now)
		if err != nil {
			return nil, errorutil.NewStoreError(err)
		}
		if banned {
			return nil, errorutil.NewForbidden("user is blacklisted")
		}
	}
	exists, err := s.tickets.Has(ctx, id)
	if err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	if exists {
		return nil, errorutil.NewConflict("ticket already exists", map[string]any{"id": id})
	}

	ticket := domain.Ticket{
		ID:         id,
		Status:     domain.TicketStatusOpen,
		CreatedAt:  now,
		CategoryID: strings.TrimSpace(input.CategoryID),
		CreatorID:  strings.TrimSpace(input.CreatorID),
	}
	if err := s.tickets.Set(ctx, ticket); err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	s.metrics.RecordTicketTransition("opened")
	s.publishEvent(ctx, events.New(events.EventTicketOpened, id, actor, now, events.TicketOpenedPayload{
		CategoryID: ticket.CategoryID,
		CreatorID:  ticket.CreatorID,
	}))
	return &ticket, nil
}

// GetTicket returns a ticket by channel ID.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	return ticket, nil
}

// ListTickets returns all tickets, optionally restricted to one status.
func (s *TicketService) ListTickets(ctx context.Context, status *domain.TicketStatus) ([]domain.Ticket, error) {
	if status != nil && !status.Valid() {
		return nil, errorutil.NewValidationError("invalid status", map[string]any{"status": *status})
	}
	all, err := s.tickets.All(ctx)
	if err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	if status == nil {
		return all, nil
	}
	result := make([]domain.Ticket, 0, len(all))
	for _, ticket := range all {
		if ticket.Status == *status {
			result = append(result, ticket)
		}
	}
	return result, nil
}

// CloseTicket closes an open ticket and archives its channel. A failed
// archive is logged; the close stands.
func (s *TicketService) CloseTicket(ctx context.Context, id string, actor events.Actor) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	now := s.now()
	closed, err := s.engine.Close(*ticket, now)
	if err != nil {
		return nil, transitionErr(err, id, "ticket is already closed")
	}
	if err := s.tickets.Set(ctx, closed); err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	s.metrics.RecordTicketTransition("closed")

	payload := events.TicketClosedPayload{ClosedAt: now}
	if s.archiver != nil {
		if err := s.archiver.ArchiveAndClose(ctx, id); err != nil {
			payload.ArchiveError = err.Error()
			s.logger.Warn("archive after close failed", zap.String("ticket_id", id), zap.Error(err))
		}
	}
	s.publishEvent(ctx, events.New(events.EventTicketClosed, id, actor, now, payload))
	return &closed, nil
}

// ReopenTicket reopens a closed ticket.
func (s *TicketService) ReopenTicket(ctx context.Context, id string, actor events.Actor) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	reopened, err := s.engine.Reopen(*ticket)
	if err != nil {
		return nil, transitionErr(err, id, "ticket is already open")
	}
	if err := s.tickets.Set(ctx, reopened); err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	s.metrics.RecordTicketTransition("reopened")
	s.publishEvent(ctx, events.New(events.EventTicketReopened, id, actor, s.now(), nil))
	return &reopened, nil
}

// ClaimTicket assigns an open ticket to a staff member. Claiming a ticket
// already held by the same staff member is a no-op.
func (s *TicketService) ClaimTicket(ctx context.Context, id, staffID string, actor events.Actor) (*domain.Ticket, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, errorutil.NewValidationError("staff id is required", nil)
	}
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	if ticket.Status != domain.TicketStatusOpen {
		return nil, errorutil.NewConflict("closed tickets cannot be claimed", map[string]any{"id": id})
	}
	if ticket.ClaimedBy == staffID {
		return ticket, nil
	}
	if ticket.ClaimedBy != "" {
		return nil, errorutil.NewConflict("ticket already claimed", map[string]any{"id": id, "claimed_by": ticket.ClaimedBy})
	}
	ticket.ClaimedBy = staffID
	if err := s.tickets.Set(ctx, *ticket); err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	s.publishEvent(ctx, events.New(events.EventTicketClaimed, id, actor, s.now(), events.TicketClaimedPayload{StaffID: staffID}))
	return ticket, nil
}

// DeleteTicket removes the channel and then the record. The record is kept
// when the channel cannot be deleted.
func (s *TicketService) DeleteTicket(ctx context.Context, id string, actor events.Actor) error {
	if _, err := s.tickets.Get(ctx, id); err != nil {
		return storeErr(err, id)
	}
	if s.archiver != nil {
		if err := s.archiver.DeleteChannel(ctx, id); err != nil {
			return errorutil.NewArchiveError(err)
		}
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return errorutil.NewStoreError(err)
	}
	s.metrics.RecordTicketTransition("deleted")
	s.publishEvent(ctx, events.New(events.EventTicketDeleted, id, actor, s.now(), events.TicketDeletedPayload{}))
	return nil
}

// Transcript archives the channel history without changing the ticket.
func (s *TicketService) Transcript(ctx context.Context, id string) (*archive.Manifest, error) {
	if _, err := s.tickets.Get(ctx, id); err != nil {
		return nil, storeErr(err, id)
	}
	if s.transcripts == nil {
		return nil, errorutil.NewArchiveError(errors.New("transcripts not configured"))
	}
	manifest, err := s.transcripts.Transcript(ctx, id)
	if err != nil {
		return nil, errorutil.NewArchiveError(err)
	}
	return manifest, nil
}

// RecordMessage appends a chat message to a ticket's message log.
func (s *TicketService) RecordMessage(ctx context.Context, ticketID string, input MessageInput) (*domain.TicketMessage, error) {
	if strings.TrimSpace(input.AuthorID) == "" {
		return nil, errorutil.NewValidationError("author id is required", nil)
	}
	if _, err := s.tickets.Get(ctx, ticketID); err != nil {
		return nil, storeErr(err, ticketID)
	}
	msg := domain.TicketMessage{
		ID:         input.ID,
		TicketID:   ticketID,
		AuthorID:   input.AuthorID,
		AuthorName: input.AuthorName,
		Body:       input.Body,
		SentAt:     s.now(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if input.SentAt != nil {
		msg.SentAt = *input.SentAt
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, errorutil.NewStoreError(err)
	}
	return &msg, nil
}

// BlacklistUser bars a user from opening tickets until the given time, or
// forever when until is nil.
func (s *TicketService) BlacklistUser(ctx context.Context, userID string, until *time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return errorutil.NewValidationError("user id is required", nil)
	}
	if until != nil && !until.After(s.now()) {
		return errorutil.NewValidationError("until must be in the future", nil)
	}
	if err := s.blacklist.Add(ctx, userID, until); err != nil {
		return errorutil.NewStoreError(err)
	}
	return nil
}

// UnblacklistUser lifts a blacklist entry.
func (s *TicketService) UnblacklistUser(ctx context.Context, userID string) error {
	if err := s.blacklist.Remove(ctx, userID); err != nil {
		return errorutil.NewStoreError(err)
	}
	return nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func storeErr(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errorutil.NewNotFound("ticket", map[string]any{"id": id}).Wrap(err)
	}
	return errorutil.NewStoreError(err)
}

func transitionErr(err error, id, message string) error {
	if errors.Is(err, lifecycle.ErrAlreadyInState) {
		return errorutil.NewAlreadyInState(message, map[string]any{"id": id}).Wrap(err)
	}
	return errorutil.NewInternalError(err)
}

// StaffActor is the actor for a staff-initiated command.
func StaffActor(id string) events.Actor {
	return events.Actor{Type: events.ActorStaff, ID: id}
}

// BridgeActor is the actor for calls made by the chat bridge.
func BridgeActor(id string) events.Actor {
	return events.Actor{Type: events.ActorBridge, ID: id}
}
