package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened   EventType = "ticket_opened"
	EventTicketClosed   EventType = "ticket_closed"
	EventTicketReopened EventType = "ticket_reopened"
	EventTicketDeleted  EventType = "ticket_deleted"
	EventTicketClaimed  EventType = "ticket_claimed"
)

// ActorType says who caused an event.
type ActorType string

const (
	ActorStaff  ActorType = "staff"
	ActorBridge ActorType = "bridge"
	ActorSystem ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is the actor of scheduled maintenance.
var SystemActor = Actor{Type: ActorSystem}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	CategoryID string `json:"category_id,omitempty"`
	CreatorID  string `json:"creator_id,omitempty"`
}

// TicketClosedPayload payload. ArchiveError is set when the transcript or
// channel lock failed; the close stands regardless.
type TicketClosedPayload struct {
	Automatic    bool      `json:"automatic"`
	ClosedAt     time.Time `json:"closed_at"`
	ArchiveError string    `json:"archive_error,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Automatic bool `json:"automatic"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	StaffID string `json:"staff_id"`
}
