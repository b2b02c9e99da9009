package domain

import "time"

// TicketHistory is an immutable audit trail entry for one lifecycle event.
// Entries outlive the ticket record they describe.
type TicketHistory struct {
	ID        string    `json:"id" cbor:"id"`
	TicketID  string    `json:"ticket_id" cbor:"ticket_id"`
	Event     string    `json:"event" cbor:"event"`
	ActorType string    `json:"actor_type" cbor:"actor_type"`
	ActorID   string    `json:"actor_id,omitempty" cbor:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty" cbor:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
}
