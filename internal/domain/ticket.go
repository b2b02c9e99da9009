package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "Open"
	TicketStatusClosed TicketStatus = "Closed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusOpen || s == TicketStatusClosed
}

// Ticket is the lifecycle record kept for every ticket channel. ID is the
// channel identifier on the chat platform.
type Ticket struct {
	ID         string       `json:"id" cbor:"id"`
	Status     TicketStatus `json:"status" cbor:"status"`
	CreatedAt  time.Time    `json:"created_at" cbor:"created_at"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty" cbor:"closed_at,omitempty"`
	CategoryID string       `json:"category_id,omitempty" cbor:"category_id,omitempty"`
	CreatorID  string       `json:"creator_id,omitempty" cbor:"creator_id,omitempty"`
	ClaimedBy  string       `json:"claimed_by,omitempty" cbor:"claimed_by,omitempty"`
}

// Consistent reports whether ClosedAt agrees with Status: set when Closed,
// unset when Open.
func (t Ticket) Consistent() bool {
	switch t.Status {
	case TicketStatusClosed:
		return t.ClosedAt != nil
	case TicketStatusOpen:
		return t.ClosedAt == nil
	default:
		return false
	}
}

// Clone returns a copy that shares no pointers with t.
func (t Ticket) Clone() Ticket {
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		t.ClosedAt = &closedAt
	}
	return t
}
