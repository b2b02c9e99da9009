package domain

import "time"

// TicketMessage is one chat message posted in a ticket channel, as reported
// by the chat bridge. Messages feed activity tracking and transcripts.
type TicketMessage struct {
	ID         string    `json:"id" cbor:"id"`
	TicketID   string    `json:"ticket_id" cbor:"ticket_id"`
	AuthorID   string    `json:"author_id" cbor:"author_id"`
	AuthorName string    `json:"author_name,omitempty" cbor:"author_name,omitempty"`
	Body       string    `json:"body" cbor:"body"`
	SentAt     time.Time `json:"sent_at" cbor:"sent_at"`
}
