package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// OpenTicketRequest payload sent by the chat bridge when a ticket channel
// is created.
type OpenTicketRequest struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	CreatorID  string `json:"creator_id"`
}

// ClaimTicketRequest payload. StaffID defaults to the caller.
type ClaimTicketRequest struct {
	StaffID string `json:"staff_id"`
}

// TicketResponse represents one ticket record.
type TicketResponse struct {
	ID         string              `json:"id"`
	Status     domain.TicketStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ClosedAt   *time.Time          `json:"closed_at"`
	CategoryID string              `json:"category_id,omitempty"`
	CreatorID  string              `json:"creator_id,omitempty"`
	ClaimedBy  string              `json:"claimed_by,omitempty"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	Body       string     `json:"body"`
	SentAt     *time.Time `json:"sent_at"`
}

// TicketMessageResponse represents a recorded chat message.
type TicketMessageResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

// TranscriptResponse describes an archived transcript.
type TranscriptResponse struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	File         string    `json:"file"`
	MessageCount int       `json:"message_count"`
	Compression  string    `json:"compression"`
	Encrypted    bool      `json:"encrypted"`
	Size         int       `json:"size"`
	Digest       string    `json:"digest"`
	CreatedAt    time.Time `json:"created_at"`
}
