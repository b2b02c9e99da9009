// Package lifecycle holds the ticket state machine. Every function is a pure
// function of its arguments: callers pass the current time, the engine never
// reads a clock and never keeps state between calls.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// DefaultThreshold is the inactivity and retention window used when none is
// configured.
const DefaultThreshold = 24 * time.Hour

// ErrAlreadyInState is returned by Close and Reopen when the ticket is
// already in the requested state.
var ErrAlreadyInState = errors.New("ticket already in requested state")

// Decision is the outcome of an auto-close or auto-delete evaluation.
type Decision int

const (
	Skip Decision = iota
	Close
	Delete
)

func (d Decision) String() string {
	switch d {
	case Close:
		return "close"
	case Delete:
		return "delete"
	default:
		return "skip"
	}
}

// Engine decides ticket transitions.
type Engine struct {
	autoCloseThreshold  time.Duration
	autoDeleteThreshold time.Duration
}

// NewEngine builds an engine. Non-positive thresholds fall back to
// DefaultThreshold.
func NewEngine(autoCloseThreshold, autoDeleteThreshold time.Duration) Engine {
	if autoCloseThreshold <= 0 {
		autoCloseThreshold = DefaultThreshold
	}
	if autoDeleteThreshold <= 0 {
		autoDeleteThreshold = DefaultThreshold
	}
	return Engine{
		autoCloseThreshold:  autoCloseThreshold,
		autoDeleteThreshold: autoDeleteThreshold,
	}
}

// AutoCloseThreshold returns the inactivity window after which an open
// ticket is closed.
func (e Engine) AutoCloseThreshold() time.Duration { return e.autoCloseThreshold }

// AutoDeleteThreshold returns the retention window after which a closed
// ticket is deleted.
func (e Engine) AutoDeleteThreshold() time.Duration { return e.autoDeleteThreshold }

// EvaluateAutoClose decides whether an open ticket has been idle long enough
// to close. A nil lastActivity means the activity is unknown and always
// yields Skip.
func (e Engine) EvaluateAutoClose(ticket domain.Ticket, now time.Time, lastActivity *time.Time) Decision {
	if ticket.Status != domain.TicketStatusOpen || lastActivity == nil {
		return Skip
	}
	if elapsed(now, *lastActivity) > e.autoCloseThreshold {
		return Close
	}
	return Skip
}

// EvaluateAutoDelete decides whether a closed ticket is past retention.
// Closed tickets without a close time are never deleted.
func (e Engine) EvaluateAutoDelete(ticket domain.Ticket, now time.Time) Decision {
	if ticket.Status != domain.TicketStatusClosed || ticket.ClosedAt == nil {
		return Skip
	}
	if elapsed(now, *ticket.ClosedAt) > e.autoDeleteThreshold {
		return Delete
	}
	return Skip
}

// Close returns the ticket in the Closed state stamped with now.
func (e Engine) Close(ticket domain.Ticket, now time.Time) (domain.Ticket, error) {
	if ticket.Status == domain.TicketStatusClosed {
		return ticket, fmt.Errorf("ticket %s: %w", ticket.ID, ErrAlreadyInState)
	}
	closed := ticket.Clone()
	closedAt := now
	closed.Status = domain.TicketStatusClosed
	closed.ClosedAt = &closedAt
	return closed, nil
}

// Reopen returns the ticket in the Open state with the close time cleared.
func (e Engine) Reopen(ticket domain.Ticket) (domain.Ticket, error) {
	if ticket.Status == domain.TicketStatusOpen {
		return ticket, fmt.Errorf("ticket %s: %w", ticket.ID, ErrAlreadyInState)
	}
	reopened := ticket.Clone()
	reopened.Status = domain.TicketStatusOpen
	reopened.ClosedAt = nil
	return reopened, nil
}

// elapsed compares whole seconds, so sub-second jitter on either side never
// tips a ticket over its threshold.
func elapsed(now, since time.Time) time.Duration {
	return time.Duration(now.Unix()-since.Unix()) * time.Second
}
