// Package activity answers when a ticket channel last saw a message.
package activity

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Probe reports the most recent activity in a channel. A nil time with a nil
// error means the activity is unknown: the channel has no messages or cannot
// be fetched.
type Probe interface {
	LastActivity(ctx context.Context, channelID string) (*time.Time, error)
}

// MessageProbe derives activity from the recorded message log.
type MessageProbe struct {
	messages repository.TicketMessageRepository
}

// NewMessageProbe returns a probe over messages.
func NewMessageProbe(messages repository.TicketMessageRepository) *MessageProbe {
	return &MessageProbe{messages: messages}
}

// LastActivity returns the send time of the latest message.
func (p *MessageProbe) LastActivity(ctx context.Context, channelID string) (*time.Time, error) {
	return p.messages.LastSentAt(ctx, channelID)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context, channelID string) (*time.Time, error)

// LastActivity calls f.
func (f ProbeFunc) LastActivity(ctx context.Context, channelID string) (*time.Time, error) {
	return f(ctx, channelID)
}

// Static is a Probe backed by a fixed map, for tests and tooling.
type Static map[string]time.Time

// LastActivity returns the mapped time or unknown.
func (s Static) LastActivity(_ context.Context, channelID string) (*time.Time, error) {
	t, ok := s[channelID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

var (
	_ Probe = (*MessageProbe)(nil)
	_ Probe = Static(nil)
)
