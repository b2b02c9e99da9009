// Package archive stores ticket transcripts and performs the chat-platform
// side of closing and deleting ticket channels.
package archive

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Archiver is the external side of ticket transitions. ArchiveAndClose is
// best-effort; DeleteChannel must succeed before a record is dropped.
type Archiver interface {
	ArchiveAndClose(ctx context.Context, channelID string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// TranscriptSource produces a transcript on demand.
type TranscriptSource interface {
	Transcript(ctx context.Context, channelID string) (*Manifest, error)
}

// ChannelArchiver writes a transcript and locks the channel on close, and
// deletes the channel and its message log on delete.
type ChannelArchiver struct {
	transcripts TranscriptSource
	bridge      Bridge
	messages    repository.TicketMessageRepository
	logger      *zap.Logger
}

// NewChannelArchiver wires an archiver.
func NewChannelArchiver(transcripts TranscriptSource, bridge Bridge, messages repository.TicketMessageRepository, logger *zap.Logger) *ChannelArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelArchiver{transcripts: transcripts, bridge: bridge, messages: messages, logger: logger}
}

// ArchiveAndClose transcribes the channel, then locks it. Both steps are
// attempted; their failures are joined.
func (a *ChannelArchiver) ArchiveAndClose(ctx context.Context, channelID string) error {
	var errs []error
	if _, err := a.transcripts.Transcript(ctx, channelID); err != nil {
		errs = append(errs, fmt.Errorf("transcript: %w", err))
	}
	if err := a.bridge.LockChannel(ctx, channelID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeleteChannel removes the channel on the platform, then drops its message
// log. A failure to drop the log is logged only.
func (a *ChannelArchiver) DeleteChannel(ctx context.Context, channelID string) error {
	if err := a.bridge.DeleteChannel(ctx, channelID); err != nil {
		return err
	}
	if err := a.messages.DeleteByTicket(ctx, channelID); err != nil {
		a.logger.Warn("failed to drop message log", zap.String("ticket_id", channelID), zap.Error(err))
	}
	return nil
}

var _ Archiver = (*ChannelArchiver)(nil)
