package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Manifest describes one stored transcript. It is written as JSON next to
// the transcript file.
type Manifest struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	File         string    `json:"file"`
	Compression  string    `json:"compression"`
	Encrypted    bool      `json:"encrypted"`
	Size         int       `json:"size"`
	Digest       string    `json:"digest"`
}

// Transcriber renders a ticket's message history to a stored transcript.
type Transcriber struct {
	dir         string
	compression string
	recipients  []age.Recipient
	tickets     repository.TicketStore
	messages    repository.TicketMessageRepository
	markdown    goldmark.Markdown
	logger      *zap.Logger
	now         func() time.Time
}

// NewTranscriber builds a transcriber from the archive configuration.
func NewTranscriber(cfg config.ArchiveConfig, tickets repository.TicketStore, messages repository.TicketMessageRepository, logger *zap.Logger) (*Transcriber, error) {
	recipients, err := parseRecipients(cfg.Recipients)
	if err != nil {
		return nil, err
	}
	if _, err := compress(nil, cfg.Compression); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{
		dir:         cfg.Dir,
		compression: cfg.Compression,
		recipients:  recipients,
		tickets:     tickets,
		messages:    messages,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Transcript writes the current message history of ticketID and returns its
// manifest. A ticket without a stored record is still transcribed.
func (t *Transcriber) Transcript(ctx context.Context, ticketID string) (*Manifest, error) {
	msgs, err := t.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", ticketID, err)
	}
	ticket, err := t.tickets.Get(ctx, ticketID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if ticket == nil {
		ticket = &domain.Ticket{ID: ticketID}
	}

	var html bytes.Buffer
	if err := t.markdown.Convert(RenderMarkdown(*ticket, msgs), &html); err != nil {
		return nil, fmt.Errorf("render transcript %s: %w", ticketID, err)
	}
	doc := wrapHTML(ticketID, html.Bytes())

	payload, err := compress(doc, t.compression)
	if err != nil {
		return nil, err
	}
	name := "transcript.html" + fileExtension(t.compression)
	if len(t.recipients) > 0 {
		if payload, err = seal(payload, t.recipients); err != nil {
			return nil, err
		}
		name += ".age"
	}

	now := t.now().UTC()
	id := uuid.NewString()
	digest := blake3.Sum256(payload)
	manifest := &Manifest{
		ID:           id,
		TicketID:     ticketID,
		CreatedAt:    now,
		MessageCount: len(msgs),
		File:         fmt.Sprintf("%s-%s-%s", now.Format("20060102T150405Z"), id[:8], name),
		Compression:  t.compression,
		Encrypted:    len(t.recipients) > 0,
		Size:         len(payload),
		Digest:       hex.EncodeToString(digest[:]),
	}

	dir := filepath.Join(t.dir, safeName(ticketID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.File), payload, 0o640); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	meta, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, strings.TrimSuffix(manifest.File, name)+"manifest.json"), meta, 0o640); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	t.logger.Info("transcript archived",
		zap.String("ticket_id", ticketID),
		zap.String("file", manifest.File),
		zap.Int("messages", len(msgs)),
		zap.Int("bytes", len(payload)))
	return manifest, nil
}

// ReadTranscript loads the transcript described by the manifest at
// manifestPath, verifies its digest and returns the HTML document.
// Encrypted transcripts need a matching identity.
func ReadTranscript(manifestPath string, identities ...age.Identity) ([]byte, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.File == "" || filepath.Base(m.File) != m.File || m.File == "." || m.File == ".." {
		return nil, fmt.Errorf("transcript %s: invalid file name %q", m.ID, m.File)
	}
	payload, err := os.ReadFile(filepath.Join(filepath.Dir(manifestPath), m.File))
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(payload)
	if hex.EncodeToString(digest[:]) != m.Digest {
		return nil, fmt.Errorf("transcript %s: digest mismatch", m.ID)
	}
	if m.Encrypted {
		if len(identities) == 0 {
			return nil, fmt.Errorf("transcript %s is encrypted; identity required", m.ID)
		}
		if payload, err = unseal(payload, identities...); err != nil {
			return nil, err
		}
	}
	return decompress(payload, m.Compression)
}

// RenderMarkdown formats a ticket and its messages as Markdown.
func RenderMarkdown(ticket domain.Ticket, msgs []domain.TicketMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Ticket %s\n\n", ticket.ID)
	if ticket.Status != "" {
		fmt.Fprintf(&b, "- Status: %s\n", ticket.Status)
	}
	if ticket.CategoryID != "" {
		fmt.Fprintf(&b, "- Category: %s\n", ticket.CategoryID)
	}
	if ticket.CreatorID != "" {
		fmt.Fprintf(&b, "- Opened by: %s\n", ticket.CreatorID)
	}
	if !ticket.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Opened at: %s\n", ticket.CreatedAt.UTC().Format(time.RFC3339))
	}
	if ticket.ClosedAt != nil {
		fmt.Fprintf(&b, "- Closed at: %s\n", ticket.ClosedAt.UTC().Format(time.RFC3339))
	}
	if ticket.ClaimedBy != "" {
		fmt.Fprintf(&b, "- Claimed by: %s\n", ticket.ClaimedBy)
	}
	b.WriteString("\n## Messages\n\n")
	if len(msgs) == 0 {
		b.WriteString("_No messages._\n")
	}
	for _, msg := range msgs {
		author := msg.AuthorName
		if author == "" {
			author = msg.AuthorID
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n", author, msg.SentAt.UTC().Format(time.RFC3339))
		for _, line := range strings.Split(msg.Body, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func wrapHTML(title string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Ticket ")
	b.WriteString(htmlEscaper.Replace(title))
	b.WriteString("</title></head><body>\n")
	b.Write(body)
	b.WriteString("</body></html>\n")
	return b.Bytes()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func safeName(id string) string {
	name := unsafeName.ReplaceAllString(id, "_")
	if name == "" {
		return "_"
	}
	return name
}
