package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

func seedMessages(t *testing.T) (repository.TicketStore, repository.TicketMessageRepository) {
	t.Helper()
	ctx := context.Background()
	tickets := repository.NewMemoryTicketStore()
	messages := repository.NewMemoryTicketMessageRepository()
	opened := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, tickets.Set(ctx, domain.Ticket{ID: "chan-1", Status: domain.TicketStatusOpen, CreatedAt: opened, CategoryID: "billing"}))
	require.NoError(t, messages.Append(ctx, domain.TicketMessage{ID: "m1", TicketID: "chan-1", AuthorName: "alice", Body: "my invoice is wrong", SentAt: opened.Add(time.Minute)}))
	require.NoError(t, messages.Append(ctx, domain.TicketMessage{ID: "m2", TicketID: "chan-1", AuthorID: "staff-1", Body: "<script>x</script>", SentAt: opened.Add(2 * time.Minute)}))
	return tickets, messages
}

func manifestPath(t *testing.T, dir string, m *Manifest) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "chan-1", "*manifest.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.FileExists(t, filepath.Join(dir, "chan-1", m.File))
	return matches[0]
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("ticket transcript line\n", 200))
	for _, c := range []string{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(c, func(t *testing.T) {
			packed, err := compress(data, c)
			require.NoError(t, err)
			if c != CompressionNone {
				assert.Less(t, len(packed), len(data))
			}
			out, err := decompress(packed, c)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
	_, err := compress(data, "gzip")
	assert.Error(t, err)
}

func TestTranscriber_WritesVerifiableTranscript(t *testing.T) {
	dir := t.TempDir()
	tickets, messages := seedMessages(t)
	tr, err := NewTranscriber(config.ArchiveConfig{Dir: dir, Compression: CompressionZstd}, tickets, messages, nil)
	require.NoError(t, err)

	m, err := tr.Transcript(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.MessageCount)
	assert.False(t, m.Encrypted)
	assert.True(t, strings.HasSuffix(m.File, ".html.zst"))
	assert.Len(t, m.Digest, 64)

	html, err := ReadTranscript(manifestPath(t, dir, m))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Ticket chan-1</h1>")
	assert.Contains(t, string(html), "my invoice is wrong")
	assert.Contains(t, string(html), "Category: billing")
	assert.NotContains(t, string(html), "<script>")
}

func TestTranscriber_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	tickets, messages := seedMessages(t)
	tr, err := NewTranscriber(config.ArchiveConfig{Dir: dir, Compression: CompressionNone}, tickets, messages, nil)
	require.NoError(t, err)

	m, err := tr.Transcript(context.Background(), "chan-1")
	require.NoError(t, err)
	path := manifestPath(t, dir, m)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chan-1", m.File), []byte("forged"), 0o600))

	_, err = ReadTranscript(path)
	assert.ErrorContains(t, err, "digest mismatch")
}

func TestReadTranscript_RejectsFileOutsideManifestDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("outside"), 0o600))
	sub := filepath.Join(dir, "chan-1")
	require.NoError(t, os.Mkdir(sub, 0o755))

	for _, name := range []string{"../secret.txt", "/etc/passwd", "", ".."} {
		t.Run(name, func(t *testing.T) {
			raw, err := json.Marshal(Manifest{ID: "t1", File: name})
			require.NoError(t, err)
			path := filepath.Join(sub, "t1.manifest.json")
			require.NoError(t, os.WriteFile(path, raw, 0o600))

			_, err = ReadTranscript(path)
			assert.ErrorContains(t, err, "invalid file name")
		})
	}
}

func TestTranscriber_EncryptsForRecipients(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	dir := t.TempDir()
	tickets, messages := seedMessages(t)
	cfg := config.ArchiveConfig{Dir: dir, Compression: CompressionLZ4, Recipients: []string{identity.Recipient().String()}}
	tr, err := NewTranscriber(cfg, tickets, messages, nil)
	require.NoError(t, err)

	m, err := tr.Transcript(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.True(t, m.Encrypted)
	assert.True(t, strings.HasSuffix(m.File, ".html.lz4.age"))

	path := manifestPath(t, dir, m)
	_, err = ReadTranscript(path)
	assert.ErrorContains(t, err, "identity required")

	html, err := ReadTranscript(path, identity)
	require.NoError(t, err)
	assert.Contains(t, string(html), "my invoice is wrong")
}

func TestNewTranscriber_RejectsBadRecipient(t *testing.T) {
	_, err := NewTranscriber(config.ArchiveConfig{Compression: CompressionNone, Recipients: []string{"not-a-key"}},
		repository.NewMemoryTicketStore(), repository.NewMemoryTicketMessageRepository(), nil)
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "chan-1", safeName("chan-1"))
	assert.Equal(t, "_etc_passwd", safeName("../etc/passwd"))
	assert.Equal(t, "_", safeName(""))
}

type bridgeCall struct {
	method, path, auth string
}

func startBridge(t *testing.T, deleteStatus int) (string, func() []bridgeCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []bridgeCall
	)
	app := fiber.New(fiber.Config{DisableStartupMessage: true, Immutable: true})
	record := func(c *fiber.Ctx) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, bridgeCall{method: c.Method(), path: c.Path(), auth: c.Get(fiber.HeaderAuthorization)})
	}
	app.Post("/channels/:id/lock", func(c *fiber.Ctx) error {
		record(c)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Delete("/channels/:id", func(c *fiber.Ctx) error {
		record(c)
		return c.SendStatus(deleteStatus)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String(), func() []bridgeCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]bridgeCall(nil), calls...)
	}
}

func TestHTTPBridge(t *testing.T) {
	tests := []struct {
		name         string
		deleteStatus int
		wantErr      bool
	}{
		{name: "deleted", deleteStatus: fiber.StatusNoContent},
		{name: "already gone", deleteStatus: fiber.StatusNotFound},
		{name: "platform error", deleteStatus: fiber.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseURL, calls := startBridge(t, tt.deleteStatus)
			bridge := NewBridge(config.ArchiveConfig{BridgeURL: baseURL + "/", BridgeToken: "secret", BridgeTimeoutSeconds: 5})
			ctx := context.Background()

			require.NoError(t, bridge.LockChannel(ctx, "chan-1"))
			err := bridge.DeleteChannel(ctx, "chan-1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			got := calls()
			require.Len(t, got, 2)
			assert.Equal(t, bridgeCall{method: fiber.MethodPost, path: "/channels/chan-1/lock", auth: "Bearer secret"}, got[0])
			assert.Equal(t, fiber.MethodDelete, got[1].method)
		})
	}
}

func TestNewBridge_NoURLIsNoop(t *testing.T) {
	bridge := NewBridge(config.ArchiveConfig{})
	assert.IsType(t, NoopBridge{}, bridge)
	assert.NoError(t, bridge.DeleteChannel(context.Background(), "x"))
}

type stubTranscripts struct{ err error }

func (s stubTranscripts) Transcript(context.Context, string) (*Manifest, error) {
	return &Manifest{}, s.err
}

type stubBridge struct {
	lockErr, deleteErr error
	deleted            []string
}

func (b *stubBridge) LockChannel(context.Context, string) error { return b.lockErr }

func (b *stubBridge) DeleteChannel(_ context.Context, id string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, id)
	return nil
}

func TestChannelArchiver_ArchiveAndCloseJoinsFailures(t *testing.T) {
	archiver := NewChannelArchiver(stubTranscripts{err: errors.New("disk full")}, &stubBridge{lockErr: errors.New("bridge down")},
		repository.NewMemoryTicketMessageRepository(), nil)

	err := archiver.ArchiveAndClose(context.Background(), "chan-1")
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorContains(t, err, "bridge down")
}

func TestChannelArchiver_DeleteChannelDropsLogOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	_, messages := seedMessages(t)

	failing := NewChannelArchiver(stubTranscripts{}, &stubBridge{deleteErr: errors.New("timeout")}, messages, nil)
	require.Error(t, failing.DeleteChannel(ctx, "chan-1"))
	msgs, err := messages.ListByTicket(ctx, "chan-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	bridge := &stubBridge{}
	archiver := NewChannelArchiver(stubTranscripts{}, bridge, messages, nil)
	require.NoError(t, archiver.DeleteChannel(ctx, "chan-1"))
	assert.Equal(t, []string{"chan-1"}, bridge.deleted)
	msgs, err = messages.ListByTicket(ctx, "chan-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
