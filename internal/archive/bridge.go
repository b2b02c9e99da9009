package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
)

// Bridge performs platform-level operations on a ticket channel through the
// chat bridge.
type Bridge interface {
	LockChannel(ctx context.Context, channelID string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// NewBridge returns an HTTP bridge when a URL is configured, otherwise a
// bridge that does nothing.
func NewBridge(cfg config.ArchiveConfig) Bridge {
	if cfg.BridgeURL == "" {
		return NoopBridge{}
	}
	return &HTTPBridge{
		baseURL: strings.TrimRight(cfg.BridgeURL, "/"),
		token:   cfg.BridgeToken,
		timeout: time.Duration(cfg.BridgeTimeoutSeconds) * time.Second,
	}
}

// NoopBridge is used when the service runs without a chat bridge.
type NoopBridge struct{}

func (NoopBridge) LockChannel(context.Context, string) error   { return nil }
func (NoopBridge) DeleteChannel(context.Context, string) error { return nil }

// HTTPBridge calls the chat bridge REST API.
//
//	POST   {base}/channels/{id}/lock
//	DELETE {base}/channels/{id}
type HTTPBridge struct {
	baseURL string
	token   string
	timeout time.Duration
}

// LockChannel revokes posting rights in the channel.
func (b *HTTPBridge) LockChannel(ctx context.Context, channelID string) error {
	code, err := b.do(ctx, fiber.Post(b.channelURL(channelID)+"/lock"))
	if err != nil {
		return fmt.Errorf("lock channel %s: %w", channelID, err)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("lock channel %s: bridge returned %d", channelID, code)
	}
	return nil
}

// DeleteChannel removes the channel. A channel that is already gone counts
// as deleted.
func (b *HTTPBridge) DeleteChannel(ctx context.Context, channelID string) error {
	code, err := b.do(ctx, fiber.Delete(b.channelURL(channelID)))
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	if code == fiber.StatusNotFound || (code >= 200 && code < 300) {
		return nil
	}
	return fmt.Errorf("delete channel %s: bridge returned %d", channelID, code)
}

func (b *HTTPBridge) channelURL(channelID string) string {
	return b.baseURL + "/channels/" + url.PathEscape(channelID)
}

func (b *HTTPBridge) do(ctx context.Context, agent *fiber.Agent) (int, error) {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return 0, err
	}
	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	if b.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+b.token)
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return code, nil
}
