package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// BlacklistCleaner drops blacklist entries whose expiry has passed.
type BlacklistCleaner struct {
	blacklist repository.BlacklistRepository
	logger    *zap.Logger
	now       func() time.Time
}

// NewBlacklistCleaner builds the cleanup task.
func NewBlacklistCleaner(blacklist repository.BlacklistRepository, logger *zap.Logger, now func() time.Time) *BlacklistCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &BlacklistCleaner{blacklist: blacklist, logger: logger, now: now}
}

// Run removes expired entries.
func (c *BlacklistCleaner) Run(ctx context.Context) error {
	removed, err := c.blacklist.RemoveExpired(ctx, c.now())
	if err != nil {
		return fmt.Errorf("blacklist cleanup: %w", err)
	}
	if removed > 0 {
		c.logger.Info("blacklist cleanup: removed expired entries", zap.Int("removed", removed))
	}
	return nil
}
