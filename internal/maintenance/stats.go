package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Stats is a count of tickets by state.
type Stats struct {
	Open      int       `json:"open"`
	Closed    int       `json:"closed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatsSink receives each published snapshot.
type StatsSink interface {
	PublishStats(ctx context.Context, stats Stats) error
}

// StatsPublisher counts tickets and hands the result to its sinks.
type StatsPublisher struct {
	tickets repository.TicketStore
	sinks   []StatsSink
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatsPublisher builds the stats task. The snapshot is always logged.
func NewStatsPublisher(tickets repository.TicketStore, logger *zap.Logger, now func() time.Time, sinks ...StatsSink) *StatsPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &StatsPublisher{tickets: tickets, sinks: sinks, logger: logger, now: now}
}

// Collect counts the current tickets.
func (p *StatsPublisher) Collect(ctx context.Context) (Stats, error) {
	tickets, err := p.tickets.All(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: list tickets: %w", err)
	}
	stats := Stats{Total: len(tickets), UpdatedAt: p.now().UTC()}
	for _, ticket := range tickets {
		switch ticket.Status {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
	}
	return stats, nil
}

// Run collects and publishes one snapshot.
func (p *StatsPublisher) Run(ctx context.Context) error {
	stats, err := p.Collect(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("ticket stats",
		zap.Int("open", stats.Open),
		zap.Int("closed", stats.Closed),
		zap.Int("total", stats.Total))
	for _, sink := range p.sinks {
		if err := sink.PublishStats(ctx, stats); err != nil {
			return fmt.Errorf("stats: publish: %w", err)
		}
	}
	return nil
}

// RedisStatsSink writes the snapshot to the hash "<prefix>:stats".
type RedisStatsSink struct {
	client *redis.Client
	key    string
}

// NewRedisStatsSink returns a sink on client.
func NewRedisStatsSink(client *redis.Client, prefix string) *RedisStatsSink {
	return &RedisStatsSink{client: client, key: prefix + ":stats"}
}

// PublishStats overwrites the stats hash.
func (s *RedisStatsSink) PublishStats(ctx context.Context, stats Stats) error {
	return s.client.HSet(ctx, s.key,
		"open", stats.Open,
		"closed", stats.Closed,
		"total", stats.Total,
		"updated_at", stats.UpdatedAt.Format(time.RFC3339),
	).Err()
}
