package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Stores holds the repositories for the configured store driver.
type Stores struct {
	Tickets   repository.TicketStore
	Messages  repository.TicketMessageRepository
	Blacklist repository.BlacklistRepository
	History   repository.TicketHistoryRepository
	// Redis is set when the driver is redis or the stats task publishes
	// snapshots there.
	Redis   *persistence.Redis
	Pingers map[string]handlers.Pinger

	closers []func()
}

// OpenStores connects the backend selected by cfg.Store.Driver.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	s := &Stores{Pingers: map[string]handlers.Pinger{}}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.Tickets = repository.NewMemoryTicketStore()
		s.Messages = repository.NewMemoryTicketMessageRepository()
		s.Blacklist = repository.NewMemoryBlacklistRepository()
		s.History = repository.NewMemoryTicketHistoryRepository()
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				s.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		s.Tickets = repository.NewPostgresTicketStore(pg.Pool)
		s.Messages = repository.NewPostgresTicketMessageRepository(pg.Pool)
		s.Blacklist = repository.NewPostgresBlacklistRepository(pg.Pool)
		s.History = repository.NewPostgresTicketHistoryRepository(pg.Pool)
		s.Pingers["postgres"] = pg
	case config.DriverSQLite, config.DriverMySQL:
		db, err := persistence.NewSQL(ctx, cfg.Store.Driver, cfg.SQL, logger)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Store.Driver, err)
		}
		s.closers = append(s.closers, db.Close)
		s.Tickets = repository.NewSQLTicketStore(db.DB, db.Dialect)
		s.Messages = repository.NewSQLTicketMessageRepository(db.DB, db.Dialect)
		s.Blacklist = repository.NewSQLBlacklistRepository(db.DB, db.Dialect)
		s.History = repository.NewSQLTicketHistoryRepository(db.DB)
		s.Pingers[cfg.Store.Driver] = db
	case config.DriverRedis:
		rdb := s.redis(ctx, cfg, logger)
		s.Tickets = repository.NewRedisTicketStore(rdb.Client, rdb.Prefix)
		s.Messages = repository.NewRedisTicketMessageRepository(rdb.Client, rdb.Prefix)
		s.Blacklist = repository.NewRedisBlacklistRepository(rdb.Client, rdb.Prefix)
		s.History = repository.NewRedisTicketHistoryRepository(rdb.Client, rdb.Prefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Maintenance.Stats.Enabled && cfg.Redis.Addr != "" {
		s.redis(ctx, cfg, logger)
	}
	logger.Info("ticket store ready", zap.String("driver", cfg.Store.Driver))
	return s, nil
}

func (s *Stores) redis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *persistence.Redis {
	if s.Redis == nil {
		s.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		s.closers = append(s.closers, s.Redis.Close)
		s.Pingers["redis"] = s.Redis
	}
	return s.Redis
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
