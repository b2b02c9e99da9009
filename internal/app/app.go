// Package app assembles the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-lifecycle/internal/activity"
	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/archive"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/maintenance"
	"github.com/spec-kit/ticket-lifecycle/internal/notify"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

// App is the fully wired service.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Stores      *Stores
	Tickets     *service.TicketService
	History     *service.HistoryService
	Transcripts *archive.Transcriber
	AutoCloser  *maintenance.AutoCloser
	AutoDeleter *maintenance.AutoDeleter
	Scheduler   *scheduler.Scheduler
	HTTP        *fiber.App
}

// New builds every component. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, logger, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, logger *zap.Logger, stores *Stores) (*App, error) {
	metrics := observability.NewMetrics()
	engine := lifecycle.NewEngine(cfg.Maintenance.AutoClose.Threshold(), cfg.Maintenance.AutoDelete.Threshold())

	transcripts, err := archive.NewTranscriber(cfg.Archive, stores.Tickets, stores.Messages, logger)
	if err != nil {
		return nil, fmt.Errorf("transcripts: %w", err)
	}
	archiver := archive.NewChannelArchiver(transcripts, archive.NewBridge(cfg.Archive), stores.Messages, logger)

	dispatcher := events.NewInMemoryDispatcher()
	var notifier notify.Notifier
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram)
		if err != nil {
			logger.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}
	service.NewNotificationService(dispatcher, notifier, logger, cfg.Notification).RegisterHandlers()
	history := service.NewHistoryService(stores.History, logger)
	history.RegisterHandlers(dispatcher)

	tickets := service.NewTicketService(service.TicketDependencies{
		Engine:      engine,
		TicketRepo:  stores.Tickets,
		MessageRepo: stores.Messages,
		Blacklist:   stores.Blacklist,
		Archiver:    archiver,
		Transcripts: transcripts,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	deps := maintenance.Dependencies{
		Engine:     engine,
		Tickets:    stores.Tickets,
		Probe:      activity.NewMessageProbe(stores.Messages),
		Archiver:   archiver,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}
	autoCloser := maintenance.NewAutoCloser(deps, cfg.Maintenance.AutoClose.DryRun)
	autoDeleter := maintenance.NewAutoDeleter(deps, cfg.Maintenance.AutoDelete.DryRun)

	var sinks []maintenance.StatsSink
	if stores.Redis != nil {
		sinks = append(sinks, maintenance.NewRedisStatsSink(stores.Redis.Client, stores.Redis.Prefix))
	}
	stats := maintenance.NewStatsPublisher(stores.Tickets, logger, nil, sinks...)

	sched := scheduler.New(observability.NewErrorReporter(logger, metrics),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics))
	err = worker.RegisterTasks(sched, cfg.Maintenance, worker.Routines{
		AutoClose:        autoCloser.Run,
		AutoDelete:       autoDeleter.Run,
		BlacklistCleanup: maintenance.NewBlacklistCleaner(stores.Blacklist, logger, nil).Run,
		Stats:            stats.Run,
	}, logger)
	if err != nil {
		return nil, err
	}

	app := httptransport.NewServer(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, stores.Pingers, sched, metrics),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Blacklist:      handlers.NewBlacklistHandler(tickets),
		History:        handlers.NewHistoryHandler(history),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)),
	})

	return &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Stores:      stores,
		Tickets:     tickets,
		History:     history,
		Transcripts: transcripts,
		AutoCloser:  autoCloser,
		AutoDeleter: autoDeleter,
		Scheduler:   sched,
		HTTP:        app,
	}, nil
}

// Run serves HTTP and runs the scheduler until ctx is cancelled. On return
// the server is shut down and every in-flight maintenance run has finished.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		a.Logger.Info("http listening", zap.String("addr", a.Config.App.Addr()))
		if err := a.HTTP.Listen(a.Config.App.Addr()); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")
		return a.HTTP.ShutdownWithTimeout(a.Config.App.ShutdownTimeout())
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases store connections.
func (a *App) Close() {
	a.Stores.Close()
}
