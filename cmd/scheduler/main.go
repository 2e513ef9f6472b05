package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httptransport "github.com/spec-kit/ticket-scheduler/internal/api/http"
	"github.com/spec-kit/ticket-scheduler/internal/api/http/handlers"
	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/config"
	"github.com/spec-kit/ticket-scheduler/internal/discord"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/gate"
	"github.com/spec-kit/ticket-scheduler/internal/lock"
	"github.com/spec-kit/ticket-scheduler/internal/observability"
	"github.com/spec-kit/ticket-scheduler/internal/persistence"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	"github.com/spec-kit/ticket-scheduler/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clk := clock.Real()
	ticketRepo, muteRepo, historyRepo := newStores(pg, clk)

	var locker lock.Locker = lock.NewLocal()
	if redis.Enabled() {
		locker = lock.NewRedis(redis.Client, cfg.App.Name+":")
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	waitNotifications := worker.StartNotificationWorker(ctx, notificationService)

	client := newDiscordClient(cfg, logger)
	var moderation collab.Moderation
	if client != nil {
		defer client.Close()
		moderation = client
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:            ticketRepo,
		MuteRepo:              muteRepo,
		HistoryRepo:           historyRepo,
		Dispatcher:            dispatcher,
		Moderation:            moderation,
		Clock:                 clk,
		Logger:                logger,
		MaxOpenTicketsPerUser: cfg.Scheduler.MaxOpenTicketsPerUser,
	})

	metrics := observability.NewMetrics()
	schedulers := newSchedulers(cfg, logger, clk, locker, metrics, client, ticketRepo, muteRepo, ticketService)
	for _, p := range schedulers {
		p.Start(ctx)
	}

	var app *fiber.App
	if cfg.App.AdminAPIEnabled {
		app = newAdminAPI(cfg, logger, metrics, pg, redis, ticketService, schedulers)
		go func() {
			if err := app.Listen(cfg.App.Addr()); err != nil {
				logger.Fatal("fiber listen", zap.Error(err))
			}
		}()
	}

	waitForShutdown(logger)

	if app != nil {
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}
	// In-flight ticks finish their batch before Stop returns.
	for _, p := range schedulers {
		p.Stop()
	}
	cancel()
	waitNotifications()
	logger.Info("shutdown complete")
}

func newStores(pg *persistence.Postgres, clk clock.Clock) (repository.TicketRepository, repository.MuteRepository, repository.TicketHistoryRepository) {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return repository.NewTicketRepository(pool, clk),
			repository.NewMuteRepository(pool, clk),
			repository.NewTicketHistoryRepository(pool, clk)
	}
	return repository.NewMemoryTicketRepository(clk),
		repository.NewMemoryMuteRepository(clk),
		repository.NewMemoryTicketHistoryRepository(clk)
}

// newDiscordClient returns nil when no bot token is configured.
func newDiscordClient(cfg *config.Config, logger *zap.Logger) *discord.Client {
	if cfg.Discord.BotToken == "" {
		logger.Warn("DISCORD_BOT_TOKEN not provided; schedulers disabled and mutes recorded without the role")
		return nil
	}
	client, err := discord.New(cfg.Discord.BotToken, cfg.Discord.MutedRoleID, logger)
	if err != nil {
		logger.Fatal("failed to create discord client", zap.Error(err))
	}
	return client
}

func newSchedulers(
	cfg *config.Config,
	logger *zap.Logger,
	clk clock.Clock,
	locker lock.Locker,
	metrics *observability.Metrics,
	client *discord.Client,
	tickets repository.TicketRepository,
	mutes repository.MuteRepository,
	ticketService *service.TicketService,
) []*worker.Periodic {
	if client == nil {
		return nil
	}

	gateOpts := []gate.Option{gate.WithLogger(logger.Named("gate"))}
	if cfg.Scheduler.OpsPerSecond > 0 {
		gateOpts = append(gateOpts, gate.WithRateLimit(rate.Limit(cfg.Scheduler.OpsPerSecond), cfg.Scheduler.MaxConcurrentOps))
	}
	opsGate := gate.New(cfg.Scheduler.MaxConcurrentOps, gateOpts...)

	periodic := func(task worker.Task, interval time.Duration) *worker.Periodic {
		return worker.NewPeriodic(task, worker.PeriodicOptions{
			Interval: interval,
			Locker:   locker,
			Metrics:  metrics,
			Logger:   logger,
			Clock:    clk,
		})
	}

	inactivity := worker.NewInactivityScheduler(worker.InactivityDeps{
		Tickets:   tickets,
		Writer:    ticketService,
		Messaging: client,
		Gate:      opsGate,
		Clock:     clk,
		Logger:    logger,
	}, worker.InactivityConfig{
		WarnAfter:     cfg.Scheduler.InactivityWarnAfter(),
		CloseAfter:    cfg.Scheduler.InactivityCloseAfter(),
		GuildIDs:      cfg.Discord.GuildIDs,
		SystemActorID: cfg.Discord.SystemActorID,
	})
	mute := worker.NewMuteScheduler(worker.MuteDeps{
		Mutes:         mutes,
		Releaser:      ticketService,
		Moderation:    client,
		Gate:          opsGate,
		Clock:         clk,
		Logger:        logger,
		SystemActorID: cfg.Discord.SystemActorID,
	})
	archive := worker.NewArchiveScheduler(worker.ArchiveDeps{
		Tickets:   tickets,
		Recorder:  ticketService,
		Messaging: client,
		Gate:      opsGate,
		Clock:     clk,
		Logger:    logger,
	}, cfg.Scheduler.ArchiveRetention())

	return []*worker.Periodic{
		periodic(inactivity, cfg.Scheduler.InactivityInterval()),
		periodic(mute, cfg.Scheduler.MuteInterval()),
		periodic(archive, cfg.Scheduler.ArchiveInterval()),
	}
}

func newAdminAPI(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
	pg *persistence.Postgres,
	redis *persistence.Redis,
	ticketService *service.TicketService,
	schedulers []*worker.Periodic,
) *fiber.App {
	authService := service.NewAuthService(cfg.Auth)

	runners := make([]handlers.Runner, 0, len(schedulers))
	for _, p := range schedulers {
		runners = append(runners, p)
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger.Named("http"), metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Mutes:          handlers.NewMutesHandler(ticketService),
		Schedulers:     handlers.NewSchedulersHandler(metrics, runners...),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})
	return app
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
