package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/servicedesk-realtime/internal/api/http"
	"github.com/spec-kit/servicedesk-realtime/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk-realtime/internal/auth"
	"github.com/spec-kit/servicedesk-realtime/internal/config"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/persistence"
	"github.com/spec-kit/servicedesk-realtime/internal/realtime"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
	"github.com/spec-kit/servicedesk-realtime/internal/sla"
	"github.com/spec-kit/servicedesk-realtime/internal/worker"
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.Pool == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	pool := pg.Pool
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	ruleRepo := repository.NewEscalationRuleRepository(pool)
	trackingRepo := repository.NewSLATrackingRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	changeRepo := repository.NewChangeRequestRepository(pool)

	bus := events.NewInMemoryDispatcher(logger.Named("events"))

	hub := realtime.NewHub(realtime.Options{
		MultiSession:   cfg.Realtime.SessionPolicy == config.SessionPolicyMulti,
		SendBufferSize: cfg.Realtime.SendBufferSize,
		WriteTimeout:   cfg.Realtime.WriteTimeout(),
	}, logger, metrics)

	notificationService := service.NewNotificationService(notificationRepo, hub.Dispatcher(), logger.Named("notifications"))
	changeService := service.NewChangeService(changeRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		HistoryRepo: historyRepo,
		UserRepo:    userRepo,
		Dispatcher:  bus,
	})

	slaLogger := logger.Named("sla")
	resolver := sla.NewResolver(policyRepo, sla.NewRedisPolicyCache(redis.Client), cfg.SLA.PolicyCacheTTL(), slaLogger)
	executor := sla.NewExecutor(sla.ExecutorDeps{
		Tracking:  trackingRepo,
		Rules:     ruleRepo,
		Tickets:   ticketRepo,
		History:   historyRepo,
		Notifier:  notificationService,
		Followups: changeService,
		Bus:       bus,
		Metrics:   metrics,
		Logger:    slaLogger,
	})
	tracker := sla.NewTracker(trackingRepo, resolver, executor, bus, metrics, slaLogger,
		sla.WithSweepBatch(cfg.SLA.SweepBatchSize))

	// Tracking must see an event before clients and notifications do.
	sla.NewLifecycle(resolver, tracker, slaLogger).Register(bus)
	worker.NewRealtimeRelay(hub.Dispatcher(), staffRoles(cfg.Realtime.StaffRoles), logger).Register(bus)
	worker.StartNotificationWorker(notificationService, bus)

	var sweeper *sla.Sweeper
	if cfg.SLA.SweepEnabled {
		sweeper, err = sla.NewSweeper(tracker, cfg.SLA.SweepSchedule, logger)
		if err != nil {
			logger.Fatal("failed to schedule sla sweep", zap.Error(err))
		}
		sweeper.Start()
	}

	adminService := service.NewSLAAdminService(service.SLAAdminDependencies{
		Policies: policyRepo,
		Rules:    ruleRepo,
		Resolver: resolver,
		Executor: executor,
		Sweeper:  tracker,
		Logger:   slaLogger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authenticator := auth.NewAuthenticator(tokens, userRepo)

	health := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
		handlers.HealthCheck{Name: "postgres", Pinger: pg},
		handlers.HealthCheck{Name: "redis", Pinger: redis, Optional: true},
	)
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         health,
		Metrics:        adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		Realtime:       handlers.NewRealtimeHandler(hub, authenticator, logger),
		RealtimePath:   cfg.Realtime.Path,
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, tracker),
		Users:          handlers.NewUsersHandler(userRepo, notificationService, hub),
		SLAAdmin:       handlers.NewSLAAdminHandler(adminService),
		AuthMiddleware: auth.NewAuthMiddleware(authenticator),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	closed := hub.CloseAll()
	logger.Info("closed live connections", zap.Int("count", closed))
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func staffRoles(names []string) []domain.Role {
	roles := make([]domain.Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, domain.Role(name))
	}
	return roles
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
