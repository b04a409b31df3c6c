package cli

import (
	"context"
	"errors"

	"github.com/spec-kit/servicedesk-realtime/internal/config"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/persistence"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
	"github.com/spec-kit/servicedesk-realtime/internal/sla"
)

// Connect wires an SLA admin service against the configured Postgres and Redis.
// Escalations run by a sweep store notifications but push nothing live; the
// server's clients reconcile on their next read.
func Connect(ctx context.Context, verbose bool) (*Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.Logger.Level = "warn"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if pg.Pool == nil {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	redis := persistence.NewRedis(ctx, cfg.Redis, logger)

	pool := pg.Pool
	policyRepo := repository.NewSLAPolicyRepository(pool)
	ruleRepo := repository.NewEscalationRuleRepository(pool)
	trackingRepo := repository.NewSLATrackingRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	bus := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(pool), nil, logger)
	notifications.RegisterHandlers(bus)

	resolver := sla.NewResolver(policyRepo, sla.NewRedisPolicyCache(redis.Client), cfg.SLA.PolicyCacheTTL(), logger)
	executor := sla.NewExecutor(sla.ExecutorDeps{
		Tracking:  trackingRepo,
		Rules:     ruleRepo,
		Tickets:   ticketRepo,
		History:   historyRepo,
		Notifier:  notifications,
		Followups: service.NewChangeService(repository.NewChangeRequestRepository(pool), logger),
		Bus:       bus,
		Logger:    logger,
	})
	tracker := sla.NewTracker(trackingRepo, resolver, executor, bus, nil, logger,
		sla.WithSweepBatch(cfg.SLA.SweepBatchSize))

	admin := service.NewSLAAdminService(service.SLAAdminDependencies{
		Policies: policyRepo,
		Rules:    ruleRepo,
		Resolver: resolver,
		Executor: executor,
		Sweeper:  tracker,
		Logger:   logger,
	})
	return &Backend{
		Admin: admin,
		Close: func() {
			redis.Close()
			pg.Close()
			_ = logger.Sync()
		},
	}, nil
}

