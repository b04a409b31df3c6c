package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/observability"
)

// Sweeper runs Tracker.Sweep on a cron schedule.
type Sweeper struct {
	tracker *Tracker
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
}

// NewSweeper schedules sweeps with a standard cron spec or descriptor such as "@every 1m".
// Overlapping runs are skipped.
func NewSweeper(tracker *Tracker, schedule string, logger *zap.Logger) (*Sweeper, error) {
	logger = observability.OrNop(logger).Named("sla_sweeper")
	cl := cronLogger{logger.Sugar()}
	s := &Sweeper{
		tracker: tracker,
		logger:  logger,
		timeout: 30 * time.Second,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("sla sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sla sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("sla sweeper stop timed out")
	}
}

// RunOnce performs a single sweep immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.tracker.Sweep(ctx)
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.tracker.Sweep(ctx); err != nil {
		s.logger.Error("sla sweep failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
