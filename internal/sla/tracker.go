package sla

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// BreachHandler reacts to a breach flag turning true.
type BreachHandler interface {
	OnBreach(ctx context.Context, ticketID string, condition domain.TriggerCondition)
}

// PolicySource loads policies by id.
type PolicySource interface {
	Policy(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// Tracker maintains per-ticket SLA deadlines and detects breaches.
//
// Breach flags only ever go from false to true. The store reports each flag's
// previous value, and the breach handler runs only for the caller that saw the
// transition. Detection and handling for one ticket are serialized.
type Tracker struct {
	tracking  repository.SLATrackingRepository
	policies  PolicySource
	handler   BreachHandler
	bus       events.Dispatcher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	batchSize int
	locks     [64]sync.Mutex
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithSweepBatch caps how many overdue records one sweep examines.
func WithSweepBatch(n int) TrackerOption {
	return func(t *Tracker) { t.batchSize = n }
}

// NewTracker builds a tracker. handler and bus may be nil.
func NewTracker(
	tracking repository.SLATrackingRepository,
	policies PolicySource,
	handler BreachHandler,
	bus events.Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...TrackerOption,
) *Tracker {
	t := &Tracker{
		tracking:  tracking,
		policies:  policies,
		handler:   handler,
		bus:       bus,
		metrics:   metrics,
		logger:    observability.OrNop(logger),
		now:       time.Now,
		batchSize: 200,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize computes both targets from now and upserts the record. Re-initializing
// replaces the previous targets, actuals and breach flags.
func (t *Tracker) Initialize(ctx context.Context, ticketID, policyID string) (*domain.SLATracking, error) {
	policy, err := t.policies.Policy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", policyID, err)
	}
	targets, err := ComputeTargets(policy, t.now())
	if err != nil {
		return nil, err
	}

	unlock := t.lock(ticketID)
	defer unlock()

	record := &domain.SLATracking{
		TicketID:              ticketID,
		PolicyID:              policy.ID,
		FirstResponseTargetAt: targets.FirstResponse,
		ResolutionTargetAt:    targets.Resolution,
	}
	if err := t.tracking.Upsert(ctx, record); err != nil {
		return nil, err
	}
	t.logger.Info("sla tracking initialized",
		zap.String("ticket_id", ticketID),
		zap.String("policy_id", policy.ID),
		zap.Time("first_response_target_at", record.FirstResponseTargetAt),
		zap.Time("resolution_target_at", record.ResolutionTargetAt),
	)
	return record, nil
}

// RecordFirstResponse stores the first response time. Only the first call
// counts; later calls neither move the actual nor change the flag. A ticket
// without a tracking record is ignored.
func (t *Tracker) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) error {
	return t.record(ctx, ticketID, domain.TriggerFirstResponseBreached, func() (*domain.SLATracking, bool, error) {
		return t.tracking.RecordFirstResponse(ctx, ticketID, at)
	})
}

// RecordResolution stores the resolution time unless one is already recorded.
// A ticket without a tracking record is ignored.
func (t *Tracker) RecordResolution(ctx context.Context, ticketID string, at time.Time) error {
	return t.record(ctx, ticketID, domain.TriggerResolutionBreached, func() (*domain.SLATracking, bool, error) {
		return t.tracking.RecordResolution(ctx, ticketID, at)
	})
}

// ReopenResolution clears the recorded resolution so the resolution target is
// watched again. A breach already flagged stays flagged.
func (t *Tracker) ReopenResolution(ctx context.Context, ticketID string) error {
	unlock := t.lock(ticketID)
	defer unlock()

	err := t.tracking.ClearResolution(ctx, ticketID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *Tracker) record(ctx context.Context, ticketID string, condition domain.TriggerCondition, update func() (*domain.SLATracking, bool, error)) error {
	unlock := t.lock(ticketID)
	defer unlock()

	record, wasBreached, err := update()
	if apperrors.IsNotFound(err) {
		t.logger.Debug("no sla tracking for ticket", zap.String("ticket_id", ticketID))
		return nil
	}
	if err != nil {
		return err
	}
	if !wasBreached && breached(record, condition) {
		t.breach(ctx, record, condition)
	}
	return nil
}

// Sweep flags records whose unmet targets have passed and returns the number
// of new breaches. It covers tickets that see no activity after a deadline.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	now := t.now()
	overdue, err := t.tracking.ListOverdue(ctx, now, t.batchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range overdue {
		if rec.FirstResponseActualAt == nil && !rec.FirstResponseBreached && now.After(rec.FirstResponseTargetAt) {
			if t.markBreached(ctx, rec.TicketID, domain.TriggerFirstResponseBreached, now) {
				count++
			}
		}
		if rec.ResolutionActualAt == nil && !rec.ResolutionBreached && now.After(rec.ResolutionTargetAt) {
			if t.markBreached(ctx, rec.TicketID, domain.TriggerResolutionBreached, now) {
				count++
			}
		}
	}
	if count > 0 {
		t.logger.Info("sla sweep flagged breaches", zap.Int("breaches", count), zap.Int("examined", len(overdue)))
	}
	return count, nil
}

// markBreached flags condition only if its target is still unmet at now; an
// actual recorded after the overdue listing wins.
func (t *Tracker) markBreached(ctx context.Context, ticketID string, condition domain.TriggerCondition, now time.Time) bool {
	unlock := t.lock(ticketID)
	defer unlock()

	record, wasBreached, err := t.tracking.MarkBreached(ctx, ticketID, condition, now)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			t.logger.Warn("sla sweep update failed",
				zap.String("ticket_id", ticketID),
				zap.String("condition", string(condition)),
				zap.Error(err),
			)
		}
		return false
	}
	if wasBreached {
		return false
	}
	t.breach(ctx, record, condition)
	return true
}

// breach runs with the ticket lock held.
func (t *Tracker) breach(ctx context.Context, record *domain.SLATracking, condition domain.TriggerCondition) {
	t.metrics.RecordBreach(string(condition))
	t.logger.Warn("sla breached",
		zap.String("ticket_id", record.TicketID),
		zap.String("policy_id", record.PolicyID),
		zap.String("condition", string(condition)),
	)

	if t.bus != nil {
		target := record.FirstResponseTargetAt
		if condition == domain.TriggerResolutionBreached {
			target = record.ResolutionTargetAt
		}
		_ = t.bus.Publish(ctx, events.New(events.EventSLABreached, record.TicketID, events.SystemActor, t.now(),
			events.SLABreachedPayload{PolicyID: record.PolicyID, Condition: condition, TargetAt: target}))
	}
	if t.handler != nil {
		t.handler.OnBreach(ctx, record.TicketID, condition)
	}
}

func (t *Tracker) lock(ticketID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	mu := &t.locks[h.Sum32()%uint32(len(t.locks))]
	mu.Lock()
	return mu.Unlock
}

func breached(record *domain.SLATracking, condition domain.TriggerCondition) bool {
	if record == nil {
		return false
	}
	switch condition {
	case domain.TriggerFirstResponseBreached:
		return record.FirstResponseBreached
	case domain.TriggerResolutionBreached:
		return record.ResolutionBreached
	}
	return false
}

// Tracking returns the ticket's tracking record.
func (t *Tracker) Tracking(ctx context.Context, ticketID string) (*domain.SLATracking, error) {
	return t.tracking.GetByTicket(ctx, ticketID)
}
