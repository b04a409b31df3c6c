package sla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// Notifier tells the people around a ticket that it breached.
type Notifier interface {
	NotifyStakeholders(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) error
}

// FollowupOpener creates a follow-up record linked to a ticket.
type FollowupOpener interface {
	OpenFollowup(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) (*domain.ChangeRequest, error)
}

var (
	// errNoop marks a rule that matched but had nothing to change.
	errNoop          = errors.New("nothing to change")
	errUnknownAction = errors.New("unknown escalation action")
)

// Executor applies a policy's escalation rules when a breach is detected.
//
// Rules are indexed per policy and condition on first use. Call Invalidate
// after editing a policy's rules.
type Executor struct {
	tracking  repository.SLATrackingRepository
	rules     repository.EscalationRuleRepository
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
	notifier  Notifier
	followups FollowupOpener
	bus       events.Dispatcher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	index map[string]map[domain.TriggerCondition][]domain.EscalationRule
}

// ExecutorDeps groups the executor's collaborators.
type ExecutorDeps struct {
	Tracking  repository.SLATrackingRepository
	Rules     repository.EscalationRuleRepository
	Tickets   repository.TicketRepository
	History   repository.TicketHistoryRepository
	Notifier  Notifier
	Followups FollowupOpener
	Bus       events.Dispatcher
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewExecutor builds an executor.
func NewExecutor(deps ExecutorDeps) *Executor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		tracking:  deps.Tracking,
		rules:     deps.Rules,
		tickets:   deps.Tickets,
		history:   deps.History,
		notifier:  deps.Notifier,
		followups: deps.Followups,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    observability.OrNop(deps.Logger),
		now:       now,
		index:     make(map[string]map[domain.TriggerCondition][]domain.EscalationRule),
	}
}

// OnBreach runs every active rule of the ticket's policy that matches condition,
// in rule order. A failing or unknown rule is logged and the rest still run.
func (e *Executor) OnBreach(ctx context.Context, ticketID string, condition domain.TriggerCondition) {
	log := e.logger.With(zap.String("ticket_id", ticketID), zap.String("condition", string(condition)))

	record, err := e.tracking.GetByTicket(ctx, ticketID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			log.Error("load sla tracking", zap.Error(err))
		}
		return
	}

	rules, err := e.rulesFor(ctx, record.PolicyID, condition)
	if err != nil {
		log.Error("load escalation rules", zap.String("policy_id", record.PolicyID), zap.Error(err))
		return
	}
	if len(rules) == 0 {
		return
	}

	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		log.Error("load ticket", zap.Error(err))
		return
	}

	for _, rule := range rules {
		err := e.apply(ctx, ticket, rule, condition)
		ruleLog := log.With(zap.String("rule_id", rule.ID), zap.String("action", string(rule.Action)))
		switch {
		case err == nil:
			e.metrics.RecordEscalation(string(rule.Action), observability.OutcomeApplied)
			ruleLog.Info("escalation applied")
		case errors.Is(err, errNoop):
			e.metrics.RecordEscalation(string(rule.Action), observability.OutcomeNoop)
			ruleLog.Debug("escalation had no effect", zap.Error(err))
		case errors.Is(err, errUnknownAction):
			e.metrics.RecordEscalation(string(rule.Action), observability.OutcomeSkipped)
			ruleLog.Warn("unknown escalation action skipped")
		default:
			e.metrics.RecordEscalation(string(rule.Action), observability.OutcomeFailed)
			ruleLog.Error("escalation failed", zap.Error(err))
		}
	}
}

func (e *Executor) apply(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) error {
	switch rule.Action {
	case domain.ActionReassign:
		return e.reassign(ctx, ticket, rule)
	case domain.ActionRaisePriority:
		return e.raisePriority(ctx, ticket, rule)
	case domain.ActionNotifyStakeholders:
		if e.notifier == nil {
			return fmt.Errorf("%w: no notifier configured", errNoop)
		}
		return e.notifier.NotifyStakeholders(ctx, ticket, rule, condition)
	case domain.ActionOpenFollowup:
		if e.followups == nil {
			return fmt.Errorf("%w: no follow-up opener configured", errNoop)
		}
		_, err := e.followups.OpenFollowup(ctx, ticket, rule, condition)
		return err
	default:
		return errUnknownAction
	}
}

func (e *Executor) reassign(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule) error {
	if rule.TargetUserID == nil || *rule.TargetUserID == "" {
		return fmt.Errorf("%w: rule has no target user", errNoop)
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == *rule.TargetUserID {
		return fmt.Errorf("%w: already assigned", errNoop)
	}

	previous := ticket.AssigneeID
	target := *rule.TargetUserID
	ticket.AssigneeID = &target
	if err := e.tickets.Update(ctx, ticket); err != nil {
		ticket.AssigneeID = previous
		return err
	}

	e.recordHistory(ctx, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee_id": previous},
		map[string]any{"assignee_id": target, "rule_id": rule.ID},
	)
	e.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
		PreviousAssigneeID: previous,
		AssigneeID:         ticket.AssigneeID,
	})
	return nil
}

func (e *Executor) raisePriority(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule) error {
	if rule.NewPriority == nil || !rule.NewPriority.Valid() {
		return fmt.Errorf("%w: rule has no valid target priority", errNoop)
	}
	target := *rule.NewPriority
	if !target.HigherThan(ticket.Priority) {
		return fmt.Errorf("%w: %s is not above %s", errNoop, target, ticket.Priority)
	}

	previous := ticket.Priority
	ticket.Priority = target
	if err := e.tickets.Update(ctx, ticket); err != nil {
		ticket.Priority = previous
		return err
	}

	e.recordHistory(ctx, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": previous},
		map[string]any{"priority": target, "rule_id": rule.ID},
	)
	e.publish(ctx, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
		OldPriority: previous,
		NewPriority: target,
		Escalated:   true,
	})
	return nil
}

func (e *Executor) recordHistory(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if e.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeSystem,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := e.history.Create(ctx, entry); err != nil {
		e.logger.Warn("record escalation history", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (e *Executor) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, events.New(eventType, ticketID, events.SystemActor, e.now(), payload))
}

func (e *Executor) rulesFor(ctx context.Context, policyID string, condition domain.TriggerCondition) ([]domain.EscalationRule, error) {
	e.mu.RLock()
	byCondition, ok := e.index[policyID]
	e.mu.RUnlock()
	if ok {
		return byCondition[condition], nil
	}

	rules, err := e.rules.ListActiveByPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	byCondition = make(map[domain.TriggerCondition][]domain.EscalationRule)
	for _, rule := range rules {
		byCondition[rule.Trigger] = append(byCondition[rule.Trigger], rule)
	}

	e.mu.Lock()
	e.index[policyID] = byCondition
	e.mu.Unlock()
	return byCondition[condition], nil
}

// Invalidate drops the cached rule index for policyID.
func (e *Executor) Invalidate(policyID string) {
	e.mu.Lock()
	delete(e.index, policyID)
	e.mu.Unlock()
}
