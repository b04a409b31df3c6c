package sla

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
)

// PolicyResolver picks the policy for a priority tier.
type PolicyResolver interface {
	Resolve(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
}

// Lifecycle feeds ticket domain events into the tracker.
type Lifecycle struct {
	resolver PolicyResolver
	tracker  *Tracker
	logger   *zap.Logger
}

// NewLifecycle builds the subscriber.
func NewLifecycle(resolver PolicyResolver, tracker *Tracker, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{resolver: resolver, tracker: tracker, logger: observability.OrNop(logger)}
}

// Register subscribes the lifecycle handlers on bus.
func (l *Lifecycle) Register(bus events.Dispatcher) {
	bus.Subscribe(events.EventTicketCreated, l.onCreated)
	bus.Subscribe(events.EventTicketMessageAdded, l.onMessage)
	bus.Subscribe(events.EventTicketStatusChanged, l.onStatus)
	bus.Subscribe(events.EventTicketPriorityChanged, l.onPriority)
}

func (l *Lifecycle) onCreated(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return l.attach(ctx, evt.TicketID, payload.Ticket.Priority)
}

func (l *Lifecycle) onMessage(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	msg := domain.TicketMessage{AuthorType: payload.AuthorType, MessageType: payload.MessageType}
	if !msg.CountsAsResponse() {
		return nil
	}
	return l.tracker.RecordFirstResponse(ctx, evt.TicketID, evt.Timestamp)
}

func (l *Lifecycle) onStatus(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	switch {
	case payload.NewStatus == domain.TicketStatusResolved, payload.NewStatus == domain.TicketStatusClosed:
		return l.tracker.RecordResolution(ctx, evt.TicketID, evt.Timestamp)
	case payload.OldStatus == domain.TicketStatusResolved && !payload.NewStatus.IsTerminal():
		return l.tracker.ReopenResolution(ctx, evt.TicketID)
	}
	return nil
}

func (l *Lifecycle) onPriority(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketPriorityChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	if payload.Escalated || payload.NewPriority == payload.OldPriority {
		return nil
	}
	return l.attach(ctx, evt.TicketID, payload.NewPriority)
}

// attach initializes tracking under the policy for priority. A tier with no
// policy leaves any existing record untouched.
func (l *Lifecycle) attach(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	policy, err := l.resolver.Resolve(ctx, priority)
	if errors.Is(err, ErrNoPolicy) {
		l.logger.Debug("no sla policy for priority", zap.String("ticket_id", ticketID), zap.String("priority", string(priority)))
		return nil
	}
	if err != nil {
		return err
	}
	_, err = l.tracker.Initialize(ctx, ticketID, policy.ID)
	return err
}
