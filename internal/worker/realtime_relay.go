package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/api/dto"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/realtime"
)

// LiveDispatcher is the delivery surface of the realtime hub.
type LiveDispatcher interface {
	ToUser(userID, event string, data any) bool
	ToResourceSubscribers(resourceID, event string, data any) int
	ToRoles(roles []domain.Role, event string, data any) int
}

// TicketUpdate is the ticket:updated payload.
type TicketUpdate struct {
	TicketID    string                   `json:"ticketId"`
	Change      string                   `json:"change"`
	Status      domain.TicketStatus      `json:"status,omitempty"`
	Priority    domain.TicketPriority    `json:"priority,omitempty"`
	Escalated   bool                     `json:"escalated,omitempty"`
	AssigneeID  *string                  `json:"assigneeId,omitempty"`
	MessageID   string                   `json:"messageId,omitempty"`
	MessageType domain.TicketMessageType `json:"messageType,omitempty"`
	Preview     string                   `json:"preview,omitempty"`
	Actor       events.Actor             `json:"actor"`
	At          time.Time                `json:"at"`
}

// RealtimeRelay forwards domain events to live connections.
type RealtimeRelay struct {
	live       LiveDispatcher
	staffRoles []domain.Role
	logger     *zap.Logger
}

// NewRealtimeRelay creates a relay. staffRoles receive ticket:created broadcasts;
// an empty list falls back to every staff role.
func NewRealtimeRelay(live LiveDispatcher, staffRoles []domain.Role, logger *zap.Logger) *RealtimeRelay {
	if len(staffRoles) == 0 {
		staffRoles = domain.StaffRoles
	}
	return &RealtimeRelay{live: live, staffRoles: staffRoles, logger: observability.OrNop(logger)}
}

// Register subscribes the relay to bus.
func (r *RealtimeRelay) Register(bus events.Dispatcher) {
	bus.Subscribe(events.EventTicketCreated, r.onCreated)
	bus.Subscribe(events.EventTicketStatusChanged, r.onStatus)
	bus.Subscribe(events.EventTicketPriorityChanged, r.onPriority)
	bus.Subscribe(events.EventTicketAssigned, r.onAssigned)
	bus.Subscribe(events.EventTicketMessageAdded, r.onMessage)
	bus.Subscribe(events.EventSLABreached, r.onBreach)
}

func (r *RealtimeRelay) onCreated(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	n := r.live.ToRoles(r.staffRoles, realtime.EventTicketCreated, dto.NewTicketResponse(&payload.Ticket))
	r.logger.Debug("relayed ticket creation", zap.String("ticket_id", evt.TicketID), zap.Int("recipients", n))
	return nil
}

func (r *RealtimeRelay) onStatus(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	r.updated(evt, TicketUpdate{Change: "status", Status: payload.NewStatus})
	return nil
}

func (r *RealtimeRelay) onPriority(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketPriorityChangedPayload)
	if !ok {
		return nil
	}
	r.updated(evt, TicketUpdate{Change: "priority", Priority: payload.NewPriority, Escalated: payload.Escalated})
	return nil
}

func (r *RealtimeRelay) onAssigned(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	update := TicketUpdate{Change: "assignee", AssigneeID: payload.AssigneeID}
	r.updated(evt, update)
	if payload.AssigneeID != nil {
		update.TicketID = evt.TicketID
		update.Actor = evt.Actor
		update.At = evt.Timestamp
		r.live.ToUser(*payload.AssigneeID, realtime.EventTicketAssigned, update)
	}
	return nil
}

func (r *RealtimeRelay) onMessage(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return nil
	}
	update := TicketUpdate{Change: "message", MessageID: payload.MessageID, MessageType: payload.MessageType}
	// Subscribers may include the requester; internal note bodies stay off the wire.
	if payload.MessageType == domain.MessageTypePublicReply {
		update.Preview = payload.BodyPreview
	}
	r.updated(evt, update)
	return nil
}

func (r *RealtimeRelay) onBreach(_ context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.SLABreachedPayload)
	if !ok {
		return nil
	}
	n := r.live.ToResourceSubscribers(domain.TicketResource(evt.TicketID), realtime.EventTicketSLABreached, dto.BreachNotice{
		TicketID:  evt.TicketID,
		PolicyID:  payload.PolicyID,
		Condition: payload.Condition,
		TargetAt:  payload.TargetAt,
		At:        evt.Timestamp,
	})
	r.logger.Debug("relayed sla breach", zap.String("ticket_id", evt.TicketID), zap.Int("recipients", n))
	return nil
}

func (r *RealtimeRelay) updated(evt events.Event, update TicketUpdate) {
	update.TicketID = evt.TicketID
	update.Actor = evt.Actor
	update.At = evt.Timestamp
	r.live.ToResourceSubscribers(domain.TicketResource(evt.TicketID), realtime.EventTicketUpdated, update)
}
