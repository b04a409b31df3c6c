package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/realtime"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
)

// Pusher delivers an event to one user's live connections.
type Pusher interface {
	ToUser(userID, event string, data any) bool
}

// NotificationService stores in-app notifications and pushes them live.
type NotificationService struct {
	notifications repository.NotificationRepository
	pusher        Pusher
	logger        *zap.Logger
}

// NewNotificationService creates the service. pusher may be nil.
func NewNotificationService(notifications repository.NotificationRepository, pusher Pusher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		pusher:        pusher,
		logger:        observability.OrNop(logger),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
}

// Notify stores a notification for userID and pushes it if the user is connected.
func (n *NotificationService) Notify(ctx context.Context, userID string, ticketID *string, kind domain.NotificationKind, title, body string) (*domain.Notification, error) {
	record := &domain.Notification{
		UserID:   userID,
		TicketID: ticketID,
		Kind:     kind,
		Title:    title,
		Body:     body,
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		return nil, err
	}
	if n.pusher != nil && !n.pusher.ToUser(userID, realtime.EventNotificationNew, record) {
		n.logger.Debug("notification stored for offline user", zap.String("user_id", userID), zap.String("notification_id", record.ID))
	}
	return record, nil
}

// NotifyStakeholders tells the requester, the assignee and the rule's target user about a breach.
func (n *NotificationService) NotifyStakeholders(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) error {
	recipients := stakeholders(ticket, rule.TargetUserID)
	ticketID := ticket.ID
	title := fmt.Sprintf("SLA breached on %s", ticket.ExternalKey)
	body := fmt.Sprintf("%s: %q (%s priority)", condition, ticket.Title, ticket.Priority)

	var errs []error
	for _, userID := range recipients {
		if _, err := n.Notify(ctx, userID, &ticketID, domain.NotificationSLABreach, title, body); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// ListForUser returns the user's notifications, newest first.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	items, err := n.notifications.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok || payload.AssigneeID == nil {
		return nil
	}
	if event.Actor.UserID != nil && *event.Actor.UserID == *payload.AssigneeID {
		return nil
	}
	ticketID := event.TicketID
	_, err := n.Notify(ctx, *payload.AssigneeID, &ticketID, domain.NotificationAssigned, "Ticket assigned to you", "")
	return err
}

func stakeholders(ticket *domain.Ticket, extra *string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id *string) {
		if id == nil || *id == "" || seen[*id] {
			return
		}
		seen[*id] = true
		out = append(out, *id)
	}
	requester := ticket.RequesterID
	add(&requester)
	add(ticket.AssigneeID)
	add(extra)
	return out
}
