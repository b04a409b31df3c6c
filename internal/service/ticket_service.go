package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// TicketService coordinates ticket workflows and emits the domain events
// that drive SLA tracking and live updates.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Now         func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		now:        now,
	}
}

// CreateTicket opens a ticket on behalf of user.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: user.ID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Tags:        input.Tags,
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketCreated, ticket.ID, user, events.TicketCreatedPayload{Ticket: *ticket})
	return ticket, nil
}

// GetTicket returns a ticket visible to user.
func (s *TicketService) GetTicket(ctx context.Context, user *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccess(user, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListMessages returns the thread visible to user. Requesters do not see internal notes.
func (s *TicketService) ListMessages(ctx context.Context, user *domain.User, ticketID string) ([]domain.TicketMessage, error) {
	ticket, err := s.GetTicket(ctx, user, ticketID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListThread(ctx, ticket.ID, user.IsStaff())
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.TicketMessage{}
	}
	return messages, nil
}

// ListHistory returns a page of the ticket's audit trail. Staff only.
func (s *TicketService) ListHistory(ctx context.Context, staff *domain.User, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if !staff.IsStaff() {
		return nil, apperrors.NewForbidden("staff only")
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}

// AddComment appends a message. Requesters may only post public replies on their own tickets.
func (s *TicketService) AddComment(ctx context.Context, user *domain.User, ticketID string, messageType domain.TicketMessageType, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body is required", nil)
	}
	if messageType == "" {
		messageType = domain.MessageTypePublicReply
	}
	if messageType != domain.MessageTypePublicReply && messageType != domain.MessageTypeInternalNote {
		return nil, apperrors.NewValidationError("invalid message type", map[string]any{"message_type": messageType})
	}

	ticket, err := s.GetTicket(ctx, user, ticketID)
	if err != nil {
		return nil, err
	}

	authorType := domain.AuthorTypeRequester
	if user.IsStaff() {
		authorType = domain.AuthorTypeStaff
	} else if messageType != domain.MessageTypePublicReply {
		return nil, apperrors.NewForbidden("requesters can only post public replies")
	}

	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorType:  authorType,
		AuthorID:    &user.ID,
		MessageType: messageType,
		Body:        body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketMessageAdded, ticket.ID, user, events.TicketMessageAddedPayload{
		MessageID:   msg.ID,
		MessageType: msg.MessageType,
		AuthorType:  msg.AuthorType,
		AuthorID:    msg.AuthorID,
		BodyPreview: stringPreview(msg.Body, 120),
	})
	return msg, nil
}

// UpdateStatus moves a ticket through its lifecycle.
func (s *TicketService) UpdateStatus(ctx context.Context, staff *domain.User, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if !staff.IsStaff() {
		return nil, apperrors.NewForbidden("staff only")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	oldStatus := ticket.Status
	now := s.now()
	switch newStatus {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	case domain.TicketStatusInProgress:
		ticket.ResolvedAt = nil
	}
	ticket.Status = newStatus
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, staff, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus, "comment": comment},
	); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketStatusChanged, ticket.ID, staff, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Comment:   comment,
	})
	return ticket, nil
}

// UpdatePriority changes the ticket's tier; tracking follows the new tier's policy.
func (s *TicketService) UpdatePriority(ctx context.Context, staff *domain.User, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !staff.IsStaff() {
		return nil, apperrors.NewForbidden("staff only")
	}
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": newPriority})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == newPriority {
		return ticket, nil
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, staff, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": newPriority},
	); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketPriorityChanged, ticket.ID, staff, events.TicketPriorityChangedPayload{
		OldPriority: oldPriority,
		NewPriority: newPriority,
	})
	return ticket, nil
}

// Assign sets or clears the assignee. A nil assigneeID unassigns.
func (s *TicketService) Assign(ctx context.Context, staff *domain.User, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	if !staff.IsStaff() {
		return nil, apperrors.NewForbidden("staff only")
	}
	if assigneeID != nil {
		assignee, err := s.users.GetByID(ctx, *assigneeID)
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidationError("assignee not found", map[string]any{"assignee_id": *assigneeID})
		}
		if err != nil {
			return nil, err
		}
		if !assignee.IsActive() || !assignee.IsStaff() {
			return nil, apperrors.NewValidationError("assignee must be active staff", map[string]any{"assignee_id": *assigneeID})
		}
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if sameAssignee(ticket.AssigneeID, assigneeID) {
		return ticket, nil
	}

	previous := ticket.AssigneeID
	ticket.AssigneeID = assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, staff, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee_id": previous},
		map[string]any{"assignee_id": assigneeID},
	); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.EventTicketAssigned, ticket.ID, staff, events.TicketAssignedPayload{
		PreviousAssigneeID: previous,
		AssigneeID:         assigneeID,
	})
	return ticket, nil
}

func canAccess(user *domain.User, ticket *domain.Ticket) bool {
	if user == nil {
		return false
	}
	return user.IsStaff() || ticket.RequesterID == user.ID
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, eventType events.EventType, ticketID string, user *domain.User, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, ticketID, actorFor(user), s.now(), payload))
}

func actorFor(user *domain.User) events.Actor {
	if user == nil {
		return events.SystemActor
	}
	actorType := domain.AuthorTypeRequester
	if user.IsStaff() {
		actorType = domain.AuthorTypeStaff
	}
	id := user.ID
	return events.Actor{Type: actorType, UserID: &id}
}

// stringPreview shortens body to at most max characters, cutting on rune boundaries.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:        {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress:  {domain.TicketStatusPendingUser, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusPendingUser: {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusResolved:    {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:      {},
	domain.TicketStatusCancelled:   {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s *TicketService) recordChange(ctx context.Context, user *domain.User, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) error {
	if s.history == nil {
		return nil
	}
	actor := actorFor(user)
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.UserID,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	})
}
