package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
)

// ChangeService opens change requests linked to tickets.
type ChangeService struct {
	changes repository.ChangeRequestRepository
	logger  *zap.Logger
}

// NewChangeService creates the service.
func NewChangeService(changes repository.ChangeRequestRepository, logger *zap.Logger) *ChangeService {
	return &ChangeService{changes: changes, logger: observability.OrNop(logger)}
}

// OpenFollowup records a proposed change for a breached ticket.
func (s *ChangeService) OpenFollowup(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) (*domain.ChangeRequest, error) {
	cr := &domain.ChangeRequest{
		TicketID:    ticket.ID,
		Title:       fmt.Sprintf("Follow-up for %s: %s", ticket.ExternalKey, ticket.Title),
		Description: fmt.Sprintf("Opened by escalation rule %q after %s.", rule.Name, condition),
		Status:      domain.ChangeStatusProposed,
		Priority:    ticket.Priority,
	}
	if err := s.changes.Create(ctx, cr); err != nil {
		return nil, err
	}
	s.logger.Info("follow-up change opened", zap.String("ticket_id", ticket.ID), zap.String("change_id", cr.ID))
	return cr, nil
}
