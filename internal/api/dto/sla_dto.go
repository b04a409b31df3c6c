package dto

import (
	"time"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// CreatePolicyRequest payload for POST /admin/sla/policies.
type CreatePolicyRequest struct {
	Name                 string                `json:"name"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	BusinessHours        *domain.BusinessHours `json:"business_hours,omitempty"`
}

// CreateRuleRequest payload for POST /admin/sla/policies/:id/rules.
type CreateRuleRequest struct {
	Name               string                  `json:"name"`
	TriggerCondition   domain.TriggerCondition `json:"trigger_condition"`
	TriggerTimeMinutes *int                    `json:"trigger_time_minutes,omitempty"`
	Action             domain.EscalationAction `json:"action"`
	TargetUserID       *string                 `json:"target_user_id,omitempty"`
	NewPriority        *domain.TicketPriority  `json:"new_priority,omitempty"`
	Position           int                     `json:"position"`
}

// UpdatePolicyRequest payload for PATCH /admin/sla/policies/:id.
type UpdatePolicyRequest struct {
	Active *bool `json:"active"`
}

// SLATrackingResponse reports a ticket's targets against actuals.
type SLATrackingResponse struct {
	TicketID              string     `json:"ticket_id"`
	PolicyID              string     `json:"policy_id"`
	FirstResponseTargetAt time.Time  `json:"first_response_target_at"`
	FirstResponseActualAt *time.Time `json:"first_response_actual_at"`
	FirstResponseBreached bool       `json:"first_response_breached"`
	ResolutionTargetAt    time.Time  `json:"resolution_target_at"`
	ResolutionActualAt    *time.Time `json:"resolution_actual_at"`
	ResolutionBreached    bool       `json:"resolution_breached"`
}

// BreachNotice is pushed to ticket subscribers when an SLA is breached.
type BreachNotice struct {
	TicketID  string                  `json:"ticketId"`
	PolicyID  string                  `json:"policyId"`
	Condition domain.TriggerCondition `json:"condition"`
	TargetAt  time.Time               `json:"targetAt"`
	At        time.Time               `json:"at"`
}

// NewSLATrackingResponse maps a tracking record.
func NewSLATrackingResponse(t *domain.SLATracking) SLATrackingResponse {
	return SLATrackingResponse{
		TicketID:              t.TicketID,
		PolicyID:              t.PolicyID,
		FirstResponseTargetAt: t.FirstResponseTargetAt,
		FirstResponseActualAt: t.FirstResponseActualAt,
		FirstResponseBreached: t.FirstResponseBreached,
		ResolutionTargetAt:    t.ResolutionTargetAt,
		ResolutionActualAt:    t.ResolutionActualAt,
		ResolutionBreached:    t.ResolutionBreached,
	}
}
