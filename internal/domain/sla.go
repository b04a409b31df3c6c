package domain

import "time"

// BusinessHours restricts SLA clocks to working time.
type BusinessHours struct {
	StartHour int            `json:"start_hour" yaml:"start_hour"`
	EndHour   int            `json:"end_hour" yaml:"end_hour"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	Timezone  string         `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// SLAPolicy is a priority-scoped pair of time budgets.
type SLAPolicy struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Priority             TicketPriority `json:"priority"`
	FirstResponseMinutes int            `json:"first_response_minutes"`
	ResolutionMinutes    int            `json:"resolution_minutes"`
	BusinessHours        *BusinessHours `json:"business_hours,omitempty"`
	Active               bool           `json:"active"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// SLATracking records targets against actuals for one ticket.
type SLATracking struct {
	TicketID              string
	PolicyID              string
	FirstResponseTargetAt time.Time
	FirstResponseActualAt *time.Time
	FirstResponseBreached bool
	ResolutionTargetAt    time.Time
	ResolutionActualAt    *time.Time
	ResolutionBreached    bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TriggerCondition names the breach that fires an escalation rule.
type TriggerCondition string

const (
	TriggerFirstResponseBreached TriggerCondition = "first-response-breached"
	TriggerResolutionBreached    TriggerCondition = "resolution-breached"
)

// Valid reports whether c is a known condition.
func (c TriggerCondition) Valid() bool {
	return c == TriggerFirstResponseBreached || c == TriggerResolutionBreached
}

// EscalationAction names what an escalation rule does.
type EscalationAction string

const (
	ActionReassign           EscalationAction = "reassign"
	ActionRaisePriority      EscalationAction = "raise-priority"
	ActionNotifyStakeholders EscalationAction = "notify-stakeholders"
	ActionOpenFollowup       EscalationAction = "open-followup"
)

// EscalationRule is one configured reaction to a breach under a policy.
type EscalationRule struct {
	ID                 string           `json:"id"`
	PolicyID           string           `json:"policy_id"`
	Name               string           `json:"name"`
	Trigger            TriggerCondition `json:"trigger_condition"`
	TriggerTimeMinutes *int             `json:"trigger_time_minutes,omitempty"`
	Action             EscalationAction `json:"action"`
	TargetUserID       *string          `json:"target_user_id,omitempty"`
	NewPriority        *TicketPriority  `json:"new_priority,omitempty"`
	Position           int              `json:"position"`
	Active             bool             `json:"active"`
	CreatedAt          time.Time        `json:"created_at"`
}
