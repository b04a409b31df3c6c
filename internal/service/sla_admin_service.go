package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	"github.com/spec-kit/servicedesk-realtime/internal/sla"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// PolicyInvalidator drops cached policy lookups.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context, policy *domain.SLAPolicy)
}

// RuleInvalidator drops a policy's cached rule index.
type RuleInvalidator interface {
	Invalidate(policyID string)
}

// BreachSweeper flags overdue tracking records.
type BreachSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// PolicyDefinition is an importable policy with its escalation rules.
type PolicyDefinition struct {
	Name                 string                `yaml:"name"`
	Priority             domain.TicketPriority `yaml:"priority"`
	FirstResponseMinutes int                   `yaml:"first_response_minutes"`
	ResolutionMinutes    int                   `yaml:"resolution_minutes"`
	BusinessHours        *domain.BusinessHours `yaml:"business_hours,omitempty"`
	Rules                []RuleDefinition      `yaml:"rules"`
}

// RuleDefinition is one escalation rule of a PolicyDefinition.
type RuleDefinition struct {
	Name               string                  `yaml:"name"`
	Trigger            domain.TriggerCondition `yaml:"trigger"`
	TriggerTimeMinutes *int                    `yaml:"trigger_time_minutes,omitempty"`
	Action             domain.EscalationAction `yaml:"action"`
	TargetUserID       *string                 `yaml:"target_user_id,omitempty"`
	NewPriority        *domain.TicketPriority  `yaml:"new_priority,omitempty"`
}

// SLAAdminService manages policies and rules and keeps engine caches coherent.
type SLAAdminService struct {
	policies repository.SLAPolicyRepository
	rules    repository.EscalationRuleRepository
	resolver PolicyInvalidator
	executor RuleInvalidator
	sweeper  BreachSweeper
	logger   *zap.Logger
}

// SLAAdminDependencies bundles collaborators. Invalidators and sweeper may be nil.
type SLAAdminDependencies struct {
	Policies repository.SLAPolicyRepository
	Rules    repository.EscalationRuleRepository
	Resolver PolicyInvalidator
	Executor RuleInvalidator
	Sweeper  BreachSweeper
	Logger   *zap.Logger
}

// NewSLAAdminService constructs the service.
func NewSLAAdminService(deps SLAAdminDependencies) *SLAAdminService {
	return &SLAAdminService{
		policies: deps.Policies,
		rules:    deps.Rules,
		resolver: deps.Resolver,
		executor: deps.Executor,
		sweeper:  deps.Sweeper,
		logger:   observability.OrNop(deps.Logger),
	}
}

// ListPolicies returns every policy.
func (s *SLAAdminService) ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []domain.SLAPolicy{}
	}
	return policies, nil
}

// CreatePolicy stores an active policy. A newer active policy for the same
// tier takes precedence in resolution.
func (s *SLAAdminService) CreatePolicy(ctx context.Context, policy *domain.SLAPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	policy.Active = true
	if err := s.policies.Create(ctx, policy); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(ctx, policy)
	}
	s.logger.Info("sla policy created",
		zap.String("policy_id", policy.ID),
		zap.String("priority", string(policy.Priority)),
	)
	return nil
}

// SetPolicyActive enables or retires a policy. A retired policy is skipped by
// resolution; records already tracked against it keep their targets.
func (s *SLAAdminService) SetPolicyActive(ctx context.Context, policyID string, active bool) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if policy.Active == active {
		return policy, nil
	}
	policy.Active = active
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(ctx, policy)
	}
	s.logger.Info("sla policy updated", zap.String("policy_id", policy.ID), zap.Bool("active", active))
	return policy, nil
}

// AddRule appends an escalation rule to policyID.
func (s *SLAAdminService) AddRule(ctx context.Context, policyID string, rule *domain.EscalationRule) error {
	if _, err := s.policies.GetByID(ctx, policyID); err != nil {
		return err
	}
	rule.PolicyID = policyID
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.Active = true
	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}
	if s.executor != nil {
		s.executor.Invalidate(policyID)
	}
	s.logger.Info("escalation rule added",
		zap.String("policy_id", policyID),
		zap.String("rule_id", rule.ID),
		zap.String("action", string(rule.Action)),
	)
	return nil
}

// Import creates each definition and its rules in order. It stops at the
// first invalid definition; earlier ones stay created.
func (s *SLAAdminService) Import(ctx context.Context, defs []PolicyDefinition) ([]domain.SLAPolicy, error) {
	created := make([]domain.SLAPolicy, 0, len(defs))
	for i, def := range defs {
		policy := &domain.SLAPolicy{
			Name:                 def.Name,
			Priority:             def.Priority,
			FirstResponseMinutes: def.FirstResponseMinutes,
			ResolutionMinutes:    def.ResolutionMinutes,
			BusinessHours:        def.BusinessHours,
		}
		if err := s.CreatePolicy(ctx, policy); err != nil {
			return created, fmt.Errorf("policy %d (%s): %w", i+1, def.Name, err)
		}
		for j, rd := range def.Rules {
			rule := &domain.EscalationRule{
				Name:               rd.Name,
				Trigger:            rd.Trigger,
				TriggerTimeMinutes: rd.TriggerTimeMinutes,
				Action:             rd.Action,
				TargetUserID:       rd.TargetUserID,
				NewPriority:        rd.NewPriority,
				Position:           j + 1,
			}
			if err := s.AddRule(ctx, policy.ID, rule); err != nil {
				return created, fmt.Errorf("policy %s rule %d (%s): %w", def.Name, j+1, rd.Name, err)
			}
		}
		created = append(created, *policy)
	}
	return created, nil
}

// Sweep runs one breach sweep now.
func (s *SLAAdminService) Sweep(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, apperrors.NewConflict("breach sweep unavailable", nil)
	}
	return s.sweeper.Sweep(ctx)
}

func validatePolicy(policy *domain.SLAPolicy) error {
	policy.Name = strings.TrimSpace(policy.Name)
	details := map[string]any{}
	if policy.Name == "" {
		details["name"] = "required"
	}
	if !policy.Priority.Valid() {
		details["priority"] = "must be LOW, MEDIUM, HIGH or CRITICAL"
	}
	if policy.FirstResponseMinutes <= 0 {
		details["first_response_minutes"] = "must be positive"
	}
	if policy.ResolutionMinutes <= 0 {
		details["resolution_minutes"] = "must be positive"
	}
	if err := sla.ValidateBusinessHours(policy.BusinessHours); err != nil {
		details["business_hours"] = err.Error()
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}

func validateRule(rule *domain.EscalationRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	details := map[string]any{}
	if rule.Name == "" {
		details["name"] = "required"
	}
	if !rule.Trigger.Valid() {
		details["trigger_condition"] = "unknown condition"
	}
	switch rule.Action {
	case domain.ActionReassign:
		if rule.TargetUserID == nil || *rule.TargetUserID == "" {
			details["target_user_id"] = "required for reassign"
		}
	case domain.ActionRaisePriority:
		if rule.NewPriority == nil || !rule.NewPriority.Valid() {
			details["new_priority"] = "required for raise-priority"
		}
	case domain.ActionNotifyStakeholders, domain.ActionOpenFollowup:
	default:
		details["action"] = "unknown action"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid escalation rule", details)
	}
	return nil
}
