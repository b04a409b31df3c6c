package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

type memPolicies struct {
	items []domain.SLAPolicy
}

func (m *memPolicies) Create(_ context.Context, p *domain.SLAPolicy) error {
	p.ID = fmt.Sprintf("p-%d", len(m.items)+1)
	m.items = append(m.items, *p)
	return nil
}

func (m *memPolicies) Update(_ context.Context, p *domain.SLAPolicy) error {
	for i := range m.items {
		if m.items[i].ID == p.ID {
			m.items[i] = *p
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memPolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	for _, p := range m.items {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memPolicies) FindActiveByPriority(context.Context, domain.TicketPriority) (*domain.SLAPolicy, error) {
	return nil, pgx.ErrNoRows
}

func (m *memPolicies) List(context.Context) ([]domain.SLAPolicy, error) {
	return m.items, nil
}

type memRules struct {
	items []domain.EscalationRule
}

func (m *memRules) Create(_ context.Context, r *domain.EscalationRule) error {
	r.ID = fmt.Sprintf("r-%d", len(m.items)+1)
	m.items = append(m.items, *r)
	return nil
}

func (m *memRules) ListActiveByPolicy(_ context.Context, policyID string) ([]domain.EscalationRule, error) {
	var out []domain.EscalationRule
	for _, r := range m.items {
		if r.PolicyID == policyID {
			out = append(out, r)
		}
	}
	return out, nil
}

type invalidations struct {
	policies []string
	rules    []string
	sweeps   int
}

func (i *invalidations) resolver() PolicyInvalidator { return resolverInvalidator{i} }

func (i *invalidations) Invalidate(policyID string) { i.rules = append(i.rules, policyID) }

func (i *invalidations) Sweep(context.Context) (int, error) {
	i.sweeps++
	return 3, nil
}

type resolverInvalidator struct{ i *invalidations }

func (r resolverInvalidator) Invalidate(_ context.Context, p *domain.SLAPolicy) {
	r.i.policies = append(r.i.policies, p.ID)
}

func newAdminFixture() (*SLAAdminService, *memPolicies, *memRules, *invalidations) {
	policies := &memPolicies{}
	rules := &memRules{}
	inv := &invalidations{}
	svc := NewSLAAdminService(SLAAdminDependencies{
		Policies: policies,
		Rules:    rules,
		Resolver: inv.resolver(),
		Executor: inv,
		Sweeper:  inv,
	})
	return svc, policies, rules, inv
}

func TestCreatePolicyValidatesAndInvalidates(t *testing.T) {
	svc, policies, _, inv := newAdminFixture()
	ctx := context.Background()

	err := svc.CreatePolicy(ctx, &domain.SLAPolicy{Name: "bad", Priority: "URGENT", FirstResponseMinutes: 0, ResolutionMinutes: 10})
	de := apperrors.ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Contains(t, de.Details, "priority")
	assert.Contains(t, de.Details, "first_response_minutes")

	err = svc.CreatePolicy(ctx, &domain.SLAPolicy{Name: "hours", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 1, ResolutionMinutes: 2,
		BusinessHours: &domain.BusinessHours{StartHour: 17, EndHour: 9}})
	assert.Contains(t, apperrors.ToDomainError(err).Details, "business_hours")

	policy := &domain.SLAPolicy{Name: " High ", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 30, ResolutionMinutes: 240}
	require.NoError(t, svc.CreatePolicy(ctx, policy))
	assert.Equal(t, "High", policy.Name)
	assert.True(t, policies.items[0].Active)
	assert.Equal(t, []string{policy.ID}, inv.policies)
}

func TestAddRuleRequiresActionArguments(t *testing.T) {
	svc, _, rules, inv := newAdminFixture()
	ctx := context.Background()
	policy := &domain.SLAPolicy{Name: "High", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 30, ResolutionMinutes: 240}
	require.NoError(t, svc.CreatePolicy(ctx, policy))

	err := svc.AddRule(ctx, policy.ID, &domain.EscalationRule{Name: "reassign", Trigger: domain.TriggerFirstResponseBreached, Action: domain.ActionReassign})
	assert.Contains(t, apperrors.ToDomainError(err).Details, "target_user_id")

	err = svc.AddRule(ctx, "missing", &domain.EscalationRule{Name: "x", Trigger: domain.TriggerFirstResponseBreached, Action: domain.ActionOpenFollowup})
	assert.True(t, apperrors.IsNotFound(err))

	mgr := "mgr-1"
	require.NoError(t, svc.AddRule(ctx, policy.ID, &domain.EscalationRule{
		Name: "to manager", Trigger: domain.TriggerFirstResponseBreached, Action: domain.ActionReassign, TargetUserID: &mgr,
	}))
	require.Len(t, rules.items, 1)
	assert.Equal(t, policy.ID, rules.items[0].PolicyID)
	assert.Equal(t, []string{policy.ID}, inv.rules)
}

const policyYAML = `
- name: High
  priority: HIGH
  first_response_minutes: 30
  resolution_minutes: 240
  rules:
    - name: to manager
      trigger: first-response-breached
      action: reassign
      target_user_id: mgr-1
    - name: bump
      trigger: resolution-breached
      action: raise-priority
      new_priority: CRITICAL
- name: Low
  priority: LOW
  first_response_minutes: 480
  resolution_minutes: 2880
  business_hours:
    start_hour: 9
    end_hour: 17
    weekdays: [1, 2, 3, 4, 5]
    timezone: Europe/Berlin
`

func TestImportCreatesPoliciesWithOrderedRules(t *testing.T) {
	svc, policies, rules, _ := newAdminFixture()

	var defs []PolicyDefinition
	require.NoError(t, yaml.Unmarshal([]byte(policyYAML), &defs))

	created, err := svc.Import(context.Background(), defs)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Len(t, policies.items, 2)
	require.NotNil(t, created[1].BusinessHours)
	assert.Equal(t, "Europe/Berlin", created[1].BusinessHours.Timezone)

	require.Len(t, rules.items, 2)
	assert.Equal(t, 1, rules.items[0].Position)
	assert.Equal(t, 2, rules.items[1].Position)
	assert.Equal(t, domain.TicketPriorityCritical, *rules.items[1].NewPriority)
}

func TestImportStopsAtInvalidDefinition(t *testing.T) {
	svc, policies, _, _ := newAdminFixture()

	created, err := svc.Import(context.Background(), []PolicyDefinition{
		{Name: "ok", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 1, ResolutionMinutes: 2},
		{Name: "broken", Priority: domain.TicketPriorityLow},
		{Name: "never", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 1, ResolutionMinutes: 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy 2 (broken)")
	assert.Len(t, created, 1)
	assert.Len(t, policies.items, 1)
}

func TestSweepDelegates(t *testing.T) {
	svc, _, _, inv := newAdminFixture()

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, inv.sweeps)

	bare := NewSLAAdminService(SLAAdminDependencies{})
	_, err = bare.Sweep(context.Background())
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestSetPolicyActiveInvalidatesOnChange(t *testing.T) {
	svc, policies, _, inv := newAdminFixture()
	ctx := context.Background()
	policy := &domain.SLAPolicy{Name: "High", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 30, ResolutionMinutes: 240}
	require.NoError(t, svc.CreatePolicy(ctx, policy))

	updated, err := svc.SetPolicyActive(ctx, policy.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.False(t, policies.items[0].Active)
	assert.Equal(t, []string{policy.ID, policy.ID}, inv.policies)

	_, err = svc.SetPolicyActive(ctx, policy.ID, false)
	require.NoError(t, err)
	assert.Len(t, inv.policies, 2)

	_, err = svc.SetPolicyActive(ctx, "missing", true)
	assert.True(t, apperrors.IsNotFound(err))
}
