package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// EscalationRuleRepository persists escalation rules.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *domain.EscalationRule) error
	ListActiveByPolicy(ctx context.Context, policyID string) ([]domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRuleRepository builds repository.
func NewEscalationRuleRepository(pool *pgxpool.Pool) EscalationRuleRepository {
	return &escalationRuleRepository{pool: pool}
}

// Create appends rule to its policy. A zero Position places it after the existing rules.
func (r *escalationRuleRepository) Create(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (policy_id, name, trigger_condition, trigger_time_minutes, action,
            target_user_id, new_priority, position, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,
            CASE WHEN $8::int > 0 THEN $8::int
                 ELSE (SELECT COALESCE(MAX(position), 0) + 1 FROM escalation_rules WHERE policy_id=$1) END,
            $9)
        RETURNING id, position, created_at`
	return r.pool.QueryRow(ctx, query,
		rule.PolicyID,
		rule.Name,
		rule.Trigger,
		rule.TriggerTimeMinutes,
		rule.Action,
		rule.TargetUserID,
		rule.NewPriority,
		rule.Position,
		rule.Active,
	).Scan(&rule.ID, &rule.Position, &rule.CreatedAt)
}

// ListActiveByPolicy returns the policy's active rules in declaration order.
func (r *escalationRuleRepository) ListActiveByPolicy(ctx context.Context, policyID string) ([]domain.EscalationRule, error) {
	const query = `
        SELECT id, policy_id, name, trigger_condition, trigger_time_minutes, action, target_user_id,
               new_priority, position, active, created_at
        FROM escalation_rules WHERE policy_id=$1 AND active
        ORDER BY position ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, policyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EscalationRule, error) {
		var rule domain.EscalationRule
		err := row.Scan(&rule.ID, &rule.PolicyID, &rule.Name, &rule.Trigger, &rule.TriggerTimeMinutes,
			&rule.Action, &rule.TargetUserID, &rule.NewPriority, &rule.Position, &rule.Active, &rule.CreatedAt)
		return rule, err
	})
}
