package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// SLATrackingRepository persists one tracking record per ticket.
//
// The Record* and MarkBreached methods update breach flags atomically and
// return the flag's value from before the update, so exactly one caller can
// observe a false-to-true transition. Actuals are written once; a second
// Record* call keeps the first value.
type SLATrackingRepository interface {
	Upsert(ctx context.Context, tracking *domain.SLATracking) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.SLATracking, error)
	RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error)
	RecordResolution(ctx context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error)
	ClearResolution(ctx context.Context, ticketID string) error
	MarkBreached(ctx context.Context, ticketID string, condition domain.TriggerCondition, now time.Time) (*domain.SLATracking, bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.SLATracking, error)
}

type slaTrackingRepository struct {
	pool *pgxpool.Pool
}

// NewSLATrackingRepository builds repository.
func NewSLATrackingRepository(pool *pgxpool.Pool) SLATrackingRepository {
	return &slaTrackingRepository{pool: pool}
}

const slaTrackingColumns = `t.ticket_id, t.policy_id, t.first_response_target_at, t.first_response_actual_at,
    t.first_response_breached, t.resolution_target_at, t.resolution_actual_at, t.resolution_breached,
    t.created_at, t.updated_at`

// Upsert creates or re-initializes the record; re-initialization clears actuals and flags.
func (r *slaTrackingRepository) Upsert(ctx context.Context, tracking *domain.SLATracking) error {
	const query = `
        INSERT INTO sla_tracking AS t (ticket_id, policy_id, first_response_target_at, resolution_target_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id) DO UPDATE SET
            policy_id = EXCLUDED.policy_id,
            first_response_target_at = EXCLUDED.first_response_target_at,
            first_response_actual_at = NULL,
            first_response_breached = FALSE,
            resolution_target_at = EXCLUDED.resolution_target_at,
            resolution_actual_at = NULL,
            resolution_breached = FALSE,
            updated_at = NOW()
        RETURNING ` + slaTrackingColumns
	row := r.pool.QueryRow(ctx, query,
		tracking.TicketID,
		tracking.PolicyID,
		tracking.FirstResponseTargetAt,
		tracking.ResolutionTargetAt,
	)
	saved, err := scanSLATracking(row)
	if err != nil {
		return err
	}
	*tracking = *saved
	return nil
}

func (r *slaTrackingRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SLATracking, error) {
	query := `SELECT ` + slaTrackingColumns + ` FROM sla_tracking t WHERE t.ticket_id=$1`
	return scanSLATracking(r.pool.QueryRow(ctx, query, ticketID))
}

// RecordFirstResponse stores at unless a first response is already recorded.
// The breach flag is computed from the stored actual, never from a later call.
func (r *slaTrackingRepository) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error) {
	const query = `
        WITH prev AS (
            SELECT ticket_id, first_response_breached AS breached
            FROM sla_tracking WHERE ticket_id=$1 FOR UPDATE
        )
        UPDATE sla_tracking t SET
            first_response_actual_at = COALESCE(t.first_response_actual_at, $2),
            first_response_breached = t.first_response_breached
                OR (COALESCE(t.first_response_actual_at, $2) > t.first_response_target_at),
            updated_at = NOW()
        FROM prev WHERE t.ticket_id = prev.ticket_id
        RETURNING prev.breached, ` + slaTrackingColumns
	return scanTransition(r.pool.QueryRow(ctx, query, ticketID, at))
}

// RecordResolution stores at unless a resolution is already recorded.
func (r *slaTrackingRepository) RecordResolution(ctx context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error) {
	const query = `
        WITH prev AS (
            SELECT ticket_id, resolution_breached AS breached
            FROM sla_tracking WHERE ticket_id=$1 FOR UPDATE
        )
        UPDATE sla_tracking t SET
            resolution_actual_at = COALESCE(t.resolution_actual_at, $2),
            resolution_breached = t.resolution_breached
                OR (COALESCE(t.resolution_actual_at, $2) > t.resolution_target_at),
            updated_at = NOW()
        FROM prev WHERE t.ticket_id = prev.ticket_id
        RETURNING prev.breached, ` + slaTrackingColumns
	return scanTransition(r.pool.QueryRow(ctx, query, ticketID, at))
}

// ClearResolution forgets the recorded resolution of a reopened ticket so the
// resolution target is watched again. The breach flag is kept.
func (r *slaTrackingRepository) ClearResolution(ctx context.Context, ticketID string) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE sla_tracking SET resolution_actual_at = NULL, updated_at = NOW()
        WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkBreached sets the flag for condition only while that target is still
// unmet at now. pgx.ErrNoRows means there was nothing to flag.
func (r *slaTrackingRepository) MarkBreached(ctx context.Context, ticketID string, condition domain.TriggerCondition, now time.Time) (*domain.SLATracking, bool, error) {
	var prefix string
	switch condition {
	case domain.TriggerFirstResponseBreached:
		prefix = "first_response"
	case domain.TriggerResolutionBreached:
		prefix = "resolution"
	default:
		return nil, false, fmt.Errorf("unknown trigger condition %q", condition)
	}
	query := `
        WITH prev AS (
            SELECT ticket_id, ` + prefix + `_breached AS breached
            FROM sla_tracking
            WHERE ticket_id=$1 AND ` + prefix + `_actual_at IS NULL AND ` + prefix + `_target_at < $2
            FOR UPDATE
        )
        UPDATE sla_tracking t SET ` + prefix + `_breached = TRUE, updated_at = NOW()
        FROM prev WHERE t.ticket_id = prev.ticket_id
        RETURNING prev.breached, ` + slaTrackingColumns
	return scanTransition(r.pool.QueryRow(ctx, query, ticketID, now))
}

// ListOverdue returns records of open tickets whose unmet target has passed without a breach flag.
func (r *slaTrackingRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.SLATracking, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
        SELECT `+slaTrackingColumns+`
        FROM sla_tracking t JOIN tickets k ON k.id = t.ticket_id
        WHERE k.status NOT IN ('RESOLVED','CLOSED','CANCELLED')
          AND ((t.first_response_actual_at IS NULL AND NOT t.first_response_breached AND t.first_response_target_at < $1)
            OR (t.resolution_actual_at IS NULL AND NOT t.resolution_breached AND t.resolution_target_at < $1))
        ORDER BY LEAST(t.first_response_target_at, t.resolution_target_at) ASC
        LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SLATracking, error) {
		var t domain.SLATracking
		err := row.Scan(trackingDest(&t)...)
		return t, err
	})
}

func scanSLATracking(row pgx.Row) (*domain.SLATracking, error) {
	var t domain.SLATracking
	if err := row.Scan(trackingDest(&t)...); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTransition(row pgx.Row) (*domain.SLATracking, bool, error) {
	var (
		t    domain.SLATracking
		prev bool
	)
	dest := append([]any{&prev}, trackingDest(&t)...)
	if err := row.Scan(dest...); err != nil {
		return nil, false, err
	}
	return &t, prev, nil
}

func trackingDest(t *domain.SLATracking) []any {
	return []any{
		&t.TicketID,
		&t.PolicyID,
		&t.FirstResponseTargetAt,
		&t.FirstResponseActualAt,
		&t.FirstResponseBreached,
		&t.ResolutionTargetAt,
		&t.ResolutionActualAt,
		&t.ResolutionBreached,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
}
