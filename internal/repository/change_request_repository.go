package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// ChangeRequestRepository stores follow-up change records.
type ChangeRequestRepository interface {
	Create(ctx context.Context, cr *domain.ChangeRequest) error
}

type changeRequestRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRequestRepository builds repository.
func NewChangeRequestRepository(pool *pgxpool.Pool) ChangeRequestRepository {
	return &changeRequestRepository{pool: pool}
}

func (r *changeRequestRepository) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	const query = `
        INSERT INTO change_requests (ticket_id, title, description, status, priority)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		cr.TicketID,
		cr.Title,
		cr.Description,
		cr.Status,
		cr.Priority,
	).Scan(&cr.ID, &cr.CreatedAt)
}
