package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
}

const ticketColumns = `id, external_key, requester_id, assignee_id, title, description, status, priority,
               tags, created_at, updated_at, resolved_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.pool.QueryRow(ctx, `
        INSERT INTO tickets (external_key, requester_id, assignee_id, title, description, status, priority, tags)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`,
		ticket.ExternalKey, ticket.RequesterID, ticket.AssigneeID, ticket.Title,
		ticket.Description, ticket.Status, ticket.Priority, ticket.Tags,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update writes the mutable columns. A missing ticket yields pgx.ErrNoRows.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.pool.QueryRow(ctx, `
        UPDATE tickets
        SET assignee_id=$2, title=$3, description=$4, status=$5, priority=$6,
            tags=$7, resolved_at=$8, closed_at=$9, updated_at=NOW()
        WHERE id=$1
        RETURNING updated_at`,
		ticket.ID, ticket.AssigneeID, ticket.Title, ticket.Description, ticket.Status,
		ticket.Priority, ticket.Tags, ticket.ResolvedAt, ticket.ClosedAt,
	).Scan(&ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	ticket, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTicket(row pgx.CollectableRow) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.ExternalKey, &t.RequesterID, &t.AssigneeID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.Tags, &t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt, &t.ClosedAt)
	return t, err
}
