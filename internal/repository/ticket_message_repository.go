package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// TicketMessageRepository manages ticket comments.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	// ListThread returns the ticket's comments oldest first. Internal notes are
	// included only when includeInternal is set.
	ListThread(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.pool.QueryRow(ctx, `
        INSERT INTO ticket_messages (ticket_id, author_type, author_id, message_type, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`,
		msg.TicketID, msg.AuthorType, msg.AuthorID, msg.MessageType, msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) ListThread(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, ticket_id, author_type, author_id, message_type, body, created_at
        FROM ticket_messages
        WHERE ticket_id=$1 AND ($2 OR message_type <> $3)
        ORDER BY created_at, id`,
		ticketID, includeInternal, domain.MessageTypeInternalNote)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketMessage, error) {
		var m domain.TicketMessage
		err := row.Scan(&m.ID, &m.TicketID, &m.AuthorType, &m.AuthorID, &m.MessageType, &m.Body, &m.CreatedAt)
		return m, err
	})
}
