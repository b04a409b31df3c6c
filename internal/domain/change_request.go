package domain

import "time"

// ChangeRequestStatus enumerates change-management states relevant here.
type ChangeRequestStatus string

const (
	ChangeStatusProposed ChangeRequestStatus = "PROPOSED"
)

// ChangeRequest is a follow-up record opened against a ticket.
type ChangeRequest struct {
	ID          string
	TicketID    string
	Title       string
	Description string
	Status      ChangeRequestStatus
	Priority    TicketPriority
	CreatedAt   time.Time
}
