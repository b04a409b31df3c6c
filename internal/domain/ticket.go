package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further SLA clock applies.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency tiers.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:      1,
	TicketPriorityMedium:   2,
	TicketPriorityHigh:     3,
	TicketPriorityCritical: 4,
}

// Rank orders priorities low < medium < high < critical. Unknown tiers rank 0.
func (p TicketPriority) Rank() int {
	return priorityRank[p]
}

// Valid reports whether p is a known tier.
func (p TicketPriority) Valid() bool {
	return p.Rank() > 0
}

// HigherThan reports whether p is strictly more urgent than other.
func (p TicketPriority) HigherThan(other TicketPriority) bool {
	return p.Rank() > other.Rank()
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	ExternalKey string
	RequesterID string
	AssigneeID  *string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
}

// ResourceID returns the realtime subscription key for the ticket.
func (t *Ticket) ResourceID() string {
	return TicketResource(t.ID)
}

// TicketResource builds the realtime subscription key for a ticket id.
func TicketResource(ticketID string) string {
	return "ticket:" + ticketID
}
