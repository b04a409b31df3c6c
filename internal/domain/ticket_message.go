package domain

import "time"

// AuthorType indicates who authored a message or change.
type AuthorType string

const (
	AuthorTypeRequester AuthorType = "REQUESTER"
	AuthorTypeStaff     AuthorType = "STAFF"
	AuthorTypeSystem    AuthorType = "SYSTEM"
)

// TicketMessageType differentiates between replies and notes.
type TicketMessageType string

const (
	MessageTypePublicReply  TicketMessageType = "PUBLIC_REPLY"
	MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"
)

// TicketMessage is a comment in a ticket thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  AuthorType
	AuthorID    *string
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}

// CountsAsResponse reports whether the message answers the requester for SLA purposes.
func (m *TicketMessage) CountsAsResponse() bool {
	return m.AuthorType == AuthorTypeStaff && m.MessageType == MessageTypePublicReply
}
