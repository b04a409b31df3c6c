package realtime

import "encoding/json"

// Outbound event names emitted by the realtime layer itself.
const (
	EventConnected    = "connected"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventPong         = "pong"
	EventError        = "error"
)

// Domain events pushed to clients.
const (
	EventTicketCreated     = "ticket:created"
	EventTicketUpdated     = "ticket:updated"
	EventTicketAssigned    = "ticket:assigned"
	EventTicketSLABreached = "ticket:sla_breached"
	EventNotificationNew   = "notification:new"
)

// Inbound event names understood from clients.
const (
	InboundSubscribeTicket   = "subscribe:ticket"
	InboundUnsubscribeTicket = "unsubscribe:ticket"
	InboundPing              = "ping"
)

// Envelope is the uniform message shape in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// ErrorEnvelope builds an error reply.
func ErrorEnvelope(message string) Envelope {
	return Envelope{Event: EventError, Error: message}
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ticketRef struct {
	TicketID string `json:"ticketId"`
}

func parseInbound(raw []byte) (inboundEnvelope, bool) {
	var msg inboundEnvelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, false
	}
	if msg.Event == "" {
		return msg, false
	}
	return msg, true
}
