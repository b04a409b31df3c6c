package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
)

// Options configures a Hub.
type Options struct {
	MultiSession   bool
	SendBufferSize int
	WriteTimeout   time.Duration
}

// Hub owns the connection registry and the subscription index for one process.
// Lifecycle mutations (connect, disconnect, subscribe, unsubscribe) are
// serialized so the registry and the index stay consistent.
type Hub struct {
	mu         sync.Mutex
	opts       Options
	registry   *Registry
	index      *SubscriptionIndex
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewHub constructs the hub and its dispatcher.
func NewHub(opts Options, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	logger = observability.OrNop(logger).Named("realtime")
	registry := NewRegistry(opts.MultiSession)
	index := NewSubscriptionIndex()
	return &Hub{
		opts:       opts,
		registry:   registry,
		index:      index,
		dispatcher: NewDispatcher(registry, index, logger, metrics),
		logger:     logger,
		metrics:    metrics,
	}
}

// Dispatcher returns the fan-out API.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Index returns the subscription index.
func (h *Hub) Index() *SubscriptionIndex { return h.index }

// ConnectedCount returns the number of live connections.
func (h *Hub) ConnectedCount() int { return h.registry.Count() }

// IsConnected reports whether userID holds at least one live connection.
func (h *Hub) IsConnected(userID string) bool { return len(h.registry.ConnectionsOf(userID)) > 0 }

// SubscriberCount returns the number of users subscribed to resourceID.
func (h *Hub) SubscriberCount(resourceID string) int { return h.index.SubscriberCount(resourceID) }

// Connect registers an authenticated user's socket and greets it.
func (h *Hub) Connect(user *domain.User, socket Socket) *Connection {
	conn := newConnection(user, socket, h.opts.SendBufferSize, h.opts.WriteTimeout, h.logger)

	h.mu.Lock()
	evicted := h.registry.Register(conn)
	for _, old := range evicted {
		h.detachLocked(old)
	}
	h.mu.Unlock()

	for _, old := range evicted {
		h.logger.Info("replacing previous session", zap.String("user_id", old.UserID), zap.String("connection_id", old.ID))
		old.Close()
	}
	h.metrics.SetConnections(h.registry.Count())

	conn.Send(Envelope{Event: EventConnected, Data: map[string]string{
		"userId": user.ID,
		"email":  user.Email,
	}})
	h.logger.Info("client connected", zap.String("user_id", user.ID), zap.String("connection_id", conn.ID))
	return conn
}

// Disconnect removes conn and its subscriptions, then waits for its writer to exit.
// It is safe to call more than once.
func (h *Hub) Disconnect(conn *Connection) {
	h.mu.Lock()
	removed := h.registry.Unregister(conn)
	h.detachLocked(conn)
	h.mu.Unlock()

	conn.Close()
	<-conn.Done()
	if removed {
		h.metrics.SetConnections(h.registry.Count())
		h.logger.Info("client disconnected", zap.String("user_id", conn.UserID), zap.String("connection_id", conn.ID))
	}
}

// DisconnectUser drops every live connection of userID.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.Lock()
	conns := h.registry.UnregisterUser(userID)
	for _, conn := range conns {
		h.detachLocked(conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	h.metrics.SetConnections(h.registry.Count())
	return len(conns)
}

// Subscribe records conn's interest in resourceID.
func (h *Hub) Subscribe(conn *Connection, resourceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registry.Contains(conn) {
		return false
	}
	conn.addResource(resourceID)
	h.index.Subscribe(resourceID, conn.UserID)
	return true
}

// Unsubscribe removes conn's interest in resourceID. The user stays in the
// index while another of their connections still holds the resource.
func (h *Hub) Unsubscribe(conn *Connection, resourceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.removeResource(resourceID)
	if !h.userHoldsLocked(conn.UserID, resourceID) {
		h.index.Unsubscribe(resourceID, conn.UserID)
	}
}

// HandleMessage processes one inbound frame from conn and replies on the same connection.
func (h *Hub) HandleMessage(conn *Connection, raw []byte) {
	msg, ok := parseInbound(raw)
	if !ok {
		conn.Send(ErrorEnvelope("Invalid message format"))
		return
	}

	switch msg.Event {
	case InboundSubscribeTicket, InboundUnsubscribeTicket:
		var ref ticketRef
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ref); err != nil {
				conn.Send(ErrorEnvelope("Invalid message format"))
				return
			}
		}
		if ref.TicketID == "" {
			conn.Send(ErrorEnvelope("ticketId is required"))
			return
		}
		resource := domain.TicketResource(ref.TicketID)
		if msg.Event == InboundSubscribeTicket {
			h.Subscribe(conn, resource)
			conn.Send(Envelope{Event: EventSubscribed, Data: map[string]string{"resource": resource}})
		} else {
			h.Unsubscribe(conn, resource)
			conn.Send(Envelope{Event: EventUnsubscribed, Data: map[string]string{"resource": resource}})
		}
	case InboundPing:
		conn.Send(Envelope{Event: EventPong})
	default:
		conn.Send(ErrorEnvelope("Unknown event: " + msg.Event))
	}
}

func (h *Hub) detachLocked(conn *Connection) {
	for _, resourceID := range conn.takeResources() {
		if !h.userHoldsLocked(conn.UserID, resourceID) {
			h.index.Unsubscribe(resourceID, conn.UserID)
		}
	}
}

func (h *Hub) userHoldsLocked(userID, resourceID string) bool {
	for _, other := range h.registry.ConnectionsOf(userID) {
		if other.holds(resourceID) {
			return true
		}
	}
	return false
}

// CloseAll disconnects every live connection. Used on shutdown.
func (h *Hub) CloseAll() int {
	conns := h.registry.Snapshot()
	for _, conn := range conns {
		h.Disconnect(conn)
	}
	return len(conns)
}
