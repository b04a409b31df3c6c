package realtime

import (
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
)

// Dispatcher fans events out to live connections. Every primitive is best
// effort: an unreachable recipient is counted as dropped and the fan-out continues.
type Dispatcher struct {
	registry *Registry
	index    *SubscriptionIndex
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewDispatcher builds a dispatcher over registry and index.
func NewDispatcher(registry *Registry, index *SubscriptionIndex, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		index:    index,
		logger:   observability.OrNop(logger),
		metrics:  metrics,
	}
}

// ToUser sends to one user's live connections.
func (d *Dispatcher) ToUser(userID, event string, data any) bool {
	delivered := d.registry.SendToUser(userID, Envelope{Event: event, Data: data})
	d.metrics.RecordDelivery(event, delivered)
	if !delivered {
		d.logger.Debug("event not delivered", zap.String("user_id", userID), zap.String("event", event))
	}
	return delivered
}

// ToResourceSubscribers sends to every connected subscriber of resourceID.
func (d *Dispatcher) ToResourceSubscribers(resourceID, event string, data any) int {
	delivered := 0
	for _, userID := range d.index.SubscribersOf(resourceID) {
		if d.ToUser(userID, event, data) {
			delivered++
		}
	}
	return delivered
}

// ToAll sends to every registered connection.
func (d *Dispatcher) ToAll(event string, data any) int {
	return d.fanOut(d.registry.Snapshot(), event, data)
}

// ToRoles sends to connections whose user holds any of roles.
func (d *Dispatcher) ToRoles(roles []domain.Role, event string, data any) int {
	if len(roles) == 0 {
		return 0
	}
	var targets []*Connection
	for _, conn := range d.registry.Snapshot() {
		if conn.HasRole(roles...) {
			targets = append(targets, conn)
		}
	}
	return d.fanOut(targets, event, data)
}

func (d *Dispatcher) fanOut(conns []*Connection, event string, data any) int {
	env := Envelope{Event: event, Data: data}
	delivered := 0
	for _, conn := range conns {
		ok := conn.Send(env)
		d.metrics.RecordDelivery(event, ok)
		if ok {
			delivered++
		}
	}
	return delivered
}
