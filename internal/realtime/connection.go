package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// Socket is the write side of a live transport connection.
type Socket interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one authenticated live connection. Outbound envelopes are queued
// and written by a dedicated goroutine so a slow socket never blocks a sender.
type Connection struct {
	ID     string
	UserID string
	Email  string
	Roles  []domain.Role

	socket       Socket
	send         chan Envelope
	done         chan struct{}
	writeTimeout time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	closed    bool
	resources map[string]struct{}
}

func newConnection(user *domain.User, socket Socket, bufferSize int, writeTimeout time.Duration, logger *zap.Logger) *Connection {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	roles := append([]domain.Role(nil), user.Roles...)
	c := &Connection{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		Roles:        roles,
		socket:       socket,
		send:         make(chan Envelope, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		resources:    make(map[string]struct{}),
	}
	c.logger = logger.With(zap.String("connection_id", c.ID), zap.String("user_id", c.UserID))
	go c.writeLoop()
	return c
}

// Send queues env for delivery. It returns false when the connection is closed
// or its queue is full; it never blocks.
func (c *Connection) Send(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Close stops accepting envelopes. Queued envelopes are still flushed before the socket closes.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Done is closed once the writer has exited and the socket is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// HasRole reports whether the connection's user carries any of roles.
func (c *Connection) HasRole(roles ...domain.Role) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Resources lists the resources this connection subscribed to.
func (c *Connection) Resources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.resources))
	for r := range c.resources {
		out = append(out, r)
	}
	return out
}

func (c *Connection) holds(resourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resources[resourceID]
	return ok
}

func (c *Connection) addResource(resourceID string) {
	c.mu.Lock()
	c.resources[resourceID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeResource(resourceID string) {
	c.mu.Lock()
	delete(c.resources, resourceID)
	c.mu.Unlock()
}

func (c *Connection) takeResources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.resources))
	for r := range c.resources {
		out = append(out, r)
	}
	c.resources = make(map[string]struct{})
	return out
}

func (c *Connection) writeLoop() {
	defer close(c.done)
	defer func() {
		_ = c.socket.Close()
	}()

	for env := range c.send {
		if c.writeTimeout > 0 {
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.socket.WriteJSON(env); err != nil {
			c.logger.Debug("write failed; closing connection", zap.String("event", env.Event), zap.Error(err))
			c.Close()
			return
		}
	}
}
