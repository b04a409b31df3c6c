package realtime

import "sync"

// Registry tracks live connections, indexed by connection and by user.
type Registry struct {
	mu     sync.RWMutex
	multi  bool
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
}

// NewRegistry creates a registry. With multiSession false a user holds at most
// one connection and registering a new one evicts the previous.
func NewRegistry(multiSession bool) *Registry {
	return &Registry{
		multi:  multiSession,
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Register admits conn and returns the connections it replaced.
func (r *Registry) Register(conn *Connection) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Connection
	sessions := r.byUser[conn.UserID]
	if sessions == nil {
		sessions = make(map[string]*Connection)
		r.byUser[conn.UserID] = sessions
	}
	if !r.multi {
		for id, old := range sessions {
			delete(sessions, id)
			delete(r.conns, id)
			evicted = append(evicted, old)
		}
	}
	sessions[conn.ID] = conn
	r.conns[conn.ID] = conn
	return evicted
}

// Unregister removes conn if it is still registered.
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[conn.ID] != conn {
		return false
	}
	delete(r.conns, conn.ID)
	if sessions := r.byUser[conn.UserID]; sessions != nil {
		delete(sessions, conn.ID)
		if len(sessions) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
	return true
}

// UnregisterUser removes every connection of userID and returns them.
func (r *Registry) UnregisterUser(userID string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[userID]
	out := make([]*Connection, 0, len(sessions))
	for id, conn := range sessions {
		delete(r.conns, id)
		out = append(out, conn)
	}
	delete(r.byUser, userID)
	return out
}

// Contains reports whether conn is currently registered.
func (r *Registry) Contains(conn *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[conn.ID] == conn
}

// ConnectionsOf returns the live connections of userID.
func (r *Registry) ConnectionsOf(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := r.byUser[userID]
	out := make([]*Connection, 0, len(sessions))
	for _, conn := range sessions {
		out = append(out, conn)
	}
	return out
}

// SendToUser queues env on every connection of userID. It reports whether at
// least one connection accepted it; a user with no live connection gets false.
func (r *Registry) SendToUser(userID string, env Envelope) bool {
	delivered := false
	for _, conn := range r.ConnectionsOf(userID) {
		if conn.Send(env) {
			delivered = true
		}
	}
	return delivered
}

// Snapshot returns all registered connections.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount returns the number of distinct connected users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
