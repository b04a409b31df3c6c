package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

type fakeSocket struct {
	frames chan Envelope
	block  chan struct{}
	fail   bool

	mu     sync.Mutex
	closed bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{frames: make(chan Envelope, 256)}
}

func (s *fakeSocket) WriteJSON(v any) error {
	if s.block != nil {
		<-s.block
	}
	if s.fail {
		return errors.New("broken pipe")
	}
	s.frames <- v.(Envelope)
	return nil
}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestHub(multi bool) *Hub {
	return NewHub(Options{MultiSession: multi, SendBufferSize: 16, WriteTimeout: time.Second}, nil, nil)
}

func testUser(id string, roles ...domain.Role) *domain.User {
	return &domain.User{ID: id, Email: id + "@example.com", Status: domain.UserStatusActive, Roles: roles}
}

// connect registers a user and consumes the greeting.
func connect(t *testing.T, hub *Hub, user *domain.User) (*Connection, *fakeSocket) {
	t.Helper()
	socket := newFakeSocket()
	conn := hub.Connect(user, socket)
	greeting := nextFrame(t, socket)
	require.Equal(t, EventConnected, greeting.Event)
	return conn, socket
}

func nextFrame(t *testing.T, s *fakeSocket) Envelope {
	t.Helper()
	select {
	case env := <-s.frames:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func requireNoFrame(t *testing.T, s *fakeSocket) {
	t.Helper()
	select {
	case env := <-s.frames:
		t.Fatalf("unexpected frame %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func frameJSON(t *testing.T, env Envelope) string {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return string(raw)
}
