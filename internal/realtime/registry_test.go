package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToUserWithoutConnection(t *testing.T) {
	hub := newTestHub(false)

	delivered := hub.Registry().SendToUser("ghost", Envelope{Event: "ticket:updated"})

	assert.False(t, delivered)
	assert.False(t, hub.Dispatcher().ToUser("ghost", "ticket:updated", nil))
	assert.Equal(t, 0, hub.ConnectedCount())
	assert.Equal(t, 0, hub.Index().ResourceCount())
}

func TestConnectGreetsWithIdentity(t *testing.T) {
	hub := newTestHub(false)
	socket := newFakeSocket()

	conn := hub.Connect(testUser("u1"), socket)
	t.Cleanup(func() { hub.Disconnect(conn) })

	assert.JSONEq(t, `{"event":"connected","data":{"userId":"u1","email":"u1@example.com"}}`, frameJSON(t, nextFrame(t, socket)))
	assert.Equal(t, 1, hub.ConnectedCount())
}

func TestSingleSessionReplacesPreviousConnection(t *testing.T) {
	hub := newTestHub(false)
	first, firstSocket := connect(t, hub, testUser("u1"))
	second, secondSocket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(second) })

	assert.Equal(t, 1, hub.ConnectedCount())
	assert.False(t, hub.Registry().Contains(first))

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted connection was not closed")
	}
	assert.True(t, firstSocket.isClosed())

	require.True(t, hub.Dispatcher().ToUser("u1", "ticket:updated", map[string]string{"id": "T1"}))
	assert.Equal(t, "ticket:updated", nextFrame(t, secondSocket).Event)
	requireNoFrame(t, firstSocket)
}

func TestStaleDisconnectKeepsReplacement(t *testing.T) {
	hub := newTestHub(false)
	first, _ := connect(t, hub, testUser("u1"))
	second, secondSocket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(second) })

	require.True(t, hub.Subscribe(second, "ticket:T1"))
	hub.Disconnect(first)

	assert.True(t, hub.Registry().Contains(second))
	assert.Equal(t, 1, hub.SubscriberCount("ticket:T1"))
	assert.Equal(t, 1, hub.Dispatcher().ToResourceSubscribers("ticket:T1", "ticket:updated", nil))
	assert.Equal(t, "ticket:updated", nextFrame(t, secondSocket).Event)
}

func TestMultiSessionFansOutToEverySession(t *testing.T) {
	hub := newTestHub(true)
	first, firstSocket := connect(t, hub, testUser("u1"))
	second, secondSocket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() {
		hub.Disconnect(first)
		hub.Disconnect(second)
	})

	assert.Equal(t, 2, hub.ConnectedCount())
	assert.Equal(t, 1, hub.Registry().UserCount())

	require.True(t, hub.Dispatcher().ToUser("u1", "notification:new", nil))
	assert.Equal(t, "notification:new", nextFrame(t, firstSocket).Event)
	assert.Equal(t, "notification:new", nextFrame(t, secondSocket).Event)
}

func TestSendAfterWriteFailureReportsNotDelivered(t *testing.T) {
	hub := newTestHub(false)
	socket := newFakeSocket()
	socket.fail = true
	conn := hub.Connect(testUser("u1"), socket)
	t.Cleanup(func() { hub.Disconnect(conn) })

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after a failed write")
	}
	assert.False(t, hub.Dispatcher().ToUser("u1", "ticket:updated", nil))
}

func TestDisconnectUserDropsAllSessions(t *testing.T) {
	hub := newTestHub(true)
	first, _ := connect(t, hub, testUser("u1"))
	second, _ := connect(t, hub, testUser("u1"))
	require.True(t, hub.Subscribe(first, "ticket:T1"))
	require.True(t, hub.Subscribe(second, "ticket:T2"))

	assert.Equal(t, 2, hub.DisconnectUser("u1"))

	assert.Equal(t, 0, hub.ConnectedCount())
	assert.False(t, hub.Index().Has("ticket:T1"))
	assert.False(t, hub.Index().Has("ticket:T2"))
	<-first.Done()
	<-second.Done()
}
