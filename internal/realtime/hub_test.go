package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageSubscribeThenUnknownEvent(t *testing.T) {
	hub := newTestHub(false)
	conn, socket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(conn) })

	hub.HandleMessage(conn, []byte(`{"event":"subscribe:ticket","data":{"ticketId":"T1"}}`))
	hub.HandleMessage(conn, []byte(`{"event":"frobnicate"}`))

	assert.JSONEq(t, `{"event":"subscribed","data":{"resource":"ticket:T1"}}`, frameJSON(t, nextFrame(t, socket)))
	assert.JSONEq(t, `{"event":"error","error":"Unknown event: frobnicate"}`, frameJSON(t, nextFrame(t, socket)))
	assert.True(t, hub.Index().IsSubscribed("ticket:T1", "u1"))
}

func TestHandleMessageMalformedKeepsConnectionOpen(t *testing.T) {
	hub := newTestHub(false)
	conn, socket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(conn) })

	hub.HandleMessage(conn, []byte(`{not json`))
	hub.HandleMessage(conn, []byte(`{"data":{}}`))
	hub.HandleMessage(conn, []byte(`{"event":"ping"}`))

	assert.JSONEq(t, `{"event":"error","error":"Invalid message format"}`, frameJSON(t, nextFrame(t, socket)))
	assert.JSONEq(t, `{"event":"error","error":"Invalid message format"}`, frameJSON(t, nextFrame(t, socket)))
	assert.JSONEq(t, `{"event":"pong"}`, frameJSON(t, nextFrame(t, socket)))
	assert.True(t, hub.Registry().Contains(conn))
}

func TestHandleMessageRequiresTicketID(t *testing.T) {
	hub := newTestHub(false)
	conn, socket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(conn) })

	hub.HandleMessage(conn, []byte(`{"event":"subscribe:ticket"}`))
	hub.HandleMessage(conn, []byte(`{"event":"subscribe:ticket","data":"T1"}`))

	assert.Equal(t, "ticketId is required", nextFrame(t, socket).Error)
	assert.Equal(t, "Invalid message format", nextFrame(t, socket).Error)
	assert.Equal(t, 0, hub.Index().ResourceCount())
}

func TestHandleMessageUnsubscribe(t *testing.T) {
	hub := newTestHub(false)
	conn, socket := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(conn) })

	hub.HandleMessage(conn, []byte(`{"event":"subscribe:ticket","data":{"ticketId":"T1"}}`))
	hub.HandleMessage(conn, []byte(`{"event":"unsubscribe:ticket","data":{"ticketId":"T1"}}`))

	nextFrame(t, socket)
	assert.JSONEq(t, `{"event":"unsubscribed","data":{"resource":"ticket:T1"}}`, frameJSON(t, nextFrame(t, socket)))
	assert.False(t, hub.Index().Has("ticket:T1"))
	assert.Empty(t, conn.Resources())
}

func TestDisconnectRemovesEverySubscription(t *testing.T) {
	hub := newTestHub(false)
	conn, _ := connect(t, hub, testUser("u1"))
	other, _ := connect(t, hub, testUser("u2"))
	t.Cleanup(func() { hub.Disconnect(other) })

	for _, r := range []string{"ticket:T1", "ticket:T2", "ticket:T3"} {
		require.True(t, hub.Subscribe(conn, r))
	}
	require.True(t, hub.Subscribe(other, "ticket:T1"))

	hub.Disconnect(conn)

	for _, r := range []string{"ticket:T1", "ticket:T2", "ticket:T3"} {
		assert.False(t, hub.Index().IsSubscribed(r, "u1"), r)
	}
	assert.Equal(t, []string{"u2"}, hub.Index().SubscribersOf("ticket:T1"))
	assert.False(t, hub.Index().Has("ticket:T2"))
	assert.Equal(t, 1, hub.ConnectedCount())

	hub.Disconnect(conn)
	assert.Equal(t, 1, hub.ConnectedCount())
}

func TestMultiSessionUnsubscribeKeepsSiblingInterest(t *testing.T) {
	hub := newTestHub(true)
	first, _ := connect(t, hub, testUser("u1"))
	second, _ := connect(t, hub, testUser("u1"))
	t.Cleanup(func() { hub.Disconnect(second) })

	require.True(t, hub.Subscribe(first, "ticket:T1"))
	require.True(t, hub.Subscribe(second, "ticket:T1"))

	hub.Unsubscribe(first, "ticket:T1")
	assert.True(t, hub.Index().IsSubscribed("ticket:T1", "u1"))

	hub.Disconnect(first)
	assert.True(t, hub.Index().IsSubscribed("ticket:T1", "u1"))

	hub.Unsubscribe(second, "ticket:T1")
	assert.False(t, hub.Index().Has("ticket:T1"))
}

func TestSubscribeRejectedForUnregisteredConnection(t *testing.T) {
	hub := newTestHub(false)
	conn, _ := connect(t, hub, testUser("u1"))
	hub.Disconnect(conn)

	assert.False(t, hub.Subscribe(conn, "ticket:T1"))
	assert.False(t, hub.Index().Has("ticket:T1"))
}

func TestCloseAllDropsEveryConnection(t *testing.T) {
	hub := newTestHub(true)
	a, sa := connect(t, hub, testUser("u-1"))
	_, sb := connect(t, hub, testUser("u-2"))
	require.True(t, hub.Subscribe(a, "ticket:T1"))

	assert.Equal(t, 2, hub.CloseAll())
	assert.Zero(t, hub.ConnectedCount())
	assert.Zero(t, hub.SubscriberCount("ticket:T1"))
	assert.True(t, sa.isClosed())
	assert.True(t, sb.isClosed())
}
