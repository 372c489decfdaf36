package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hebes/smscrm/internal/domain"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, conn *Connection) domain.MessageEvent {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed")
		var evt domain.MessageEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.MessageEvent{}
}

func assertNothing(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversBySenderPhone(t *testing.T) {
	h := startHub(t)

	mine := h.NewConnection(nil, "555-000-0001")
	other := h.NewConnection(nil, "+15550000002")
	all := h.NewConnection(nil, "")
	h.Register(mine)
	h.Register(other)
	h.Register(all)

	h.PublishEvent("+15550000001", domain.MessageEvent{Type: domain.EventTypeMessageReceived, ConversationKey: "CH1"})

	evt := receive(t, mine)
	assert.Equal(t, domain.EventTypeMessageReceived, evt.Type)
	assert.Equal(t, "CH1", evt.ConversationKey)
	assert.Equal(t, "CH1", receive(t, all).ConversationKey)
	assertNothing(t, other)

	assert.Equal(t, 3, h.ConnectionCount())
	assert.Equal(t, 2, h.Subscribers("+15550000001"))
}

func TestHubSubscribeMovesConnection(t *testing.T) {
	h := startHub(t)

	conn := h.NewConnection(nil, "+15550000001")
	h.Register(conn)
	h.Subscribe(conn, "+15550000002")

	h.PublishEvent("+15550000001", domain.MessageEvent{Type: domain.EventTypeMessageSent})
	assertNothing(t, conn)

	h.PublishEvent("+15550000002", domain.MessageEvent{Type: domain.EventTypeMessageStatus})
	assert.Equal(t, domain.EventTypeMessageStatus, receive(t, conn).Type)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := startHub(t)

	conn := h.NewConnection(nil, "+15550000001")
	h.Register(conn)
	h.Unregister(conn)

	select {
	case _, ok := <-conn.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, h.ConnectionCount())
	assert.Equal(t, 0, h.Subscribers("+15550000001"))
}

func TestHubStopClosesConnections(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	conn := h.NewConnection(nil, "+15550000001")
	h.Register(conn)
	cancel()
	<-stopped

	_, ok := <-conn.Send
	assert.False(t, ok)

	// Unregister after stop must not block.
	h.Unregister(conn)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, AllSenders, Topic(""))
	assert.Equal(t, AllSenders, Topic("*"))
	assert.Equal(t, "+15550000001", Topic("5550000001"))
}
