package hub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *atomic.Int64) {
	t.Helper()
	var count atomic.Int64
	h := NewHub(nil, func(n int) { count.Store(int64(n)) })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, &count
}

func receive(t *testing.T, conn *Connection) []byte {
	t.Helper()
	select {
	case data := <-conn.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return nil
}

func TestBroadcastReachesBoundConnections(t *testing.T) {
	h, count := startHub(t)

	a := h.NewConnection(nil)
	b := h.NewConnection(nil)
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, time.Millisecond)

	h.Bind(a, "CASE-1001")
	h.Bind(b, "APP-2001")
	assert.True(t, h.HasActiveConnections("CASE-1001"))

	require.NoError(t, h.BroadcastJSON("CASE-1001", map[string]string{"type": "state"}))
	assert.JSONEq(t, `{"type":"state"}`, string(receive(t, a)))

	select {
	case <-b.Send:
		t.Fatal("unbound connection received a message")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRebindMovesConnection(t *testing.T) {
	h, _ := startHub(t)
	conn := h.NewConnection(nil)
	h.Register(conn)

	h.Bind(conn, "CASE-1001")
	h.Bind(conn, "APP-2001")
	assert.False(t, h.HasActiveConnections("CASE-1001"))
	assert.Equal(t, "APP-2001", h.BoundKey(conn))
}

func TestUnregisterClosesSend(t *testing.T) {
	h, count := startHub(t)
	conn := h.NewConnection(nil)
	h.Register(conn)
	h.Bind(conn, "CASE-1001")
	h.Unregister(conn)

	require.Eventually(t, func() bool { return count.Load() == 0 }, time.Second, time.Millisecond)
	_, ok := <-conn.Send
	assert.False(t, ok)
	assert.False(t, h.HasActiveConnections("CASE-1001"))
}

func TestSendAfterEvictionReturnsError(t *testing.T) {
	h, count := startHub(t)
	conn := h.NewConnection(nil)
	h.Register(conn)
	h.Bind(conn, "CASE-1001")
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < cap(conn.Send); i++ {
		require.NoError(t, h.SendJSONToConnection(conn, i))
	}
	require.NoError(t, h.Broadcast("CASE-1001", []byte("overflow")))
	require.Eventually(t, func() bool { return count.Load() == 0 }, time.Second, time.Millisecond)

	assert.NotPanics(t, func() {
		assert.ErrorIs(t, h.SendJSONToConnection(conn, "late"), ErrConnectionClosed)
	})
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := NewHub(nil, nil)
	for i := 0; i < cap(h.broadcast); i++ {
		require.NoError(t, h.Broadcast("k", []byte("x")))
	}
	assert.ErrorIs(t, h.Broadcast("k", []byte("x")), ErrBufferFull)
}

func TestStoppedHubDoesNotBlock(t *testing.T) {
	h := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	conn := h.NewConnection(nil)
	h.Register(conn)
	h.Unregister(conn)
}
