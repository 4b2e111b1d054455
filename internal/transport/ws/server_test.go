package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/config"
	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/hub"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/protocol"
	"github.com/xiaot623/agentflow/internal/service"
)

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(nil, nil)
	go h.Run(ctx)

	svc := service.New(service.Options{
		Catalog: catalog.Default(),
		Factory: lifecycle.NewFactory(lifecycle.FactoryConfig{TimeScale: 0.001}),
		Hub:     h,
		Config:  &config.Config{},
	})
	t.Cleanup(svc.Close)

	e := echo.New()
	e.GET("/ws", NewServer(DefaultConfig(), h, svc, nil).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	protocol.BaseMessage
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Summary string          `json:"summary"`
	View    json.RawMessage `json:"view"`
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestTriggerRequiresHello(t *testing.T) {
	conn := dial(t)

	send(t, conn, protocol.TriggerMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeRunAgent}})
	msg := read(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, protocol.ErrorCodeSessionRequired, msg.Code)
}

func TestHelloUnknownRunKey(t *testing.T) {
	conn := dial(t)

	send(t, conn, protocol.HelloMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, SessionID: "NOPE"}})
	msg := read(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, protocol.ErrorCodeNotFound, msg.Code)
}

func TestUnknownMessageType(t *testing.T) {
	conn := dial(t)

	send(t, conn, map[string]string{"type": "approve_everything"})
	msg := read(t, conn)
	assert.Equal(t, protocol.ErrorCodeInvalidMessage, msg.Code)
}

func TestRunAgentPushesStatesAndDone(t *testing.T) {
	conn := dial(t)

	send(t, conn, protocol.HelloMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, SessionID: catalog.FraudCaseKey, RequestID: "req_1"}})
	ack := read(t, conn)
	require.Equal(t, protocol.TypeHelloAck, ack.Type)
	assert.Equal(t, "req_1", ack.RequestID)
	assert.Contains(t, string(ack.View), `"state":"idle"`)

	send(t, conn, protocol.TriggerMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeRunAgent}})

	states := 0
	for {
		msg := read(t, conn)
		require.NotEqual(t, protocol.TypeError, msg.Type, msg.Message)
		if msg.Type == protocol.TypeState {
			states++
			continue
		}
		require.Equal(t, protocol.TypeDone, msg.Type)
		assert.NotEmpty(t, msg.Summary)
		assert.Equal(t, catalog.FraudCaseKey, msg.SessionID)
		break
	}
	assert.Positive(t, states)

	send(t, conn, protocol.TriggerMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeCancelAgent}})
	msg := read(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, protocol.ErrorCodeRejected, msg.Code)

	send(t, conn, protocol.TriggerMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeResetAgent}})
	msg = read(t, conn)
	assert.Equal(t, protocol.TypeState, msg.Type)
	assert.Contains(t, string(msg.View), `"state":"`+string(domain.ControllerIdle)+`"`)
}
