// Package ws provides WebSocket server functionality for client connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/hub"
	"github.com/xiaot623/agentflow/internal/protocol"
	"github.com/xiaot623/agentflow/internal/service"
)

// Config holds the connection timings.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the timings used by the server binary.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	service  *service.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, h *hub.Hub, svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", "conn_id", conn.ID, "error", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeRunAgent:
		s.handleTrigger(conn, baseMsg, s.service.RunAgent)
	case protocol.TypeCancelAgent:
		s.handleTrigger(conn, baseMsg, s.service.CancelAgent)
	case protocol.TypeResetAgent:
		s.handleTrigger(conn, baseMsg, s.service.ResetAgent)
	default:
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello binds the connection to the run key named by session_id.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if msg.SessionID == "" {
		s.sendError(conn, "", protocol.ErrorCodeSessionRequired, "session_id is required")
		return
	}

	v, err := s.service.View(msg.SessionID)
	if err != nil {
		s.sendError(conn, "", codeOf(err), err.Error())
		return
	}
	s.hub.Bind(conn, msg.SessionID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.Base(protocol.TypeHelloAck, msg.SessionID, v.RunID),
		View:        v,
	}
	ack.RequestID = msg.RequestID
	if err := s.hub.SendJSONToConnection(conn, ack); err != nil {
		s.logger.Warn("failed to send hello_ack", "conn_id", conn.ID, "error", err)
		return
	}

	s.logger.Info("hello handshake completed", "conn_id", conn.ID, "run_key", msg.SessionID)
}

// handleTrigger runs one of the three run triggers for the bound run key.
// Successful triggers are answered by the state pushes of the run itself;
// reset is pushed by the service.
func (s *Server) handleTrigger(conn *hub.Connection, msg protocol.BaseMessage, fn func(context.Context, string) (feed.View, error)) {
	runKey := s.hub.BoundKey(conn)
	if runKey == "" {
		s.sendError(conn, "", protocol.ErrorCodeSessionRequired, "must send hello first")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := fn(ctx, runKey)
	if err != nil {
		s.logger.Info("trigger rejected", "type", msg.Type, "run_key", runKey, "error", err)
		s.sendError(conn, v.RunID, codeOf(err), err.Error())
	}
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoScenario):
		return protocol.ErrorCodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return protocol.ErrorCodeRejected
	case errors.Is(err, domain.ErrRunBlocked):
		return protocol.ErrorCodeBlocked
	}
	return protocol.ErrorCodeInternalError
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, runID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.Base(protocol.TypeError, s.hub.BoundKey(conn), runID),
		Code:        code,
		Message:     message,
	}
	if err := s.hub.SendJSONToConnection(conn, errMsg); err != nil {
		s.logger.Warn("failed to send error", "conn_id", conn.ID, "code", code, "error", err)
	}
}
