// Package hub fans run updates out to the WebSocket clients bound to a run key.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// ErrConnectionClosed is returned for sends to an unregistered connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID     string
	RunKey string
	Conn   *websocket.Conn
	Send   chan []byte
	mu     sync.Mutex

	closed bool // guarded by Hub.mu; Send is closed once set
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// runKeys maps a run key to the set of bound connection IDs
	runKeys map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *keyMessage
	done       chan struct{}

	logger  *slog.Logger
	onCount func(n int)

	mu sync.RWMutex
}

type keyMessage struct {
	runKey string
	data   []byte
}

// NewHub creates a new Hub. onCount, if set, is called with the number of
// connections after every change.
func NewHub(logger *slog.Logger, onCount func(n int)) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		runKeys:     make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *keyMessage, 256),
		done:        make(chan struct{}),
		logger:      logger,
		onCount:     onCount,
	}
}

// Run is the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			n := len(h.connections)
			h.mu.Unlock()
			h.count(n)
			h.logger.Debug("connection registered", "conn_id", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				conn.closed = true
				close(conn.Send)
			}
			n := len(h.connections)
			h.mu.Unlock()
			h.count(n)
			h.logger.Debug("connection unregistered", "conn_id", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.runKeys[msg.runKey] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					h.logger.Warn("connection buffer full, closing", "conn_id", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) count(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// NewConnection creates a new, unregistered connection.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Bind binds a connection to a run key, replacing any earlier binding.
func (h *Hub) Bind(conn *Connection, runKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.RunKey = runKey
	if h.runKeys[runKey] == nil {
		h.runKeys[runKey] = make(map[string]bool)
	}
	h.runKeys[runKey][conn.ID] = true
}

// BoundKey returns the run key a connection is bound to.
func (h *Hub) BoundKey(conn *Connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.RunKey
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.RunKey == "" || h.runKeys[conn.RunKey] == nil {
		return
	}
	delete(h.runKeys[conn.RunKey], conn.ID)
	if len(h.runKeys[conn.RunKey]) == 0 {
		delete(h.runKeys, conn.RunKey)
	}
}

// Broadcast queues a message for all connections bound to runKey. It never
// blocks; a message is dropped when the queue is full.
func (h *Hub) Broadcast(runKey string, data []byte) error {
	select {
	case h.broadcast <- &keyMessage{runKey: runKey, data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// BroadcastJSON queues a JSON message for all connections bound to runKey.
func (h *Hub) BroadcastJSON(runKey string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(runKey, data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return ErrConnectionClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// HasActiveConnections checks if a run key has any bound connections.
func (h *Hub) HasActiveConnections(runKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runKeys[runKey]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
