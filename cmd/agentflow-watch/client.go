package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/protocol"
)

// Client represents a WebSocket client bound to one run key.
type Client struct {
	conn   *websocket.Conn
	runKey string
	done   chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello binds the connection to runKey and returns the current view.
func (c *Client) SendHello(runKey string) (feed.View, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.Base(protocol.TypeHello, runKey, ""),
		ClientMeta: map[string]string{
			"client": "agentflow-watch",
		},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return feed.View{}, fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return feed.View{}, fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return feed.View{}, fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return feed.View{}, fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != protocol.TypeHelloAck {
		return feed.View{}, fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return feed.View{}, fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	c.runKey = runKey
	return ack.View, nil
}

// SendTrigger sends run_agent, cancel_agent or reset_agent.
func (c *Client) SendTrigger(msgType string) error {
	msg := protocol.TriggerMessage{BaseMessage: protocol.Base(msgType, c.runKey, "")}
	msg.RequestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	return c.conn.WriteJSON(msg)
}

// ReadMessages prints every message from the server until the connection
// closes. With exitOnEnd it returns after the first done or error message.
func (c *Client) ReadMessages(exitOnEnd bool) {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Printf("read error: %v\n", err)
			}
			return
		}

		line, end := format(data)
		if line != "" {
			fmt.Println(line)
		}
		if end && exitOnEnd {
			return
		}
	}
}

// format renders one server message as a line. end reports a done or error
// message.
func format(data []byte) (line string, end bool) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "unreadable message: " + err.Error(), false
	}

	switch base.Type {
	case protocol.TypeState, protocol.TypeHelloAck:
		var msg protocol.StateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return "unreadable state: " + err.Error(), false
		}
		return formatView(msg.View), false
	case protocol.TypeDone:
		var msg protocol.DoneMessage
		json.Unmarshal(data, &msg)
		return fmt.Sprintf("[done] %s", msg.Summary), true
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		json.Unmarshal(data, &msg)
		return fmt.Sprintf("[error] %s: %s", msg.Code, msg.Message), true
	}
	return fmt.Sprintf("[%s]", base.Type), false
}

func formatView(v feed.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %3d%%", v.State, v.Progress.Percent)
	if v.Progress.Label != "" {
		fmt.Fprintf(&b, " %s", v.Progress.Label)
	}
	var active []string
	for _, s := range v.Stages {
		if s.Status == domain.StageStatusInProgress {
			active = append(active, fmt.Sprintf("%s %d/%d", s.DisplayName, s.Done, s.Total))
		}
	}
	if len(active) > 0 {
		fmt.Fprintf(&b, " | %s", strings.Join(active, ", "))
	}
	if v.MessageLine != "" {
		fmt.Fprintf(&b, " | %s", v.MessageLine)
	}
	return b.String()
}
