// Package protocol defines the WebSocket message protocol between clients and the server.
package protocol

import (
	"time"

	"github.com/xiaot623/agentflow/internal/feed"
)

// Message types from client to server
const (
	TypeHello       = "hello"
	TypeRunAgent    = "run_agent"
	TypeCancelAgent = "cancel_agent"
	TypeResetAgent  = "reset_agent"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeState    = "state"
	TypeDone     = "done"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// HelloMessage is sent by client to bind the connection to a run key.
type HelloMessage struct {
	BaseMessage
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage is sent after a successful hello. It carries the current view.
type HelloAckMessage struct {
	BaseMessage
	View feed.View `json:"view"`
}

// TriggerMessage is sent by client for run_agent, cancel_agent and reset_agent.
type TriggerMessage struct {
	BaseMessage
}

// StateMessage is pushed after every transition of the bound run.
type StateMessage struct {
	BaseMessage
	View feed.View `json:"view"`
}

// DoneMessage is pushed once when a run completes.
type DoneMessage struct {
	BaseMessage
	Summary string `json:"summary"`
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeNotFound        = "not_found"
	ErrorCodeRejected        = "rejected"
	ErrorCodeBlocked         = "blocked"
	ErrorCodeRunFailed       = "run_failed"
	ErrorCodeInternalError   = "internal_error"
)

// Base fills the common fields.
func Base(msgType, sessionID, runID string) BaseMessage {
	return BaseMessage{
		Type:      msgType,
		Ts:        time.Now().UnixMilli(),
		SessionID: sessionID,
		RunID:     runID,
	}
}
