// Package protocol defines the WebSocket frames exchanged with live viewers.
// Broker events are delivered as broker.Frame and share the "type" field.
package protocol

import "time"

// Message types from client to server
const (
	TypeHello        = "hello"
	TypeJoinSession  = "join:session"
	TypeLeaveSession = "leave:session"
	TypeTyping       = "typing"
)

// Message types from server to client
const (
	TypeHelloAck      = "hello_ack"
	TypeSessionJoined = "session:joined"
	TypeSessionLeft   = "session:left"
	TypeError         = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// NewBase stamps a message of the given type with the current time.
func NewBase(typ, sessionID string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}

// HelloMessage authenticates a connection that did not present a token
// during the upgrade.
type HelloMessage struct {
	BaseMessage
	Token      string            `json:"token"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage confirms authentication.
type HelloAckMessage struct {
	BaseMessage
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

// JoinSessionMessage asks to follow the events of SessionID.
type JoinSessionMessage struct {
	BaseMessage
}

// TypingMessage reports the sender's typing state in the joined session.
type TypingMessage struct {
	BaseMessage
	IsTyping bool `json:"is_typing"`
}

// ErrorMessage is sent when a client frame cannot be honored.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeAuth            = "auth_error"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeNotFound        = "not_found"
	ErrorCodeInternalError   = "internal_error"
)
