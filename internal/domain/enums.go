// Package domain defines the core domain models for the gateway.
package domain

// SessionStatus represents the lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusArchived SessionStatus = "archived"
	SessionStatusDeleted  SessionStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusArchived, SessionStatusDeleted:
		return true
	}
	return false
}

// Role represents the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// CompletionKind selects the upstream endpoint and the response schema.
type CompletionKind string

const (
	CompletionKindChat       CompletionKind = "chat"
	CompletionKindCompletion CompletionKind = "completion"
)

// EventName is a real-time event pushed to live connections.
type EventName string

const (
	EventSessionCreated  EventName = "session:created"
	EventSessionUpdated  EventName = "session:updated"
	EventSessionArchived EventName = "session:archived"
	EventSessionDeleted  EventName = "session:deleted"
	EventMessageNew      EventName = "message:new"
	EventUserTyping      EventName = "user:typing"
)

// Valid reports whether e belongs to the event vocabulary.
func (e EventName) Valid() bool {
	switch e {
	case EventSessionCreated, EventSessionUpdated, EventSessionArchived,
		EventSessionDeleted, EventMessageNew, EventUserTyping:
		return true
	}
	return false
}
