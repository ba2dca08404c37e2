package domain

import "time"

// DefaultTitle is the placeholder title of a new session.
const DefaultTitle = "New Chat"

// Session represents a conversation owned by a single user.
type Session struct {
	SessionID     string            `json:"session_id"`
	OwnerID       string            `json:"owner_id"`
	ModelID       string            `json:"model_id"`
	Title         string            `json:"title"`
	Messages      []Message         `json:"messages"`
	MessageCount  int               `json:"message_count"`
	Status        SessionStatus     `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastMessageAt time.Time         `json:"last_message_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Message represents a single message in a session.
type Message struct {
	MessageID string            `json:"message_id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ModelConfig maps a model slug to its upstream webhook endpoints.
type ModelConfig struct {
	Slug          string    `json:"slug" yaml:"slug"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description"`
	ChatURL       string    `json:"chat_webhook_url" yaml:"chat_webhook_url"`
	CompletionURL string    `json:"completions_webhook_url" yaml:"completions_webhook_url"`
	IsActive      bool      `json:"is_active" yaml:"is_active"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// EndpointFor returns the webhook URL serving the given kind of call.
func (m *ModelConfig) EndpointFor(kind CompletionKind) string {
	if kind == CompletionKindCompletion {
		return m.CompletionURL
	}
	return m.ChatURL
}

// PublicSession is the projection of a session exposed to clients and events.
type PublicSession struct {
	SessionID     string        `json:"sessionId"`
	Title         string        `json:"title"`
	Model         string        `json:"model"`
	Status        SessionStatus `json:"status"`
	MessageCount  int           `json:"messageCount"`
	LastMessageAt time.Time     `json:"lastMessageAt"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Public projects the session without its messages.
func (s *Session) Public() PublicSession {
	count := s.MessageCount
	if len(s.Messages) > count {
		count = len(s.Messages)
	}
	return PublicSession{
		SessionID:     s.SessionID,
		Title:         s.Title,
		Model:         s.ModelID,
		Status:        s.Status,
		MessageCount:  count,
		LastMessageAt: s.LastMessageAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// SessionDetail is the public projection together with the full history.
type SessionDetail struct {
	PublicSession
	Messages []Message `json:"messages"`
}

// Detail projects the session with its messages.
func (s *Session) Detail() SessionDetail {
	messages := s.Messages
	if messages == nil {
		messages = []Message{}
	}
	return SessionDetail{PublicSession: s.Public(), Messages: messages}
}

// SessionDeletedPayload is the payload of a session:deleted event.
type SessionDeletedPayload struct {
	SessionID string `json:"sessionId"`
}

// TypingPayload is the payload of a user:typing event.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}
