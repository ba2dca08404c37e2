package session

import (
	"context"
	"fmt"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/repository"
	"github.com/rs/zerolog/log"
)

// ComposeContext builds the upstream message list for a new batch: the last
// K stored messages in order, followed by incoming. The incoming messages are
// then appended to the stored history and announced on the session topic.
func (m *Manager) ComposeContext(ctx context.Context, s *domain.Session, incoming []domain.ChatMessage) ([]domain.ChatMessage, error) {
	if len(incoming) == 0 {
		return nil, apperr.Validation("", "messages must be a non-empty array").WithParam("messages")
	}
	for i, msg := range incoming {
		if !msg.Role.Valid() {
			return nil, apperr.Validation("invalid_role",
				fmt.Sprintf("messages[%d].role must be one of system, user, assistant", i)).WithParam("messages")
		}
	}

	unlock := m.locks.Lock(s.SessionID)
	defer unlock()

	current, err := m.load(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}

	history := current.Messages
	if len(history) > m.window {
		history = history[len(history)-m.window:]
	}
	composed := make([]domain.ChatMessage, 0, len(history)+len(incoming))
	for _, msg := range history {
		composed = append(composed, domain.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	composed = append(composed, incoming...)

	now := m.now().UTC()
	appended := make([]domain.Message, len(incoming))
	for i, msg := range incoming {
		appended[i] = domain.Message{
			MessageID: newMessageID(),
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: now,
		}
	}

	ok, err := m.store.UpdateSession(ctx,
		repository.SessionFilter{SessionID: s.SessionID, ExcludeDeleted: true},
		repository.SessionPatch{AppendMessages: appended})
	if err != nil {
		return nil, apperr.Internal(err, "failed to append messages")
	}
	if !ok {
		return nil, apperr.NotFound("session_not_found", "Session not found")
	}

	s.Messages = append(current.Messages, appended...)
	s.MessageCount = len(s.Messages)
	s.LastMessageAt = now
	s.UpdatedAt = now

	for _, msg := range appended {
		m.publisher.PublishToSession(s.SessionID, domain.EventMessageNew, msg)
	}
	return composed, nil
}

// AppendAssistantReply appends exactly one message to s. While the session
// holds at most two messages and keeps the default title, the title is
// derived from the first user message. Title failures do not fail the append.
// The owner always receives session:updated with the new activity counters.
func (m *Manager) AppendAssistantReply(ctx context.Context, s *domain.Session, role domain.Role, content string) (*domain.Message, error) {
	if role == "" {
		role = domain.RoleAssistant
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid_role", "role must be one of system, user, assistant").WithParam("role")
	}

	unlock := m.locks.Lock(s.SessionID)
	defer unlock()

	current, err := m.load(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	msg := domain.Message{
		MessageID: newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	ok, err := m.store.UpdateSession(ctx,
		repository.SessionFilter{SessionID: s.SessionID, ExcludeDeleted: true},
		repository.SessionPatch{AppendMessages: []domain.Message{msg}})
	if err != nil {
		return nil, apperr.Internal(err, "failed to append reply")
	}
	if !ok {
		return nil, apperr.NotFound("session_not_found", "Session not found")
	}

	current.Messages = append(current.Messages, msg)
	current.MessageCount = len(current.Messages)
	current.LastMessageAt = now
	current.UpdatedAt = now

	m.publisher.PublishToSession(s.SessionID, domain.EventMessageNew, msg)

	if len(current.Messages) <= 2 && current.Title == domain.DefaultTitle {
		m.deriveTitle(ctx, current)
	}
	m.publisher.PublishToUser(current.OwnerID, domain.EventSessionUpdated, current.Public())

	*s = *current
	return &msg, nil
}

// deriveTitle replaces the default title of s. The update only matches while
// the title is still the default, so the first writer wins.
func (m *Manager) deriveTitle(ctx context.Context, s *domain.Session) {
	title := DeriveTitle(s.Messages)
	if title == "" {
		return
	}

	def := domain.DefaultTitle
	ok, err := m.store.UpdateSession(ctx,
		repository.SessionFilter{SessionID: s.SessionID, ExcludeDeleted: true, Title: &def},
		repository.SessionPatch{Title: &title})
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Str("session_id", s.SessionID).
			Msg("failed to derive session title")
		return
	}
	if !ok {
		return
	}

	s.Title = title
}
