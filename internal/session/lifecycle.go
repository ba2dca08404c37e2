package session

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/repository"
)

const (
	titleLimit       = 200
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ListQuery selects a page of the caller's sessions.
type ListQuery struct {
	Status domain.SessionStatus
	Page   int
	Limit  int
}

// Page is one page of sessions, most recently active first.
type Page struct {
	Sessions []domain.Session
	Total    int
	Page     int
	Limit    int
	Pages    int
}

// List returns the caller's live sessions without messages.
func (m *Manager) List(ctx context.Context, ownerID string, q ListQuery) (*Page, error) {
	if q.Status != "" && q.Status != domain.SessionStatusActive && q.Status != domain.SessionStatusArchived {
		return nil, apperr.Validation("invalid_status", "status must be active or archived").WithParam("status")
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	filter := repository.SessionFilter{OwnerID: ownerID, Status: q.Status, ExcludeDeleted: true}
	total, err := m.store.CountSessions(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to count sessions")
	}
	sessions, err := m.store.FindSessions(ctx, filter,
		repository.Sort{Field: "last_message_at", Desc: true},
		repository.Pagination{Offset: (q.Page - 1) * q.Limit, Limit: q.Limit})
	if err != nil {
		return nil, apperr.Internal(err, "failed to list sessions")
	}

	return &Page{
		Sessions: sessions,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
		Pages:    (total + q.Limit - 1) / q.Limit,
	}, nil
}

func normalizeTitle(title string, allowEmpty bool) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		if allowEmpty {
			return domain.DefaultTitle, nil
		}
		return "", apperr.Validation("invalid_title", "title must not be empty").WithParam("title")
	}
	if utf8.RuneCountInString(title) > titleLimit {
		return "", apperr.Validation("invalid_title", "title must be at most 200 characters").WithParam("title")
	}
	return title, nil
}

// mutate runs fn on the caller's session under its lock and persists the
// returned patch.
func (m *Manager) mutate(ctx context.Context, ownerID, sessionID string, fn func(s *domain.Session) (repository.SessionPatch, error)) (*domain.Session, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	s, err := m.loadOwned(ctx, ownerID, sessionID, policy.ActionWrite)
	if err != nil {
		return nil, err
	}
	patch, err := fn(s)
	if err != nil {
		return nil, err
	}

	ok, err := m.store.UpdateSession(ctx,
		repository.SessionFilter{SessionID: sessionID, Status: s.Status},
		patch)
	if err != nil {
		return nil, apperr.Internal(err, "failed to update session")
	}
	if !ok {
		return nil, apperr.NotFound("session_not_found", "Session not found")
	}

	s.UpdatedAt = m.now().UTC()
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.ClearMessages {
		s.Messages = []domain.Message{}
		s.MessageCount = 0
	}
	return s, nil
}

// SetTitle renames the caller's session.
func (m *Manager) SetTitle(ctx context.Context, ownerID, sessionID, title string) (*domain.Session, error) {
	title, err := normalizeTitle(title, false)
	if err != nil {
		return nil, err
	}
	s, err := m.mutate(ctx, ownerID, sessionID, func(*domain.Session) (repository.SessionPatch, error) {
		return repository.SessionPatch{Title: &title}, nil
	})
	if err != nil {
		return nil, err
	}
	m.publisher.PublishToUser(s.OwnerID, domain.EventSessionUpdated, s.Public())
	return s, nil
}

// ClearMessages empties the caller's session history. Status and title are kept.
func (m *Manager) ClearMessages(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	s, err := m.mutate(ctx, ownerID, sessionID, func(*domain.Session) (repository.SessionPatch, error) {
		return repository.SessionPatch{ClearMessages: true}, nil
	})
	if err != nil {
		return nil, err
	}
	m.publisher.PublishToUser(s.OwnerID, domain.EventSessionUpdated, s.Public())
	return s, nil
}

// SetStatus applies a lifecycle transition to the caller's session.
func (m *Manager) SetStatus(ctx context.Context, ownerID, sessionID string, action Action) (*domain.Session, error) {
	s, err := m.mutate(ctx, ownerID, sessionID, func(s *domain.Session) (repository.SessionPatch, error) {
		next, err := Transition(s.Status, action)
		if err != nil {
			return repository.SessionPatch{}, err
		}
		return repository.SessionPatch{Status: &next}, nil
	})
	if err != nil {
		return nil, err
	}

	switch s.Status {
	case domain.SessionStatusArchived:
		m.publisher.PublishToUser(s.OwnerID, domain.EventSessionArchived, s.Public())
	case domain.SessionStatusDeleted:
		m.publisher.PublishToUser(s.OwnerID, domain.EventSessionDeleted, domain.SessionDeletedPayload{SessionID: s.SessionID})
	default:
		m.publisher.PublishToUser(s.OwnerID, domain.EventSessionUpdated, s.Public())
	}
	return s, nil
}

// Archive moves an active session to archived.
func (m *Manager) Archive(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	return m.SetStatus(ctx, ownerID, sessionID, ActionArchive)
}

// Restore moves an archived session back to active.
func (m *Manager) Restore(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	return m.SetStatus(ctx, ownerID, sessionID, ActionRestore)
}

// Delete soft-deletes a session. Deleted sessions are invisible to every read.
func (m *Manager) Delete(ctx context.Context, ownerID, sessionID string) error {
	_, err := m.SetStatus(ctx, ownerID, sessionID, ActionDelete)
	return err
}
