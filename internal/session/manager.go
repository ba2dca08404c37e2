// Package session implements the session lifecycle: creation, ownership
// checks, status transitions, context composition and message appends.
//
// The Manager is the only writer of sessions and messages. Every mutation of
// one session runs under that session's lock, so concurrent completion
// requests against the same session never interleave their
// read-compose-append steps.
package session

import (
	"context"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/repository"
	"github.com/google/uuid"
)

// DefaultContextWindow is the number of stored messages sent upstream with a new batch.
const DefaultContextWindow = 10

// ModelResolver resolves a model slug to its active configuration.
type ModelResolver interface {
	Resolve(ctx context.Context, slug string) (*domain.ModelConfig, error)
}

// Publisher receives lifecycle events after successful state changes.
type Publisher interface {
	PublishToUser(ownerID string, event domain.EventName, payload interface{})
	PublishToSession(sessionID string, event domain.EventName, payload interface{})
}

// Options tunes the Manager.
type Options struct {
	ContextWindow int
}

// Manager owns session state.
type Manager struct {
	store     repository.Store
	policy    *policy.Engine
	models    ModelResolver
	publisher Publisher
	window    int
	locks     *keyedMutex
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(store repository.Store, engine *policy.Engine, models ModelResolver, publisher Publisher, opts Options) *Manager {
	window := opts.ContextWindow
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &Manager{
		store:     store,
		policy:    engine,
		models:    models,
		publisher: publisher,
		window:    window,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// ContextWindow returns the configured window size.
func (m *Manager) ContextWindow() int {
	return m.window
}

func newSessionID() string {
	return "sess_" + uuid.New().String()
}

func newMessageID() string {
	return "msg_" + uuid.New().String()
}

// load fetches a session regardless of owner. Missing and deleted sessions
// are not found.
func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, apperr.Validation("", "sessionId is required").WithParam("sessionId")
	}
	s, err := m.store.FindOneSession(ctx, repository.SessionFilter{SessionID: sessionID})
	if err != nil {
		return nil, apperr.Internal(err, "failed to load session")
	}
	if s == nil || s.Status == domain.SessionStatusDeleted {
		return nil, apperr.NotFound("session_not_found", "Session not found")
	}
	return s, nil
}

// authorize evaluates the access policy for callerID on s.
func (m *Manager) authorize(ctx context.Context, s *domain.Session, callerID string, action policy.Action) error {
	decision, err := m.policy.Evaluate(ctx, policy.Input{
		Action:   action,
		CallerID: callerID,
		Session:  policy.SessionInput{OwnerID: s.OwnerID, Status: string(s.Status)},
	})
	if err != nil {
		return apperr.Internal(err, "failed to evaluate session policy")
	}

	switch decision {
	case policy.DecisionAllow:
		return nil
	case policy.DecisionNotFound:
		return apperr.NotFound("session_not_found", "Session not found")
	default:
		return apperr.Forbidden("session_access_denied", "You do not have access to this session")
	}
}

// loadOwned loads a session and checks callerID may perform action on it.
func (m *Manager) loadOwned(ctx context.Context, callerID, sessionID string, action policy.Action) (*domain.Session, error) {
	s, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, s, callerID, action); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a session with its messages.
func (m *Manager) Get(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	return m.loadOwned(ctx, ownerID, sessionID, policy.ActionRead)
}

// Authorize checks ownerID may perform action on sessionID.
func (m *Manager) Authorize(ctx context.Context, ownerID, sessionID string, action policy.Action) (*domain.Session, error) {
	return m.loadOwned(ctx, ownerID, sessionID, action)
}

// Lookup returns a live session without an ownership check. It serves
// trusted internal callers only.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.load(ctx, sessionID)
}

// ResolveOrCreate loads the caller's session, or creates one for modelSlug
// when sessionID is empty. created reports whether a session was created.
func (m *Manager) ResolveOrCreate(ctx context.Context, sessionID, ownerID, modelSlug string) (s *domain.Session, created bool, err error) {
	if sessionID != "" {
		s, err = m.loadOwned(ctx, ownerID, sessionID, policy.ActionCompose)
		return s, false, err
	}
	if modelSlug == "" {
		return nil, false, apperr.Validation("model_required", "model is required when no sessionId is given").WithParam("model")
	}
	s, err = m.Create(ctx, ownerID, modelSlug, "")
	return s, err == nil, err
}

// Create creates an active session for ownerID on modelSlug. An empty title
// uses the default title.
func (m *Manager) Create(ctx context.Context, ownerID, modelSlug, title string) (*domain.Session, error) {
	if ownerID == "" {
		return nil, apperr.Unauthorized("auth_required", "Authentication required")
	}
	title, err := normalizeTitle(title, true)
	if err != nil {
		return nil, err
	}
	if _, err := m.models.Resolve(ctx, modelSlug); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &domain.Session{
		SessionID:     newSessionID(),
		OwnerID:       ownerID,
		ModelID:       modelSlug,
		Title:         title,
		Messages:      []domain.Message{},
		Status:        domain.SessionStatusActive,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.InsertSession(ctx, s); err != nil {
		return nil, apperr.Internal(err, "failed to create session")
	}

	m.publisher.PublishToUser(ownerID, domain.EventSessionCreated, s.Public())
	return s, nil
}
