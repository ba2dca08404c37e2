package service

import (
	"context"
	"strings"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/session"
)

// UpdateSessionInput is a partial session update. Nil fields are unchanged.
type UpdateSessionInput struct {
	Title  *string               `json:"title"`
	Status *domain.SessionStatus `json:"status"`
}

func (s *Service) ListSessions(ctx context.Context, ownerID string, q session.ListQuery) (*session.Page, error) {
	return s.sessions.List(ctx, ownerID, q)
}

func (s *Service) GetSession(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, ownerID, sessionID)
}

func (s *Service) CreateSession(ctx context.Context, ownerID, modelSlug, title string) (*domain.Session, error) {
	if modelSlug == "" {
		return nil, apperr.Validation("model_required", "model is required").WithParam("model")
	}
	return s.sessions.Create(ctx, ownerID, modelSlug, title)
}

// UpdateSession applies a title change and/or a status change. Requesting
// the current status is a no-op; deletion has its own operation.
func (s *Service) UpdateSession(ctx context.Context, ownerID, sessionID string, in UpdateSessionInput) (*domain.Session, error) {
	if in.Title == nil && in.Status == nil {
		return nil, apperr.Validation("", "title or status is required")
	}
	if in.Status != nil && *in.Status != domain.SessionStatusActive && *in.Status != domain.SessionStatusArchived {
		return nil, apperr.Validation("invalid_status", "status must be active or archived").WithParam("status")
	}

	current, err := s.sessions.Get(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		if current, err = s.sessions.SetTitle(ctx, ownerID, sessionID, *in.Title); err != nil {
			return nil, err
		}
	}
	if in.Status != nil && *in.Status != current.Status {
		action, _ := session.ActionFor(*in.Status)
		if current, err = s.sessions.SetStatus(ctx, ownerID, sessionID, action); err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (s *Service) ClearSessionMessages(ctx context.Context, ownerID, sessionID string) error {
	_, err := s.sessions.ClearMessages(ctx, ownerID, sessionID)
	return err
}

func (s *Service) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	return s.sessions.Delete(ctx, ownerID, sessionID)
}

// AuthorizeJoin checks ownerID may follow sessionID in real time.
func (s *Service) AuthorizeJoin(ctx context.Context, ownerID, sessionID string) error {
	_, err := s.sessions.Authorize(ctx, ownerID, sessionID, policy.ActionJoin)
	return err
}

// ReceiveReply appends a reply delivered out-of-band by an upstream workflow
// that outlived the gateway deadline.
func (s *Service) ReceiveReply(ctx context.Context, sessionID string, req domain.ReplyRequest) (*domain.Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.Validation("", "content is required").WithParam("content")
	}
	ctx = context.WithoutCancel(ctx)

	sess, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessions.AppendAssistantReply(ctx, sess, req.Role, req.Content)
}
