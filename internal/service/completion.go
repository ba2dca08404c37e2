package service

import (
	"context"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/rs/zerolog/log"
)

// CompletionResult is the outcome of a completion request.
type CompletionResult struct {
	SessionID string
	Status    int
	Body      interface{}
	Pending   bool
}

// Complete runs one completion request end to end: validate, resolve or
// create the session, compose the context window, call upstream and append
// the reply. The pipeline ignores cancellation of ctx so that a client
// disconnect never leaves the session half-updated.
//
// The returned result carries the session ID even when err is set, once a
// session has been resolved.
func (s *Service) Complete(ctx context.Context, ownerID string, kind domain.CompletionKind, req *domain.CompletionRequest) (*CompletionResult, error) {
	if ownerID == "" {
		return nil, apperr.Unauthorized("auth_required", "Authentication required")
	}
	if req.Stream {
		return nil, apperr.Validation("stream_unsupported", "streaming responses are not supported").WithParam("stream")
	}

	var (
		incoming []domain.ChatMessage
		prompt   string
		err      error
	)
	if kind == domain.CompletionKindCompletion {
		prompt, incoming, err = gateway.ParsePrompt(req.Prompt)
	} else {
		incoming, err = gateway.ParseMessages(req.Messages)
	}
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	var model *domain.ModelConfig
	if req.Model != "" {
		if model, err = s.gateway.Resolve(ctx, req.Model); err != nil {
			return nil, err
		}
	}

	sess, created, err := s.sessions.ResolveOrCreate(ctx, req.SessionID, ownerID, req.Model)
	if err != nil {
		return nil, err
	}
	result := &CompletionResult{SessionID: sess.SessionID}

	if model == nil {
		if model, err = s.gateway.Resolve(ctx, sess.ModelID); err != nil {
			return result, err
		}
	}

	composed, err := s.sessions.ComposeContext(ctx, sess, incoming)
	if err != nil {
		return result, err
	}

	res := s.gateway.Execute(ctx, gateway.Call{
		Kind:      kind,
		Model:     model,
		Messages:  composed,
		Prompt:    prompt,
		Params:    req.SamplingParams,
		SessionID: sess.SessionID,
		OwnerID:   ownerID,
	})
	if err := res.Failure(); err != nil {
		log.Warn().Err(err).Str("component", "service").Str("session_id", sess.SessionID).
			Str("outcome", string(res.Outcome)).Msg("completion failed")
		return result, err
	}

	result.Status = res.Status
	result.Body = res.Body()
	result.Pending = res.Pending()

	// The synthetic reply of an accepted-pending call is not part of the
	// conversation; the real reply arrives through the internal reply route.
	if res.Pending() {
		return result, nil
	}
	if content := res.Content(); content != "" {
		if _, err := s.sessions.AppendAssistantReply(ctx, sess, domain.RoleAssistant, content); err != nil {
			return result, err
		}
	}

	log.Debug().Str("component", "service").Str("session_id", sess.SessionID).
		Bool("created", created).Int("context_messages", len(composed)).Msg("completion finished")
	return result, nil
}

// ListModels returns the active models.
func (s *Service) ListModels(ctx context.Context) (*domain.ModelsResponse, error) {
	return s.gateway.List(ctx)
}

// GetModel returns one active model.
func (s *Service) GetModel(ctx context.Context, slug string) (*domain.Model, error) {
	return s.gateway.Get(ctx, slug)
}
