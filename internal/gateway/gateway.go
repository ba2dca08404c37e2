// Package gateway forwards completion requests to upstream webhooks and
// turns every upstream outcome into one canonical response.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDeadline bounds the wait for an upstream response.
	DefaultDeadline = 30 * time.Second

	maxUpstreamBody = 10 << 20
)

// Options configures a Gateway.
type Options struct {
	// Deadline is the internal wait bound. Its expiry yields an
	// accepted-pending response rather than an error.
	Deadline time.Duration
	// Timeout is the transport-level limit of the HTTP client. It should not
	// be shorter than Deadline.
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Call is one upstream invocation.
type Call struct {
	Kind      domain.CompletionKind
	Model     *domain.ModelConfig
	Messages  []domain.ChatMessage
	Prompt    string
	Params    domain.SamplingParams
	SessionID string
	OwnerID   string
}

// Gateway executes calls against upstream webhooks.
type Gateway struct {
	*Catalog
	httpClient *http.Client
	deadline   time.Duration
	now        func() time.Time
}

// New creates a Gateway resolving models from catalog.
func New(catalog *Catalog, opts Options) *Gateway {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Gateway{
		Catalog:    catalog,
		httpClient: client,
		deadline:   deadline,
		now:        time.Now,
	}
}

// Deadline returns the internal wait bound.
func (g *Gateway) Deadline() time.Duration {
	return g.deadline
}

// Execute performs exactly one upstream call and classifies its outcome.
func (g *Gateway) Execute(ctx context.Context, call Call) *Result {
	endpoint := call.Model.EndpointFor(call.Kind)
	if endpoint == "" {
		return failed(OutcomeUnreachable, apperr.ServiceUnavailable("endpoint_not_configured",
			"The model '"+call.Model.Slug+"' has no "+string(call.Kind)+" endpoint configured"))
	}

	prompt := call.Prompt
	if call.Kind == domain.CompletionKindCompletion && prompt == "" {
		prompt = promptFromMessages(call.Messages)
	}
	body, err := json.Marshal(domain.WebhookRequest{
		Model:          call.Model.Slug,
		Messages:       call.Messages,
		Prompt:         prompt,
		SamplingParams: call.Params,
		WebhookType:    call.Kind,
		SessionID:      call.SessionID,
		OwnerID:        call.OwnerID,
	})
	if err != nil {
		return failed(OutcomeInternal, apperr.Internal(err, "failed to encode upstream request"))
	}

	dctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(OutcomeInternal, apperr.Internal(err, "failed to build upstream request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := g.now()
	resp, err := g.httpClient.Do(req)
	var payload []byte
	if err == nil {
		payload, err = io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
		resp.Body.Close()
	}

	result := g.classify(ctx, dctx, call, resp, payload, err)
	log.Info().
		Str("component", "gateway").
		Str("model", call.Model.Slug).
		Str("kind", string(call.Kind)).
		Str("session_id", call.SessionID).
		Str("outcome", string(result.Outcome)).
		Int("status", result.Status).
		Dur("elapsed", g.now().Sub(started)).
		Msg("upstream call finished")
	return result
}
