package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/pkg/errors"
)

// Outcome classifies an upstream call.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeUpstreamError    Outcome = "upstream_error"
	OutcomeUnreachable      Outcome = "unreachable"
	OutcomeDeadlineExceeded Outcome = "deadline_exceeded"
	OutcomeTransportTimeout Outcome = "transport_timeout"
	OutcomeInternal         Outcome = "internal"
)

// PendingContent is the synthetic assistant content of an accepted-pending response.
const PendingContent = "Your request has been accepted and is still being processed. " +
	"The reply will be added to the session when it is ready."

const maxDetailBody = 2048

// Result is the classified outcome of one call. Exactly one of Completions
// or Err is set.
type Result struct {
	Outcome     Outcome
	Status      int
	Completions []domain.Completion
	// Array reports that upstream answered with an array.
	Array bool
	Err   *apperr.Error
}

func failed(outcome Outcome, err *apperr.Error) *Result {
	return &Result{Outcome: outcome, Status: err.Status, Err: err}
}

// Failure returns the error of the call, nil for success and accepted-pending.
func (r *Result) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Pending reports an accepted-pending result.
func (r *Result) Pending() bool {
	return r.Outcome == OutcomeDeadlineExceeded
}

// Body is the response body: one envelope, or an array when upstream sent one.
func (r *Result) Body() interface{} {
	if r.Array {
		return r.Completions
	}
	if len(r.Completions) == 0 {
		return nil
	}
	return r.Completions[0]
}

// Content joins the textual content of every completion.
func (r *Result) Content() string {
	parts := make([]string, 0, len(r.Completions))
	for _, c := range r.Completions {
		for _, choice := range c.Choices {
			if text := choice.Content(); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// classify maps the raw outcome of a call to exactly one Outcome. ctx is the
// caller context and dctx the deadline-bound one derived from it.
func (g *Gateway) classify(ctx, dctx context.Context, call Call, resp *http.Response, payload []byte, err error) *Result {
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return failed(OutcomeInternal, apperr.Internal(err, "upstream call was cancelled"))
		case errors.Is(dctx.Err(), context.DeadlineExceeded):
			return &Result{
				Outcome:     OutcomeDeadlineExceeded,
				Status:      http.StatusAccepted,
				Completions: []domain.Completion{g.envelope(call, PendingContent, nil)},
			}
		case isTimeout(err):
			return failed(OutcomeTransportTimeout, apperr.GatewayTimeout("upstream_timeout",
				"The upstream service did not respond in time"))
		case isUnreachable(err):
			return failed(OutcomeUnreachable, apperr.ServiceUnavailable("upstream_unreachable",
				"The upstream service is unavailable").WithCause(err))
		default:
			return failed(OutcomeUpstreamError, apperr.BadGateway("upstream_error",
				"The upstream service failed").WithCause(err))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(OutcomeUpstreamError, apperr.BadGateway("upstream_error",
			"The upstream service returned an error").
			WithDetails(map[string]interface{}{
				"status": resp.StatusCode,
				"body":   detailBody(payload),
			}))
	}

	completions, array := g.normalize(call, payload)
	return &Result{
		Outcome:     OutcomeSuccess,
		Status:      http.StatusOK,
		Completions: completions,
		Array:       array,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// detailBody exposes the upstream body as JSON when it is JSON, else as a
// truncated string.
func detailBody(payload []byte) interface{} {
	var v interface{}
	if len(payload) <= maxDetailBody && json.Unmarshal(payload, &v) == nil {
		return v
	}
	s := string(payload)
	if len(s) > maxDetailBody {
		s = s[:maxDetailBody]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	return s
}
