package v1

import (
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/labstack/echo/v4"
)

// ChatCompletions runs a chat completion against the session's model.
// POST /v1/chat/completions
//
// A 202 response means the upstream workflow is still running; the reply
// will be delivered to the session's live viewers as message:new.
func (h *Handler) ChatCompletions(c echo.Context) error {
	return h.complete(c, domain.CompletionKindChat)
}

// Completions runs a text completion.
// POST /v1/completions
func (h *Handler) Completions(c echo.Context) error {
	return h.complete(c, domain.CompletionKindCompletion)
}

func (h *Handler) complete(c echo.Context, kind domain.CompletionKind) error {
	var req domain.CompletionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.Complete(c.Request().Context(), httpx.UserID(c), kind, &req)
	if res != nil && res.SessionID != "" {
		c.Response().Header().Set(HeaderSessionID, res.SessionID)
	}
	if err != nil {
		return err
	}
	return c.JSON(res.Status, res.Body)
}
