package internalapi

import (
	"net/http"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/labstack/echo/v4"
)

// SubmitReply appends the reply of a workflow that outlived the completion
// deadline and pushes it to the session's viewers.
// POST /internal/sessions/:session_id/reply
func (h *Handler) SubmitReply(c echo.Context) error {
	var req domain.ReplyRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	msg, err := h.service.ReceiveReply(c.Request().Context(), c.Param("session_id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}
