package internalapi

import (
	"net/http"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/labstack/echo/v4"
)

// SendRequest represents the request body for POST /internal/send.
type SendRequest struct {
	Topic string           `json:"topic"`
	Event domain.EventName `json:"event"`
	Data  interface{}      `json:"data"`
}

// SendResponse represents the response for POST /internal/send.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered int  `json:"delivered"`
}

// Send publishes an event to a user or session topic.
// POST /internal/send
func (h *Handler) Send(c echo.Context) error {
	var req SendRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if req.Topic == "" {
		return apperr.Validation("", "topic is required").WithParam("topic")
	}

	delivered, err := h.service.Publish(req.Topic, req.Event, req.Data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SendResponse{OK: true, Delivered: delivered})
}
