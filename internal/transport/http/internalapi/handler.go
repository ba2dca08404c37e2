// Package internalapi provides HTTP handlers for the internal API.
// These APIs are only reachable by upstream workflows and trusted services.
package internalapi

import (
	"net/http"

	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/labstack/echo/v4"
)

// Handler handles internal HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new internal API handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	// Out-of-band completion replies
	e.POST("/internal/sessions/:session_id/reply", h.SubmitReply)

	// Event fan-out
	e.POST("/internal/send", h.Send)
}

// Health reports live connection counts.
func (h *Handler) Health(c echo.Context) error {
	stats := h.service.Stats()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": stats.Connections,
		"topics":      stats.Topics,
	})
}
