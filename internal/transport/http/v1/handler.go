// Package v1 provides the public OpenAI-compatible API.
package v1

import (
	"net/http"

	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/labstack/echo/v4"
)

// HeaderSessionID carries the session a completion was appended to.
const HeaderSessionID = "X-Session-Id"

// Handler handles HTTP requests.
type Handler struct {
	service     *service.Service
	requireAuth echo.MiddlewareFunc
}

// NewHandler creates a new handler. requireAuth guards every /v1 route.
func NewHandler(service *service.Service, requireAuth echo.MiddlewareFunc) *Handler {
	return &Handler{
		service:     service,
		requireAuth: requireAuth,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/v1", h.requireAuth)

	// Completions
	api.POST("/chat/completions", h.ChatCompletions)
	api.POST("/completions", h.Completions)

	// Models
	api.GET("/models", h.ListModels)
	api.GET("/models/:model", h.GetModel)

	// Sessions
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:session_id", h.GetSession)
	api.PUT("/sessions/:session_id", h.UpdateSession)
	api.DELETE("/sessions/:session_id/messages", h.ClearSessionMessages)
	api.DELETE("/sessions/:session_id", h.DeleteSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
