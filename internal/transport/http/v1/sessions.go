package v1

import (
	"net/http"
	"strconv"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gensart-projs/openai-like-api/internal/session"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/labstack/echo/v4"
)

// CreateSessionRequest is the request to create an empty session.
type CreateSessionRequest struct {
	Model string `json:"model"`
	Title string `json:"title,omitempty"`
}

// Pagination describes the page returned by ListSessions.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// SessionListResponse is the body of GET /v1/sessions.
type SessionListResponse struct {
	Sessions   []domain.PublicSession `json:"sessions"`
	Pagination Pagination             `json:"pagination"`
}

// ListSessions lists the caller's sessions, most recently active first.
// GET /v1/sessions?status=&page=&limit=
func (h *Handler) ListSessions(c echo.Context) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}

	result, err := h.service.ListSessions(c.Request().Context(), httpx.UserID(c), session.ListQuery{
		Status: domain.SessionStatus(c.QueryParam("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	sessions := make([]domain.PublicSession, len(result.Sessions))
	for i := range result.Sessions {
		sessions[i] = result.Sessions[i].Public()
	}
	return c.JSON(http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Pagination: Pagination{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages,
		},
	})
}

// CreateSession creates an empty session bound to a model.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	s, err := h.service.CreateSession(c.Request().Context(), httpx.UserID(c), req.Model, req.Title)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.Detail())
}

// GetSession returns a session with its full history.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.service.GetSession(c.Request().Context(), httpx.UserID(c), c.Param("session_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Detail())
}

// UpdateSession renames, archives or restores a session.
// PUT /v1/sessions/:session_id
func (h *Handler) UpdateSession(c echo.Context) error {
	var req service.UpdateSessionInput
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	s, err := h.service.UpdateSession(c.Request().Context(), httpx.UserID(c), c.Param("session_id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Public())
}

// ClearSessionMessages empties a session's history.
// DELETE /v1/sessions/:session_id/messages
func (h *Handler) ClearSessionMessages(c echo.Context) error {
	if err := h.service.ClearSessionMessages(c.Request().Context(), httpx.UserID(c), c.Param("session_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSession soft-deletes a session.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), httpx.UserID(c), c.Param("session_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("invalid_query", name+" must be a non-negative integer").WithParam(name)
	}
	return n, nil
}
