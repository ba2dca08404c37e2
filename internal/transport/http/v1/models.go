package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListModels lists the active models.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.service.ListModels(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models)
}

// GetModel returns a single active model.
// GET /v1/models/:model
func (h *Handler) GetModel(c echo.Context) error {
	model, err := h.service.GetModel(c.Request().Context(), c.Param("model"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model)
}
