package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListIntents returns the intent catalog.
// GET /v1/intents
func (h *Handler) ListIntents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"intents": h.service.Registry().List(),
	})
}
