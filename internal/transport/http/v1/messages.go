package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// postMessageRequest is the body of a message intake call.
type postMessageRequest struct {
	Text string `json:"text"`
}

// PostMessage handles one user message in a conversation.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) PostMessage(c echo.Context) error {
	conversationID := c.Param("conversation_id")

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	result, err := h.service.HandleMessage(c.Request().Context(), conversationID, req.Text)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// GetTurns retrieves the turn history of a conversation.
// GET /v1/conversations/:conversation_id/turns
func (h *Handler) GetTurns(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	turns, err := h.service.GetTurns(c.Request().Context(), conversationID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"turns": turns,
	})
}
