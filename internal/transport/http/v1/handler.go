// Package v1 provides the v1 HTTP handlers for the agent.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/procureflow/agent/internal/service"
	"github.com/procureflow/agent/internal/stream"
)

// Handler handles HTTP requests.
type Handler struct {
	service     *service.Service
	broadcaster *stream.Broadcaster
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, broadcaster *stream.Broadcaster) *Handler {
	return &Handler{
		service:     svc,
		broadcaster: broadcaster,
	}
}

// RegisterRoutes registers the v1 routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversations
	e.POST("/v1/conversations/:conversation_id/messages", h.PostMessage)
	e.GET("/v1/conversations/:conversation_id/turns", h.GetTurns)
	e.GET("/v1/conversations/:conversation_id/runs", h.ListRuns)

	// Runs
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.GET("/v1/runs/:run_id/events/stream", h.StreamRunEvents)

	// Intent catalog
	e.GET("/v1/intents", h.ListIntents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
