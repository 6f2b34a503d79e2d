package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/procureflow/agent/internal/domain"
)

// GetRun retrieves a run by id.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	runID := c.Param("run_id")

	run, err := h.service.GetRun(c.Request().Context(), runID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// ListRuns retrieves the runs spawned by a conversation.
// GET /v1/conversations/:conversation_id/runs
func (h *Handler) ListRuns(c echo.Context) error {
	conversationID := c.Param("conversation_id")

	runs, err := h.service.ListRuns(c.Request().Context(), conversationID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// CancelRun requests cancellation of a running run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")

	if err := h.service.CancelRun(c.Request().Context(), runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// GetRunEvents retrieves a run's execution log.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	sinceSeq := int64(0)
	if s := c.QueryParam("since_seq"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			sinceSeq = val
		}
	}

	events, err := h.service.ListStepEvents(c.Request().Context(), runID, sinceSeq)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events": events,
	})
}
