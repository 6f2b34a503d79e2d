package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/stream"
)

// StreamRunEvents streams a run's step events via SSE, terminated by a final
// run-status marker.
// GET /v1/runs/:run_id/events/stream
//
// Reconnecting clients pass their last seen sequence number via the
// Last-Event-ID header (set from the SSE id field) or the since_seq query
// parameter; events after it are replayed from the store before live
// delivery resumes.
func (h *Handler) StreamRunEvents(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	lastSeen := int64(0)
	if s := c.QueryParam("since_seq"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			lastSeen = val
		}
	}
	if s := c.Request().Header.Get("Last-Event-ID"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			lastSeen = val
		}
	}

	items, err := h.broadcaster.Subscribe(ctx, runID, lastSeen)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flush(c)

	for item := range items {
		if err := writeSSE(c, item); err != nil {
			return nil
		}
	}
	return nil
}

func writeSSE(c echo.Context, item stream.Item) error {
	w := c.Response().Writer

	if item.Event != nil {
		data, err := json.Marshal(item.Event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: step\ndata: %s\n\n", item.Event.Seq, data); err != nil {
			return err
		}
	} else if item.Status != nil {
		data, err := json.Marshal(map[string]any{"status": *item.Status})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
			return err
		}
	}

	flush(c)
	return nil
}

func flush(c echo.Context) {
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}
