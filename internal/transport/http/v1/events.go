package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
)

// maxStreamDuration bounds one SSE connection.
const maxStreamDuration = 5 * time.Minute

// StreamSessionEvents streams the view of a run key via SSE after every
// transition, until the run reaches a terminal state.
// GET /v1/sessions/:run_key/events/stream
func (h *Handler) StreamSessionEvents(c echo.Context) error {
	ctx := c.Request().Context()
	runKey := c.Param("run_key")

	signal, stop, err := h.service.Watch(runKey)
	if err != nil {
		return c.JSON(statusOf(err), map[string]string{"error": err.Error()})
	}
	defer stop()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	send := func() (bool, error) {
		v, err := h.service.View(runKey)
		if err != nil {
			return false, err
		}
		if err := sendSSEEvent(c, "state", v); err != nil {
			return false, err
		}
		return isTerminal(v), nil
	}

	if done, err := send(); err != nil || done {
		return err
	}

	deadline := time.NewTimer(maxStreamDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return nil

		case <-deadline.C:
			h.logger.Info("event stream exceeded max duration", "run_key", runKey)
			return nil

		case <-signal:
			done, err := send()
			if err != nil {
				h.logger.Error("failed to send SSE event", "run_key", runKey, "error", err)
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func isTerminal(v feed.View) bool {
	switch domain.ControllerState(v.State) {
	case domain.ControllerComplete, domain.ControllerCancelled, domain.ControllerFailed:
		return true
	}
	return false
}

// sendSSEEvent sends a single event in SSE format.
func sendSSEEvent(c echo.Context, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// GetRunEvents retrieves journal events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	ctx := c.Request().Context()

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	events, err := h.service.GetRunEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":    run,
		"events": events,
	})
}

// ListRuns lists the journaled runs of a run key, newest first.
// GET /v1/sessions/:run_key/runs
func (h *Handler) ListRuns(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	runs, err := h.service.ListRuns(c.Request().Context(), c.Param("run_key"), limit)
	if err != nil {
		return c.JSON(statusOf(err), map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}
