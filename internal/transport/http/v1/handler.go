// Package v1 provides the HTTP handlers of the v1 API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/scenarios", h.ListScenarios)

	// Session API
	e.GET("/v1/sessions/:run_key", h.GetSession)
	e.POST("/v1/sessions/:run_key/run", h.RunAgent)
	e.POST("/v1/sessions/:run_key/cancel", h.CancelAgent)
	e.POST("/v1/sessions/:run_key/reset", h.ResetAgent)
	e.GET("/v1/sessions/:run_key/events/stream", h.StreamSessionEvents)

	// Journal API
	e.GET("/v1/sessions/:run_key/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoScenario):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRunBlocked):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
