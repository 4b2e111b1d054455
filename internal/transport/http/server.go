// Package http provides the HTTP server of agentflow.
package http

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/agentflow/internal/metrics"
	"github.com/xiaot623/agentflow/internal/service"
	"github.com/xiaot623/agentflow/internal/stream"
	v1 "github.com/xiaot623/agentflow/internal/transport/http/v1"
)

// WebSocketHandler serves the /ws upgrade.
type WebSocketHandler interface {
	HandleWebSocket(c echo.Context) error
}

// Options configures NewServer. Metrics, WS and Mock may be nil.
type Options struct {
	Service *service.Service
	Metrics *metrics.Metrics
	WS      WebSocketHandler
	Mock    *stream.MockBackend
	Logger  *slog.Logger
}

// NewServer creates and configures the HTTP server.
func NewServer(opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(requestLogger(opts.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(opts.Service, opts.Logger)
	v1Handler.RegisterRoutes(e)

	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}
	if opts.WS != nil {
		e.GET("/ws", opts.WS.HandleWebSocket)
	}
	if opts.Mock != nil {
		opts.Mock.Register(e, MockStreamPath)
	}

	return e
}

// MockStreamPath is where the mock streaming backend is served.
const MockStreamPath = "/mock/invoice/stream"

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= 500 {
				level = slog.LevelError
			}
			logger.LogAttrs(context.Background(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}
