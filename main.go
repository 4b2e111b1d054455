package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/config"
	"github.com/xiaot623/agentflow/internal/hub"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/logging"
	"github.com/xiaot623/agentflow/internal/metrics"
	"github.com/xiaot623/agentflow/internal/policy"
	store "github.com/xiaot623/agentflow/internal/repository"
	"github.com/xiaot623/agentflow/internal/service"
	"github.com/xiaot623/agentflow/internal/stream"
	handler "github.com/xiaot623/agentflow/internal/transport/http"
	"github.com/xiaot623/agentflow/internal/transport/ws"
)

// mockChunkDelay paces the mock backend so the stream is visible.
const mockChunkDelay = 60 * time.Millisecond

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting agentflow",
		"port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"time_scale", cfg.TimeScale,
		"stream_backend", cfg.StreamBackendURL,
		"mock", cfg.MockEnabled(),
	)

	// Load scenario catalog
	cat, err := catalog.Load(cfg.ScenarioFile)
	if err != nil {
		logger.Error("failed to load scenario catalog", "file", cfg.ScenarioFile, "error", err)
		os.Exit(1)
	}

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize policy engine
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Initialize hub
	h := hub.NewHub(logger, func(n int) { m.ClientsActive.Set(float64(n)) })
	go h.Run(ctx)

	// Initialize service
	svc := service.New(service.Options{
		Catalog: cat,
		Factory: lifecycle.NewFactory(lifecycle.FactoryConfig{
			TimeScale:  cfg.TimeScale,
			BackendURL: cfg.StreamBackendURL,
			Marker:     cfg.StreamMarker,
			Tolerance:  cfg.ProtocolTolerance,
			Logger:     logger,
		}),
		Store:   db,
		Policy:  policyEngine,
		Hub:     h,
		Metrics: m,
		Config:  cfg,
		Logger:  logger,
	})

	opts := handler.Options{
		Service: svc,
		Metrics: m,
		WS:      ws.NewServer(ws.DefaultConfig(), h, svc, logger),
		Logger:  logger,
	}
	if cfg.MockEnabled() {
		mock := stream.NewMockBackend(mockChunkDelay)
		mock.Marker = cfg.StreamMarker
		opts.Mock = mock
	}
	server := handler.NewServer(opts)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api started", "port", cfg.HTTPPort, "scenarios", cat.Keys())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agentflow")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}
	svc.Close()
	stop()

	logger.Info("agentflow stopped")
}
