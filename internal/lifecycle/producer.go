package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/engine"
	"github.com/xiaot623/agentflow/internal/stream"
)

// Producer owns the run state of one run and the loop that drives it.
// Simulations and stream sessions both satisfy it.
type Producer interface {
	Run(ctx context.Context) error
	Cancel() bool
	Fail(reason string) bool
	Snapshot() domain.RunState
	StageRefs() []*domain.Stage
}

// Factory builds the producer of a fresh run.
type Factory func(runID string, sc *domain.Scenario, hooks engine.Hooks) (Producer, error)

// FactoryConfig configures NewFactory.
type FactoryConfig struct {
	Clock      engine.Clock
	TimeScale  float64
	BackendURL string
	Marker     string
	Tolerance  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewFactory returns the factory used in production: simulated scenarios run
// on the clock, stream scenarios read the configured backend. A stream run
// without a backend still mounts and fails when started.
func NewFactory(cfg FactoryConfig) Factory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(runID string, sc *domain.Scenario, hooks engine.Hooks) (Producer, error) {
		switch sc.Mode {
		case domain.ModeSimulated, "":
			return engine.NewSimulation(engine.New(runID, sc, hooks), cfg.Clock, cfg.TimeScale), nil
		case domain.ModeStream:
			logger := cfg.Logger.With("run_id", runID)
			r := stream.NewReducer(runID, sc, hooks, stream.Options{Tolerance: cfg.Tolerance, Logger: logger})
			src := stream.NewHTTPSource(cfg.BackendURL, stream.InvokeRequest{RunID: runID, RunKey: sc.RunKey})
			if cfg.HTTPClient != nil {
				src.WithClient(cfg.HTTPClient)
			}
			return stream.NewSession(r, src, cfg.Marker, logger), nil
		}
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidScenario, sc.Mode)
	}
}
