// Package store defines the run journal and its SQLite implementation.
package store

import (
	"context"

	"github.com/xiaot623/agentflow/internal/domain"
)

// Store is the append-only journal of runs and their transitions. It is
// used for inspection and replay; live run state never comes from it.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunCompleted(ctx context.Context, runID string, status domain.ControllerState, errData []byte) error
	ListRuns(ctx context.Context, runKey string, limit int) ([]domain.Run, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
