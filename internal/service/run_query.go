package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/lifecycle"
)

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if s.store == nil {
		return nil, nil
	}
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	if s.store == nil {
		return nil, nil
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, runKey string, limit int) ([]domain.Run, error) {
	if _, err := s.catalog.Get(runKey); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRuns(ctx, runKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Watch signals on the returned channel after every transition of runKey.
// Signals coalesce; readers re-read the view. stop removes the subscription.
func (s *Service) Watch(runKey string) (<-chan struct{}, func(), error) {
	sess, err := s.Session(runKey)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan struct{}, 1)
	stop := sess.ctrl.Subscribe(func(lifecycle.Event) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch, stop, nil
}
