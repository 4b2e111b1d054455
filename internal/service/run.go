package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/policy"
)

// RunAgent starts the mounted run of runKey, or re-runs a finished one.
func (s *Service) RunAgent(ctx context.Context, runKey string) (feed.View, error) {
	sess, err := s.Session(runKey)
	if err != nil {
		return feed.View{}, err
	}
	if err := s.checkPolicy(ctx, sess); err != nil {
		return viewOf(sess.ctrl), err
	}

	if !sess.ctrl.RunAgent() {
		return viewOf(sess.ctrl), fmt.Errorf("%w: run from %s", domain.ErrInvalidTransition, sess.ctrl.State())
	}
	return viewOf(sess.ctrl), nil
}

// CancelAgent freezes the running run of runKey.
func (s *Service) CancelAgent(ctx context.Context, runKey string) (feed.View, error) {
	sess, err := s.Session(runKey)
	if err != nil {
		return feed.View{}, err
	}
	if !sess.ctrl.CancelAgent() {
		return viewOf(sess.ctrl), fmt.Errorf("%w: cancel from %s", domain.ErrInvalidTransition, sess.ctrl.State())
	}
	s.logger.Info("run cancelled", "run_key", runKey, "run_id", sess.ctrl.RunID())
	return viewOf(sess.ctrl), nil
}

// ResetAgent discards the run of runKey and mounts a fresh idle one.
func (s *Service) ResetAgent(ctx context.Context, runKey string) (feed.View, error) {
	sess, err := s.Session(runKey)
	if err != nil {
		return feed.View{}, err
	}
	if !sess.ctrl.ResetAgent() {
		return viewOf(sess.ctrl), fmt.Errorf("%w: reset from %s", domain.ErrInvalidTransition, sess.ctrl.State())
	}
	v := viewOf(sess.ctrl)
	s.push(runKey, v)
	return v, nil
}

func (s *Service) checkPolicy(ctx context.Context, sess *Session) error {
	if s.policyEngine == nil {
		return nil
	}
	sc := sess.ctrl.Scenario()
	decision, reason, err := s.policyEngine.Evaluate(ctx, policy.Input{
		RunKey:            sess.RunKey,
		Mode:              string(sc.Mode),
		BackendConfigured: s.config.StreamBackendURL != "",
		ActiveRuns:        s.activeRuns(),
		MaxActiveRuns:     s.config.MaxActiveRuns,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if decision == policy.DecisionBlock {
		if s.metrics != nil {
			s.metrics.RunsBlocked.WithLabelValues(sess.RunKey).Inc()
		}
		s.logger.Warn("run blocked by policy", "run_key", sess.RunKey, "reason", reason)
		return fmt.Errorf("%w: %s", domain.ErrRunBlocked, reason)
	}
	return nil
}
