package service

import (
	"fmt"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/lifecycle"
)

// Session is the controller bound to one run key.
type Session struct {
	RunKey      string
	ctrl        *lifecycle.Controller
	unsubscribe func()
}

// Controller returns the lifecycle controller of the session.
func (sess *Session) Controller() *lifecycle.Controller { return sess.ctrl }

// Scenarios lists the catalog.
func (s *Service) Scenarios() []*domain.Scenario {
	return s.catalog.List()
}

// Session returns the session of runKey, mounting a fresh idle run the first
// time the key is seen.
func (s *Service) Session(runKey string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[runKey]; ok {
		return sess, nil
	}

	sc, err := s.catalog.Get(runKey)
	if err != nil {
		return nil, err
	}
	ctrl := lifecycle.New(lifecycle.Options{
		Factory: s.factory,
		OnWorkflowComplete: func(runID, summary string) {
			s.onWorkflowComplete(runKey, runID, summary)
		},
		OnRunEnd: func(runID string, state domain.ControllerState, err error) {
			s.onRunEnd(runKey, runID, state, err)
		},
		StallTimeout: s.config.StallTimeout,
		Logger:       s.logger.With("run_key", runKey),
	})
	sess := &Session{RunKey: runKey, ctrl: ctrl}
	sess.unsubscribe = ctrl.Subscribe(s.onTransition)
	if err := ctrl.Mount(sc); err != nil {
		sess.unsubscribe()
		return nil, fmt.Errorf("failed to mount %s: %w", runKey, err)
	}
	s.sessions[runKey] = sess
	return sess, nil
}

// View returns the current view of runKey.
func (s *Service) View(runKey string) (feed.View, error) {
	sess, err := s.Session(runKey)
	if err != nil {
		return feed.View{}, err
	}
	return viewOf(sess.ctrl), nil
}

func viewOf(ctrl *lifecycle.Controller) feed.View {
	snap, ok := ctrl.Snapshot()
	if !ok {
		return feed.View{State: string(ctrl.State())}
	}
	state := ctrl.State()
	if state == domain.ControllerRunning && snap.IsTerminal() {
		state = stateOf(snap)
	}
	v := feed.Build(snap)
	v.State = string(state)
	return v
}

// stateOf derives the controller state from a snapshot. Listeners cannot rely
// on Controller.State since it changes after the final transition.
func stateOf(st domain.RunState) domain.ControllerState {
	switch {
	case st.IsComplete:
		return domain.ControllerComplete
	case st.Failed:
		return domain.ControllerFailed
	case st.Cancelled:
		return domain.ControllerCancelled
	case st.HasStarted:
		return domain.ControllerRunning
	}
	return domain.ControllerIdle
}

func (s *Service) activeRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.ctrl.State() == domain.ControllerRunning {
			n++
		}
	}
	return n
}
