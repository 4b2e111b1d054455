package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/protocol"
)

const journalTimeout = 5 * time.Second

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	if s.store == nil {
		return nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

func (s *Service) journalError(op, runID string, err error) {
	if s.metrics != nil {
		s.metrics.JournalErrors.Inc()
	}
	s.logger.Error("journal write failed", "op", op, "run_id", runID, "error", err)
}

// onTransition runs on the producer goroutine for every transition.
func (s *Service) onTransition(ev lifecycle.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if ev.Transition.Type == domain.EventTypeRunStarted && s.store != nil {
		run := &domain.Run{
			RunID:     ev.RunID,
			RunKey:    ev.RunKey,
			Mode:      ev.State.Mode,
			Status:    domain.ControllerRunning,
			StartedAt: time.Now(),
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			s.journalError("create_run", ev.RunID, err)
		}
	}
	if ev.Transition.Type == domain.EventTypeRunStarted {
		s.started.Store(ev.RunID, time.Now())
		if s.metrics != nil {
			s.metrics.RunsStarted.WithLabelValues(ev.RunKey, string(ev.State.Mode)).Inc()
			s.metrics.RunsActive.Inc()
		}
	}
	if err := s.recordEvent(ctx, ev.RunID, ev.Transition.Type, ev.Transition); err != nil {
		s.journalError("create_event", ev.RunID, err)
	}

	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(ev.Transition.Type)).Inc()
		if ev.Transition.Type == domain.EventTypeProtocolViolation {
			s.metrics.FramesDropped.Inc()
		}
	}

	v := feed.Build(ev.State)
	v.State = string(stateOf(ev.State))
	s.push(ev.RunKey, v)
}

func (s *Service) push(runKey string, v feed.View) {
	if !s.listening(runKey) {
		return
	}
	msg := protocol.StateMessage{
		BaseMessage: protocol.Base(protocol.TypeState, runKey, v.RunID),
		View:        v,
	}
	if err := s.hub.BroadcastJSON(runKey, msg); err != nil {
		s.logger.Warn("failed to push state", "run_key", runKey, "error", err)
	}
}

func (s *Service) onWorkflowComplete(runKey, runID, summary string) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := s.recordEvent(ctx, runID, domain.EventTypeRunCompleted, map[string]string{"summary": summary}); err != nil {
		s.journalError("run_completed", runID, err)
	}
	s.logger.Info("workflow complete", "run_key", runKey, "run_id", runID)

	if !s.listening(runKey) {
		return
	}
	msg := protocol.DoneMessage{
		BaseMessage: protocol.Base(protocol.TypeDone, runKey, runID),
		Summary:     summary,
	}
	if err := s.hub.BroadcastJSON(runKey, msg); err != nil {
		s.logger.Warn("failed to push done", "run_key", runKey, "error", err)
	}
}

func (s *Service) onRunEnd(runKey, runID string, state domain.ControllerState, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	var errData []byte
	failed := runErr != nil && !errors.Is(runErr, context.Canceled)
	if failed {
		errData, _ = json.Marshal(map[string]string{"error": runErr.Error()})
	}
	if s.store != nil {
		if err := s.store.UpdateRunCompleted(ctx, runID, state, errData); err != nil {
			s.journalError("update_run", runID, err)
		}
	}

	started, ok := s.started.LoadAndDelete(runID)
	if s.metrics != nil {
		s.metrics.RunsFinished.WithLabelValues(runKey, string(state)).Inc()
		if ok {
			s.metrics.RunsActive.Dec()
			s.metrics.RunDuration.WithLabelValues(runKey).Observe(time.Since(started.(time.Time)).Seconds())
		}
	}

	if !failed || !s.listening(runKey) {
		return
	}
	msg := protocol.ErrorMessage{
		BaseMessage: protocol.Base(protocol.TypeError, runKey, runID),
		Code:        protocol.ErrorCodeRunFailed,
		Message:     runErr.Error(),
	}
	if err := s.hub.BroadcastJSON(runKey, msg); err != nil {
		s.logger.Warn("failed to push error", "run_key", runKey, "error", err)
	}
}

// listening reports whether any client is bound to runKey.
func (s *Service) listening(runKey string) bool {
	return s.hub != nil && s.hub.HasActiveConnections(runKey)
}
