// Package domain defines the core domain models for agent workflow runs.
package domain

// StageStatus represents the status of a stage within a run.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "in-progress"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusError      StageStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusError
}

// CanTransition reports whether a stage may move from s to next.
// Statuses only move forward: pending -> in-progress -> completed|error.
// A pending stage may also be completed or failed directly (stream frames
// can skip the running phase).
func (s StageStatus) CanTransition(next StageStatus) bool {
	switch s {
	case StageStatusPending:
		return next == StageStatusInProgress || next == StageStatusCompleted || next == StageStatusError
	case StageStatusInProgress:
		return next == StageStatusCompleted || next == StageStatusError
	}
	return false
}

// Mode selects which producer drives a scenario.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeStream    Mode = "stream"
)

// ControllerState represents the state of a lifecycle controller.
type ControllerState string

const (
	ControllerUnmounted ControllerState = "unmounted"
	ControllerIdle      ControllerState = "idle"
	ControllerRunning   ControllerState = "running"
	ControllerComplete  ControllerState = "complete"
	ControllerCancelled ControllerState = "cancelled"
	ControllerFailed    ControllerState = "failed"
)

// EventType represents the type of a run transition event.
type EventType string

const (
	EventTypeRunStarted     EventType = "run_started"
	EventTypeStageStarted   EventType = "stage_started"
	EventTypeSubAction      EventType = "sub_action_completed"
	EventTypeStageCompleted EventType = "stage_completed"
	EventTypeStageFailed    EventType = "stage_failed"
	EventTypeMessage        EventType = "message"
	EventTypeRunDone        EventType = "run_done"
	EventTypeRunFailed      EventType = "run_failed"
	EventTypeRunCancelled   EventType = "run_cancelled"
	EventTypeRunCompleted   EventType = "run_completed"

	// Stream events
	EventTypeFrameApplied      EventType = "frame_applied"
	EventTypeProtocolViolation EventType = "protocol_violation"
)

// StreamPhase is the sub-status a step range assigns to its stage.
type StreamPhase string

const (
	StreamPhaseRunning   StreamPhase = "running"
	StreamPhaseCompleted StreamPhase = "completed"
)
