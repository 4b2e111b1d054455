package domain

import (
	"encoding/json"
	"time"
)

// OrchestratorID is the sender of the opening message of every run.
const OrchestratorID = "orchestrator"

// LiveMessage is the most recent agent-to-agent message of a run.
type LiveMessage struct {
	From    string        `json:"from"`
	To      string        `json:"to,omitempty"`
	Text    string        `json:"text"`
	At      time.Duration `json:"at_ms"`
	IsFinal bool          `json:"is_final"`
}

// RunState is the mutable snapshot of one workflow execution.
type RunState struct {
	RunID           string         `json:"run_id"`
	RunKey          string         `json:"run_key"`
	Mode            Mode           `json:"mode"`
	Stages          []*Stage       `json:"stages"`
	Active          []int          `json:"active"`
	LiveMessage     *LiveMessage   `json:"live_message,omitempty"`
	ProgressPercent int            `json:"progress_percent"`
	Elapsed         time.Duration  `json:"elapsed_ms"`
	Total           time.Duration  `json:"total_ms"`
	IsComplete      bool           `json:"is_complete"`
	HasStarted      bool           `json:"has_started"`
	Cancelled       bool           `json:"cancelled"`
	Failed          bool           `json:"failed"`
	Error           string         `json:"error,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Result          *InvoiceResult `json:"result,omitempty"`
}

// NewRunState instantiates fresh stages for a scenario.
func NewRunState(runID string, sc *Scenario) *RunState {
	st := &RunState{
		RunID:  runID,
		RunKey: sc.RunKey,
		Mode:   sc.Mode,
		Stages: make([]*Stage, len(sc.OrderedStages)),
		Total:  sc.NominalDuration(),
	}
	for i := range sc.OrderedStages {
		st.Stages[i] = sc.OrderedStages[i].Instantiate()
	}
	return st
}

// IsTerminal reports whether the run can no longer change.
func (r RunState) IsTerminal() bool {
	return r.IsComplete || r.Cancelled || r.Failed
}

// Stage returns the stage with the given id, or nil.
func (r RunState) Stage(id string) *Stage {
	for _, s := range r.Stages {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// InProgress returns the indices of in-progress stages.
func (r RunState) InProgress() []int {
	var out []int
	for i, s := range r.Stages {
		if s.Status == StageStatusInProgress {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *RunState) Clone() RunState {
	out := *r
	out.Stages = make([]*Stage, len(r.Stages))
	for i, s := range r.Stages {
		out.Stages[i] = s.Clone()
	}
	out.Active = append([]int(nil), r.Active...)
	if r.LiveMessage != nil {
		m := *r.LiveMessage
		out.LiveMessage = &m
	}
	if r.Result != nil {
		out.Result = r.Result.Clone()
	}
	return out
}

// Transition is emitted by a producer for every state change.
type Transition struct {
	Type    EventType     `json:"type"`
	StageID string        `json:"stage_id,omitempty"`
	Status  StageStatus   `json:"status,omitempty"`
	Message *LiveMessage  `json:"message,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	At      time.Duration `json:"at_ms"`
}

// Run is the journal record of one run.
type Run struct {
	RunID     string          `json:"run_id"`
	RunKey    string          `json:"run_key"`
	Mode      Mode            `json:"mode"`
	Status    ControllerState `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Event is a journal entry recorded for replay and inspection.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
