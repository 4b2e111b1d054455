package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/engine"
)

// DefaultTolerance is the number of dropped frames a run survives.
const DefaultTolerance = 1

// Outcome tells what Apply did with a frame.
type Outcome int

const (
	// OutcomeApplied means the frame changed the run.
	OutcomeApplied Outcome = iota
	// OutcomeIgnored means the run was already frozen.
	OutcomeIgnored
	// OutcomeViolation means the frame was dropped.
	OutcomeViolation
	// OutcomeTerminal means the frame carried the result and completed the run.
	OutcomeTerminal
	// OutcomeFailed means the frame was dropped and the run failed because
	// too many frames were dropped.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeViolation:
		return "violation"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Mapping translates step numbers to stage phases.
type Mapping []domain.StepRange

// Lookup returns the range containing step.
func (m Mapping) Lookup(step int) (domain.StepRange, bool) {
	for _, r := range m {
		if r.Contains(step) {
			return r, true
		}
	}
	return domain.StepRange{}, false
}

// FinalStep is the step at which the last stage completes.
func (m Mapping) FinalStep() int {
	if len(m) == 0 {
		return 0
	}
	last := m[len(m)-1]
	if last.To > 0 {
		return last.To
	}
	return last.From
}

// Options tune a Reducer.
type Options struct {
	Tolerance int
	Logger    *slog.Logger
}

// Reducer folds stream frames into a RunState. It is safe for concurrent
// use; one goroutine is expected to call Apply.
type Reducer struct {
	mu     sync.Mutex
	emitMu sync.Mutex

	scenario  *domain.Scenario
	state     *domain.RunState
	mapping   Mapping
	hooks     engine.Hooks
	tolerance int
	logger    *slog.Logger

	lastStep   int
	violations int
	cancelled  bool
	err        error
	pending    []domain.Transition
	completed  bool
}

// NewReducer creates a reducer with fresh stages for the scenario.
func NewReducer(runID string, sc *domain.Scenario, hooks engine.Hooks, opts Options) *Reducer {
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reducer{
		scenario:  sc,
		state:     domain.NewRunState(runID, sc),
		mapping:   Mapping(sc.StepMapping),
		hooks:     hooks,
		tolerance: opts.Tolerance,
		logger:    opts.Logger.With("run_id", runID, "run_key", sc.RunKey),
	}
}

// Start marks the run as started and announces the upload. It is a no-op
// after the first call or once frozen.
func (r *Reducer) Start() bool {
	r.lock()
	if r.state.HasStarted || r.frozen() {
		r.unlock()
		return false
	}
	r.state.HasStarted = true
	r.record(domain.Transition{Type: domain.EventTypeRunStarted})
	first := r.state.Stages[0]
	text := r.scenario.OpeningText
	if text == "" {
		text = fmt.Sprintf("Dispatching %s to %s", r.scenario.RunKey, first.DisplayName)
	}
	r.say(domain.LiveMessage{From: domain.OrchestratorID, To: first.ID, Text: text})
	r.flush()
	return true
}

// Apply folds one frame into the run.
func (r *Reducer) Apply(f Frame) Outcome {
	r.lock()
	out := r.applyLocked(f)
	r.flush()
	return out
}

func (r *Reducer) applyLocked(f Frame) Outcome {
	if r.frozen() {
		return OutcomeIgnored
	}
	if f.Err != nil {
		return r.violation(f.Err)
	}
	ev := f.Event
	if ev.Step <= r.lastStep {
		return r.violation(fmt.Errorf("%w: step %d after step %d", domain.ErrProtocolViolation, ev.Step, r.lastStep))
	}

	var result *domain.InvoiceResult
	if ev.HasResult() {
		result = &domain.InvoiceResult{}
		if err := json.Unmarshal(ev.Result, result); err != nil {
			return r.violation(fmt.Errorf("%w: invalid result: %v", domain.ErrProtocolViolation, err))
		}
	}
	r.lastStep = ev.Step

	if rng, ok := r.mapping.Lookup(ev.Step); ok {
		r.applyRange(rng, ev.Status)
	} else if ev.Status != "" {
		r.sayFromActive(ev.Status)
	}
	r.record(domain.Transition{Type: domain.EventTypeFrameApplied, Detail: ev.Status})

	if result != nil {
		r.finish(result)
		return OutcomeTerminal
	}
	r.raiseProgress(ev.Step)
	return OutcomeApplied
}

func (r *Reducer) applyRange(rng domain.StepRange, status string) {
	idx := r.scenario.StageIndex(rng.StageID)
	if idx < 0 {
		return
	}
	// the backend moved past every earlier stage
	for i := 0; i < idx; i++ {
		r.completeStage(i, "")
	}

	st := r.state.Stages[idx]
	switch rng.Phase {
	case domain.StreamPhaseCompleted:
		if !r.completeStage(idx, status) && status != "" {
			r.say(domain.LiveMessage{From: st.ID, Text: status})
		}
	default:
		if st.SetStatus(domain.StageStatusInProgress) {
			r.record(domain.Transition{Type: domain.EventTypeStageStarted, StageID: st.ID, Status: st.Status})
		}
		r.tickSubAction(st)
		if status != "" {
			r.say(domain.LiveMessage{From: st.ID, Text: status})
		}
	}
	r.refreshActive()
}

// tickSubAction marks the next sub-action done, keeping the last one for
// completion.
func (r *Reducer) tickSubAction(st *domain.Stage) {
	if st.Status != domain.StageStatusInProgress {
		return
	}
	if st.CompletedSubActions()+1 >= len(st.SubActions) {
		return
	}
	for i := range st.SubActions {
		if !st.SubActions[i].Completed {
			st.SubActions[i].Completed = true
			r.record(domain.Transition{Type: domain.EventTypeSubAction, StageID: st.ID, Detail: st.SubActions[i].Text})
			return
		}
	}
}

func (r *Reducer) completeStage(idx int, status string) bool {
	st := r.state.Stages[idx]
	if !st.SetStatus(domain.StageStatusCompleted) {
		return false
	}
	st.CompleteAllSubActions()
	st.Reveal(&r.scenario.OrderedStages[idx])
	r.record(domain.Transition{Type: domain.EventTypeStageCompleted, StageID: st.ID, Status: st.Status})

	if m, ok := r.scenario.MessageFrom(st.ID); ok && m.To != "" {
		r.say(domain.LiveMessage{From: m.From, To: m.To, Text: m.Text})
		return true
	}
	if status != "" {
		r.say(domain.LiveMessage{From: st.ID, Text: status})
	}
	return true
}

func (r *Reducer) sayFromActive(text string) {
	from := domain.OrchestratorID
	if len(r.state.Active) > 0 {
		from = r.state.Stages[r.state.Active[0]].ID
	}
	r.say(domain.LiveMessage{From: from, Text: text})
}

func (r *Reducer) refreshActive() {
	r.state.Active = r.state.InProgress()
}

func (r *Reducer) raiseProgress(step int) {
	final := r.mapping.FinalStep()
	if final <= 0 {
		return
	}
	p := step * 100 / final
	if p > 99 {
		p = 99
	}
	if p > r.state.ProgressPercent {
		r.state.ProgressPercent = p
	}
}

func (r *Reducer) finish(result *domain.InvoiceResult) {
	for _, rng := range r.mapping {
		if idx := r.scenario.StageIndex(rng.StageID); idx >= 0 {
			r.completeStage(idx, "")
		}
	}
	r.state.Result = result
	r.state.IsComplete = true
	r.state.Active = nil
	r.state.ProgressPercent = 100
	r.state.Summary = r.scenario.SummaryText

	last := r.state.Stages[len(r.state.Stages)-1]
	final := domain.LiveMessage{From: last.ID, Text: r.scenario.SummaryText, IsFinal: true}
	if m, ok := r.scenario.FinalMessage(); ok {
		final = domain.LiveMessage{From: m.From, Text: m.Text, IsFinal: true}
	}
	r.say(final)
	r.record(domain.Transition{Type: domain.EventTypeRunDone, Detail: r.scenario.SummaryText})
	r.completed = true
	r.logger.Info("stream run completed", "steps", r.lastStep, "dropped", r.violations)
}

func (r *Reducer) violation(err error) Outcome {
	r.violations++
	r.record(domain.Transition{Type: domain.EventTypeProtocolViolation, Detail: err.Error()})
	r.logger.Warn("dropped stream frame", "error", err, "violations", r.violations)
	if r.violations <= r.tolerance {
		return OutcomeViolation
	}
	r.fail("Backend sent an invalid update sequence",
		fmt.Errorf("%w: %d frames dropped", domain.ErrProtocolViolation, r.violations))
	return OutcomeFailed
}

// Fail records a transport failure: in-progress stages become error with the
// message, stages not reached stay pending. It is a no-op once frozen.
func (r *Reducer) Fail(reason string) bool {
	r.lock()
	if r.frozen() {
		r.unlock()
		return false
	}
	r.fail(reason, fmt.Errorf("%w: %s", domain.ErrTransport, reason))
	r.flush()
	return true
}

func (r *Reducer) fail(message string, err error) {
	for _, idx := range r.state.InProgress() {
		st := r.state.Stages[idx]
		st.SetStatus(domain.StageStatusError)
		st.ErrorMessage = message
		r.record(domain.Transition{Type: domain.EventTypeStageFailed, StageID: st.ID, Status: st.Status, Detail: message})
	}
	r.state.Active = nil
	r.state.Failed = true
	r.state.Error = message
	r.err = err
	r.record(domain.Transition{Type: domain.EventTypeRunFailed, Detail: message})
	r.logger.Error("stream run failed", "error", err)
}

// Cancel stops frame consumption and keeps the applied state. Idempotent.
func (r *Reducer) Cancel() bool {
	r.lock()
	if r.frozen() {
		r.unlock()
		return false
	}
	r.cancelled = true
	r.state.Cancelled = true
	r.record(domain.Transition{Type: domain.EventTypeRunCancelled})
	r.flush()
	return true
}

// Err returns the failure of a failed run.
func (r *Reducer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Terminal reports whether the run can no longer change.
func (r *Reducer) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen()
}

// Violations returns the number of dropped frames.
func (r *Reducer) Violations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations
}

// Snapshot returns a deep copy of the current run state.
func (r *Reducer) Snapshot() domain.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// StageRefs returns the live stage pointers of this run.
func (r *Reducer) StageRefs() []*domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Stage(nil), r.state.Stages...)
}

func (r *Reducer) frozen() bool {
	return r.cancelled || r.state.IsTerminal()
}

func (r *Reducer) say(m domain.LiveMessage) {
	r.state.LiveMessage = &m
	msg := m
	r.record(domain.Transition{Type: domain.EventTypeMessage, Message: &msg})
}

func (r *Reducer) record(t domain.Transition) {
	r.pending = append(r.pending, t)
}

// lock takes the emit lock before the state lock. Hooks run under the emit
// lock alone, so they may read snapshots while a mutator waits.
func (r *Reducer) lock() {
	r.emitMu.Lock()
	r.mu.Lock()
}

func (r *Reducer) unlock() {
	r.mu.Unlock()
	r.emitMu.Unlock()
}

// flush releases the state lock and delivers pending output in order.
// It must be called after r.lock().
func (r *Reducer) flush() {
	batch := r.pending
	r.pending = nil
	var snap domain.RunState
	if len(batch) > 0 && r.hooks.OnTransition != nil {
		snap = r.state.Clone()
	}
	fireComplete := r.completed
	r.completed = false

	r.mu.Unlock()
	defer r.emitMu.Unlock()

	if r.hooks.OnTransition != nil {
		for _, t := range batch {
			r.hooks.OnTransition(t, snap)
		}
	}
	if fireComplete && r.hooks.OnComplete != nil {
		r.hooks.OnComplete(r.scenario.SummaryText)
	}
}
