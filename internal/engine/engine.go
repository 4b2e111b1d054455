// Package engine drives a scenario's stages to completion on a virtual
// timeline, with sequential sections and joined parallel tracks.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
)

// Hooks receive engine output. Hooks run outside the state lock, in emission
// order, and must not call Start, Advance, Cancel or Fail.
type Hooks struct {
	// OnTransition receives each transition with the snapshot taken at the
	// end of the batch that produced it.
	OnTransition func(t domain.Transition, st domain.RunState)
	// OnComplete fires once when the run finishes successfully.
	OnComplete func(summary string)
}

// track is one sequence of stage indices inside a section.
type track struct {
	label  string
	stages []int
	pos    int
}

func (t *track) current() int { return t.stages[t.pos] }

func (t *track) finished() bool { return t.pos >= len(t.stages) }

// Engine is the workflow state machine of one run. It is safe for concurrent
// use; a single Runner is expected to drive it.
type Engine struct {
	mu     sync.Mutex
	emitMu sync.Mutex

	scenario *domain.Scenario
	state    *domain.RunState
	hooks    Hooks

	sections []domain.Section
	section  int
	tracks   []*track
	barrier  *Barrier

	queue tickQueue
	seq   uint64
	now   time.Duration

	cancelled bool
	pending   []domain.Transition
	completed bool
}

// New instantiates a fresh run of the scenario. The scenario is only read.
func New(runID string, sc *domain.Scenario, hooks Hooks) *Engine {
	return &Engine{
		scenario: sc,
		state:    domain.NewRunState(runID, sc),
		hooks:    hooks,
		sections: sc.Layout(),
	}
}

// Start activates the first stage of every track of the first section and
// emits the opening message. Calling Start again, or after Cancel, is a no-op.
func (e *Engine) Start() bool {
	e.lock()
	if e.state.HasStarted || e.cancelled {
		e.unlock()
		return false
	}
	e.state.HasStarted = true
	e.record(domain.Transition{Type: domain.EventTypeRunStarted})

	e.enterSection(0)

	first := e.state.Stages[e.tracks[0].current()]
	text := e.scenario.OpeningText
	if text == "" {
		text = fmt.Sprintf("Dispatching %s to %s", e.scenario.RunKey, first.DisplayName)
	}
	e.say(domain.LiveMessage{From: domain.OrchestratorID, To: first.ID, Text: text})
	e.flush()
	return true
}

// NextDue returns the virtual time of the next scheduled tick.
func (e *Engine) NextDue() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled || len(e.queue) == 0 {
		return 0, false
	}
	return e.queue.peek().due, true
}

// Advance applies the next scheduled tick. It returns false when nothing is
// scheduled or the run is frozen.
func (e *Engine) Advance() bool {
	e.lock()
	ok := e.advanceLocked()
	e.flush()
	return ok
}

// AdvanceTo applies every tick due at or before t and returns how many ran.
func (e *Engine) AdvanceTo(t time.Duration) int {
	e.lock()
	n := 0
	for !e.cancelled && len(e.queue) > 0 && e.queue.peek().due <= t {
		if !e.advanceLocked() {
			break
		}
		n++
	}
	e.flush()
	return n
}

// Cancel freezes the run as-is. No further transitions happen. Idempotent.
func (e *Engine) Cancel() bool {
	e.lock()
	if e.cancelled || e.state.IsComplete || e.state.Failed {
		e.unlock()
		return false
	}
	e.cancelled = true
	e.queue = nil
	e.state.Cancelled = true
	e.record(domain.Transition{Type: domain.EventTypeRunCancelled})
	e.flush()
	return true
}

// Fail marks every in-progress stage as error and freezes the run. The
// simulated timeline never fails on its own; Fail exists for watchdogs.
func (e *Engine) Fail(reason string) bool {
	e.lock()
	if e.cancelled || e.state.IsComplete || e.state.Failed {
		e.unlock()
		return false
	}
	e.cancelled = true
	e.queue = nil
	for _, idx := range e.state.InProgress() {
		st := e.state.Stages[idx]
		st.SetStatus(domain.StageStatusError)
		st.ErrorMessage = reason
		e.record(domain.Transition{Type: domain.EventTypeStageFailed, StageID: st.ID, Status: st.Status, Detail: reason})
	}
	e.state.Failed = true
	e.state.Error = reason
	e.record(domain.Transition{Type: domain.EventTypeRunFailed, Detail: reason})
	e.flush()
	return true
}

// Snapshot returns a deep copy of the current run state.
func (e *Engine) Snapshot() domain.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// StageRefs returns the live stage pointers of this run. They identify the
// run's stage set and must not be mutated.
func (e *Engine) StageRefs() []*domain.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.Stage(nil), e.state.Stages...)
}

func (e *Engine) advanceLocked() bool {
	if e.cancelled || e.state.IsComplete || len(e.queue) == 0 {
		return false
	}
	t := e.queue.pop()
	e.now = t.due

	switch t.kind {
	case tickActivate:
		e.activate(t.track)
	case tickEnterSection:
		e.enterSection(t.section)
	default:
		e.tickSubAction(t.track)
	}
	e.updateProgress()
	return true
}

func (e *Engine) tickSubAction(tr *track) {
	st := e.state.Stages[tr.current()]
	for i := range st.SubActions {
		if !st.SubActions[i].Completed {
			st.SubActions[i].Completed = true
			e.record(domain.Transition{Type: domain.EventTypeSubAction, StageID: st.ID, Detail: st.SubActions[i].Text})
			break
		}
	}
	if st.CompletedSubActions() < len(st.SubActions) {
		e.schedule(tr, st.StepInterval)
		return
	}
	e.completeStage(tr)
}

// completeStage finishes the track's current stage. The hand-over to the
// next stage is queued at the same instant so it stays a separate step.
func (e *Engine) completeStage(tr *track) {
	idx := tr.current()
	st := e.state.Stages[idx]
	st.CompleteAllSubActions()
	st.SetStatus(domain.StageStatusCompleted)
	st.Reveal(&e.scenario.OrderedStages[idx])
	e.record(domain.Transition{Type: domain.EventTypeStageCompleted, StageID: st.ID, Status: st.Status})

	tr.pos++
	next := e.nextStageID(tr)
	if m, ok := e.scenario.MessageFrom(st.ID); ok {
		e.say(domain.LiveMessage{From: m.From, To: m.To, Text: m.Text})
	} else if st.OutboundLinkMessage != "" {
		e.say(domain.LiveMessage{From: st.ID, To: next, Text: st.OutboundLinkMessage})
	}
	e.refreshActive()

	if !tr.finished() {
		e.push(&tick{kind: tickActivate, track: tr})
		return
	}
	if !e.barrier.Arrive(tr.label) {
		return
	}
	if e.section+1 < len(e.sections) {
		e.push(&tick{kind: tickEnterSection, section: e.section + 1})
		return
	}
	e.complete()
}

// nextStageID is the stage a finished stage hands over to: the next stage of
// its track, or the first stage of the following section.
func (e *Engine) nextStageID(tr *track) string {
	if !tr.finished() {
		return e.state.Stages[tr.current()].ID
	}
	if e.section+1 < len(e.sections) {
		return e.state.Stages[e.sections[e.section+1].Tracks[0][0]].ID
	}
	return ""
}

func (e *Engine) enterSection(i int) {
	e.section = i
	sec := e.sections[i]
	e.tracks = make([]*track, len(sec.Tracks))
	for j, stages := range sec.Tracks {
		e.tracks[j] = &track{label: sec.Labels[j], stages: stages}
	}
	e.barrier = NewBarrier(sec.Labels...)
	for _, tr := range e.tracks {
		e.activate(tr)
	}
}

func (e *Engine) activate(tr *track) {
	st := e.state.Stages[tr.current()]
	st.SetStatus(domain.StageStatusInProgress)
	e.record(domain.Transition{Type: domain.EventTypeStageStarted, StageID: st.ID, Status: st.Status})
	e.schedule(tr, st.StepInterval)
	e.refreshActive()
}

func (e *Engine) schedule(tr *track, after time.Duration) {
	e.push(&tick{due: e.now + after, kind: tickSubAction, track: tr})
}

// push queues an event; a zero due time means "now".
func (e *Engine) push(t *tick) {
	if t.due == 0 {
		t.due = e.now
	}
	e.seq++
	t.seq = e.seq
	e.queue.push(t)
}

// refreshActive sets the cursor to the in-progress stage of every track.
func (e *Engine) refreshActive() {
	var active []int
	for _, tr := range e.tracks {
		if !tr.finished() && e.state.Stages[tr.current()].Status == domain.StageStatusInProgress {
			active = append(active, tr.current())
		}
	}
	sort.Ints(active)
	e.state.Active = active
}

func (e *Engine) updateProgress() {
	e.state.Elapsed = e.now
	p := feed.Percent(e.now, e.state.Total, e.state.IsComplete)
	if p > e.state.ProgressPercent {
		e.state.ProgressPercent = p
	}
}

func (e *Engine) complete() {
	e.state.IsComplete = true
	e.state.Active = nil
	e.state.ProgressPercent = 100
	e.state.Summary = e.scenario.SummaryText

	last := e.state.Stages[len(e.state.Stages)-1]
	final := domain.LiveMessage{From: last.ID, Text: e.scenario.SummaryText, IsFinal: true}
	if m, ok := e.scenario.FinalMessage(); ok {
		final = domain.LiveMessage{From: m.From, Text: m.Text, IsFinal: true}
	}
	e.say(final)
	e.record(domain.Transition{Type: domain.EventTypeRunDone, Detail: e.scenario.SummaryText})
	e.completed = true
}

func (e *Engine) say(m domain.LiveMessage) {
	m.At = e.now
	e.state.LiveMessage = &m
	msg := m
	e.record(domain.Transition{Type: domain.EventTypeMessage, Message: &msg})
}

func (e *Engine) record(t domain.Transition) {
	t.At = e.now
	e.pending = append(e.pending, t)
}

// lock takes the emit lock before the state lock. Hooks run under the emit
// lock alone, so they may read snapshots while a mutator waits.
func (e *Engine) lock() {
	e.emitMu.Lock()
	e.mu.Lock()
}

func (e *Engine) unlock() {
	e.mu.Unlock()
	e.emitMu.Unlock()
}

// flush releases the state lock and delivers pending output in order.
// It must be called after e.lock().
func (e *Engine) flush() {
	batch := e.pending
	e.pending = nil
	var snap domain.RunState
	if len(batch) > 0 && e.hooks.OnTransition != nil {
		snap = e.state.Clone()
	}
	fireComplete := e.completed
	e.completed = false

	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if e.hooks.OnTransition != nil {
		for _, t := range batch {
			e.hooks.OnTransition(t, snap)
		}
	}
	if fireComplete && e.hooks.OnComplete != nil {
		e.hooks.OnComplete(e.scenario.SummaryText)
	}
}
