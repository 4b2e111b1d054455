// Package lifecycle binds a scenario selection to exactly one run at a time
// and guarantees that a discarded run can no longer change.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/engine"
)

// Event is delivered to subscribers for every transition of the current run.
type Event struct {
	RunID      string
	RunKey     string
	Transition domain.Transition
	State      domain.RunState
}

// Listener receives controller events. Listeners run on the producer's
// goroutine and must not call Controller mutators.
type Listener func(Event)

// Options configures a Controller.
type Options struct {
	Factory Factory
	// OnWorkflowComplete fires once per successful run.
	OnWorkflowComplete func(runID, summary string)
	// OnRunEnd fires once per started run when it stops, whatever the outcome.
	OnRunEnd     func(runID string, state domain.ControllerState, err error)
	StallTimeout time.Duration
	Logger       *slog.Logger
	NewRunID     func() string
}

// Controller owns the run of one scenario selection.
type Controller struct {
	opMu sync.Mutex // serializes mutators
	mu   sync.Mutex

	state    domain.ControllerState
	scenario *domain.Scenario
	producer Producer
	runID    string
	stop     context.CancelFunc
	done     chan struct{}

	factory      Factory
	onComplete   func(runID, summary string)
	onRunEnd     func(runID string, state domain.ControllerState, err error)
	stallTimeout time.Duration
	logger       *slog.Logger
	newRunID     func() string

	lastChange atomic.Int64

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int
}

// New creates an unmounted controller.
func New(opts Options) *Controller {
	if opts.Factory == nil {
		opts.Factory = NewFactory(FactoryConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return "run_" + uuid.New().String()[:8] }
	}
	return &Controller{
		state:        domain.ControllerUnmounted,
		factory:      opts.Factory,
		onComplete:   opts.OnWorkflowComplete,
		onRunEnd:     opts.OnRunEnd,
		stallTimeout: opts.StallTimeout,
		logger:       opts.Logger,
		newRunID:     opts.NewRunID,
		subs:         make(map[int]Listener),
	}
}

// Mount allocates a fresh run of sc without starting it.
func (c *Controller) Mount(sc *domain.Scenario) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.mount(sc)
}

func (c *Controller) mount(sc *domain.Scenario) error {
	if sc == nil {
		return domain.ErrNoScenario
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ControllerUnmounted {
		return fmt.Errorf("%w: mount from %s", domain.ErrInvalidTransition, c.state)
	}

	runID := c.newRunID()
	p, err := c.factory(runID, sc, c.hooks(runID, sc.RunKey))
	if err != nil {
		return fmt.Errorf("failed to build run %s: %w", sc.RunKey, err)
	}
	c.scenario = sc
	c.producer = p
	c.runID = runID
	c.state = domain.ControllerIdle
	return nil
}

func (c *Controller) hooks(runID, runKey string) engine.Hooks {
	return engine.Hooks{
		OnTransition: func(t domain.Transition, st domain.RunState) {
			c.lastChange.Store(time.Now().UnixNano())
			c.publish(Event{RunID: runID, RunKey: runKey, Transition: t, State: st})
		},
	}
}

// Start launches the mounted run. A second call while running is a no-op.
func (c *Controller) Start() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.start()
}

func (c *Controller) start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ControllerIdle {
		return false
	}
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stop = stop
	c.done = done
	c.state = domain.ControllerRunning
	c.lastChange.Store(time.Now().UnixNano())

	go c.run(ctx, stop, c.producer, c.runID, done)
	c.logger.Info("run started", "run_id", c.runID, "run_key", c.scenario.RunKey, "mode", c.scenario.Mode)
	return true
}

func (c *Controller) run(ctx context.Context, stop context.CancelFunc, p Producer, runID string, done chan struct{}) {
	defer close(done)

	if c.stallTimeout > 0 {
		var wg sync.WaitGroup
		wctx, stopWatch := context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.watch(wctx, p, stop, runID)
		}()
		defer func() {
			stopWatch()
			wg.Wait()
		}()
	}

	err := p.Run(ctx)
	snap := p.Snapshot()

	c.mu.Lock()
	current := c.producer == p
	if current && c.state == domain.ControllerRunning {
		c.state = stateOf(snap)
	}
	final := stateOf(snap)
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("run ended with error", "run_id", runID, "error", err)
	} else {
		c.logger.Info("run ended", "run_id", runID, "state", final)
	}
	if c.onRunEnd != nil {
		c.onRunEnd(runID, final, err)
	}
	if final == domain.ControllerComplete && c.onComplete != nil {
		c.onComplete(runID, snap.Summary)
	}
}

func stateOf(st domain.RunState) domain.ControllerState {
	switch {
	case st.IsComplete:
		return domain.ControllerComplete
	case st.Failed:
		return domain.ControllerFailed
	}
	return domain.ControllerCancelled
}

// Cancel freezes the running run. It is idempotent and returns false when
// nothing was running.
func (c *Controller) Cancel() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.cancelRun()
}

func (c *Controller) cancelRun() bool {
	c.mu.Lock()
	if c.state != domain.ControllerRunning {
		c.mu.Unlock()
		return false
	}
	p, stop := c.producer, c.stop
	c.mu.Unlock()

	ok := p.Cancel()
	stop()
	if ok {
		c.mu.Lock()
		if c.producer == p && c.state == domain.ControllerRunning {
			c.state = domain.ControllerCancelled
		}
		c.mu.Unlock()
	}
	return ok
}

// Unmount cancels the current run unconditionally and waits for its
// goroutine to exit. No transition of that run happens after it returns.
func (c *Controller) Unmount() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.unmount()
}

func (c *Controller) unmount() {
	c.mu.Lock()
	p, stop, done := c.producer, c.stop, c.done
	c.producer, c.stop, c.done = nil, nil, nil
	c.runID = ""
	c.state = domain.ControllerUnmounted
	c.mu.Unlock()

	if p != nil {
		p.Cancel()
	}
	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

// Rerun discards the current run and starts a fresh one of the same
// scenario. It is refused while running or unmounted.
func (c *Controller) Rerun() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.rerun()
}

func (c *Controller) rerun() bool {
	c.mu.Lock()
	sc, state := c.scenario, c.state
	c.mu.Unlock()
	switch state {
	case domain.ControllerIdle, domain.ControllerComplete, domain.ControllerCancelled, domain.ControllerFailed:
	default:
		return false
	}

	c.unmount()
	if err := c.mount(sc); err != nil {
		c.logger.Error("rerun failed to mount", "run_key", sc.RunKey, "error", err)
		return false
	}
	return c.start()
}

// Reset discards the current run, whatever its state, and mounts a fresh
// idle one.
func (c *Controller) Reset() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	sc, state := c.scenario, c.state
	c.mu.Unlock()
	if state == domain.ControllerUnmounted || sc == nil {
		return false
	}
	c.unmount()
	if err := c.mount(sc); err != nil {
		c.logger.Error("reset failed to mount", "run_key", sc.RunKey, "error", err)
		return false
	}
	return true
}

// RunAgent starts the mounted run, or re-runs a finished one.
func (c *Controller) RunAgent() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.State() == domain.ControllerIdle {
		return c.start()
	}
	return c.rerun()
}

// CancelAgent is Cancel.
func (c *Controller) CancelAgent() bool { return c.Cancel() }

// ResetAgent is Reset.
func (c *Controller) ResetAgent() bool { return c.Reset() }

// State returns the controller state.
func (c *Controller) State() domain.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the id of the mounted run.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Scenario returns the mounted scenario.
func (c *Controller) Scenario() *domain.Scenario {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scenario
}

// Snapshot returns the state of the mounted run.
func (c *Controller) Snapshot() (domain.RunState, bool) {
	c.mu.Lock()
	p := c.producer
	c.mu.Unlock()
	if p == nil {
		return domain.RunState{}, false
	}
	return p.Snapshot(), true
}

// StageRefs returns the stage pointers of the mounted run.
func (c *Controller) StageRefs() []*domain.Stage {
	c.mu.Lock()
	p := c.producer
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.StageRefs()
}

// Done returns a channel closed once the current run's goroutine exited.
// It is closed already when no run was started.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Subscribe registers a listener and returns its removal func.
func (c *Controller) Subscribe(fn Listener) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	listeners := make([]Listener, 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
