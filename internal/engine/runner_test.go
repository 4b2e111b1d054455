package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForWaiter blocks until the runner is sleeping on the clock.
func waitForWaiter(t *testing.T, c *ManualClock) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Waiters() > 0 }, time.Second, time.Millisecond)
}

func TestSimulationRunsToCompletion(t *testing.T) {
	clock := NewManualClock()
	e := New("run_1", sequentialScenario(3, 1200*time.Millisecond), Hooks{})
	sim := NewSimulation(e, clock, 1)

	done := make(chan error, 1)
	go func() { done <- sim.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		waitForWaiter(t, clock)
		clock.Add(1200 * time.Millisecond)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("simulation did not finish")
	}
	snap := sim.Snapshot()
	assert.True(t, snap.IsComplete)
	assert.Equal(t, 100, snap.ProgressPercent)
}

func TestSimulationScale(t *testing.T) {
	clock := NewManualClock()
	e := New("run_1", sequentialScenario(1, time.Second), Hooks{})
	sim := NewSimulation(e, clock, 0.5)

	done := make(chan error, 1)
	go func() { done <- sim.Run(context.Background()) }()

	waitForWaiter(t, clock)
	clock.Add(499 * time.Millisecond)
	assert.False(t, sim.Snapshot().IsComplete)
	clock.Add(time.Millisecond)

	require.NoError(t, <-done)
	assert.True(t, sim.Snapshot().IsComplete)
}

func TestSimulationStopsOnContextCancel(t *testing.T) {
	clock := NewManualClock()
	e := New("run_1", sequentialScenario(3, time.Second), Hooks{})
	sim := NewSimulation(e, clock, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	waitForWaiter(t, clock)
	clock.Add(time.Second)
	waitForWaiter(t, clock)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	snap := sim.Snapshot()
	assert.True(t, snap.Cancelled)
	assert.False(t, snap.IsComplete)

	clock.Add(time.Minute)
	assert.Equal(t, snap, sim.Snapshot())
}
