package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/engine"
	"github.com/xiaot623/agentflow/internal/lifecycle"
)

func testModel(t *testing.T) (*model, *engine.ManualClock) {
	t.Helper()
	clock := engine.NewManualClock()
	m := newModel(catalog.Default(), lifecycle.NewFactory(lifecycle.FactoryConfig{Clock: clock}))
	t.Cleanup(m.ctrl.Unmount)
	return m, clock
}

func press(m *model, k tea.KeyMsg) {
	m.Update(k)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSelectingScenarioMountsIt(t *testing.T) {
	m, _ := testModel(t)
	require.NotEmpty(t, m.keys)
	assert.Equal(t, m.keys[0], m.view.RunKey)
	assert.Equal(t, string(domain.ControllerIdle), m.view.State)

	press(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	assert.Equal(t, m.keys[1], m.view.RunKey)

	press(m, tea.KeyMsg{Type: tea.KeyUp})
	press(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)
}

func TestRunCancelReset(t *testing.T) {
	m, clock := testModel(t)

	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, domain.ControllerRunning, m.ctrl.State())
	require.Eventually(t, func() bool { return clock.Waiters() > 0 }, time.Second, time.Millisecond)

	press(m, runes("c"))
	assert.Equal(t, string(domain.ControllerCancelled), m.view.State)

	press(m, runes("c"))
	assert.Equal(t, "nothing to cancel", m.notice)

	press(m, runes("x"))
	assert.Equal(t, string(domain.ControllerIdle), m.view.State)
	assert.Equal(t, 0, m.view.Progress.Percent)
}

func TestViewRendersStages(t *testing.T) {
	m, _ := testModel(t)
	m.width = 120
	out := m.View()
	assert.Contains(t, out, m.keys[0])
	for _, s := range m.view.Stages {
		assert.Contains(t, out, s.DisplayName)
	}
}

func TestQuitUnmounts(t *testing.T) {
	m, _ := testModel(t)
	press(m, tea.KeyMsg{Type: tea.KeyEnter})

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, domain.ControllerUnmounted, m.ctrl.State())
}
