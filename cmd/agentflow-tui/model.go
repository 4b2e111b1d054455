package main

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/lifecycle"
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Run    key.Binding
	Cancel key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Run, k.Cancel, k.Reset, k.Quit}
}
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev scenario")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next scenario")),
	Run:    key.NewBinding(key.WithKeys("enter", "r"), key.WithHelp("⏎/r", "run")),
	Cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
	Reset:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// transitionMsg reports that the mounted run changed.
type transitionMsg struct{}

type completedMsg struct{ summary string }

type model struct {
	catalog  *catalog.Catalog
	keys     []string
	cursor   int
	ctrl     *lifecycle.Controller
	activity chan struct{}
	done     chan string

	view    feed.View
	notice  string
	spinner spinner.Model
	help    help.Model
	width   int
}

func newModel(cat *catalog.Catalog, factory lifecycle.Factory) *model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(colorTitle)

	m := &model{
		catalog:  cat,
		keys:     cat.Keys(),
		activity: make(chan struct{}, 1),
		done:     make(chan string, 1),
		spinner:  sp,
		help:     help.New(),
	}
	m.ctrl = lifecycle.New(lifecycle.Options{
		Factory: factory,
		OnWorkflowComplete: func(_, summary string) {
			select {
			case m.done <- summary:
			default:
			}
		},
		Logger: discardLogger(),
	})
	// Listeners run on the producer goroutine; they only signal.
	m.ctrl.Subscribe(func(lifecycle.Event) {
		select {
		case m.activity <- struct{}{}:
		default:
		}
	})
	m.selectScenario(0)
	return m
}

func (m *model) selectScenario(i int) {
	if len(m.keys) == 0 {
		return
	}
	m.cursor = i
	m.ctrl.Unmount()
	sc, err := m.catalog.Get(m.keys[i])
	if err != nil {
		m.notice = err.Error()
		return
	}
	if err := m.ctrl.Mount(sc); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.refresh()
}

func (m *model) refresh() {
	snap, ok := m.ctrl.Snapshot()
	if !ok {
		m.view = feed.View{}
		return
	}
	state := m.ctrl.State()
	if state == domain.ControllerRunning && snap.IsTerminal() {
		switch {
		case snap.IsComplete:
			state = domain.ControllerComplete
		case snap.Failed:
			state = domain.ControllerFailed
		default:
			state = domain.ControllerCancelled
		}
	}
	m.view = feed.Build(snap)
	m.view.State = string(state)
}

func (m *model) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.activity:
			return transitionMsg{}
		case summary := <-m.done:
			return completedMsg{summary: summary}
		}
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivity())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case transitionMsg:
		m.refresh()
		return m, m.waitForActivity()

	case completedMsg:
		m.refresh()
		m.notice = msg.summary
		return m, m.waitForActivity()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// the run goroutine sets the final state after the last transition
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.ctrl.Unmount()
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.selectScenario(m.cursor - 1)
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.keys)-1 {
				m.selectScenario(m.cursor + 1)
			}
		case key.Matches(msg, keys.Run):
			if !m.ctrl.RunAgent() {
				m.notice = "cannot run from " + string(m.ctrl.State())
			} else {
				m.notice = ""
			}
		case key.Matches(msg, keys.Cancel):
			if !m.ctrl.CancelAgent() {
				m.notice = "nothing to cancel"
			}
		case key.Matches(msg, keys.Reset):
			if m.ctrl.ResetAgent() {
				m.notice = ""
			}
		}
		m.refresh()
	}
	return m, nil
}
