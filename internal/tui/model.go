// Package tui is the terminal dashboard. The model only turns the latest
// view state into text; fetching and merging happen in the reconcile loop.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/view"
)

// Selector changes the active symbol
type Selector interface {
	Select(symbol string) error
}

// Toggler flips the bot between paused and running
type Toggler interface {
	Toggle(ctx context.Context) (core.BotStatus, error)
}

// Deps are the collaborators the model drives from key presses
type Deps struct {
	Selector Selector
	Toggler  Toggler
	// Refresh forces an extra cycle
	Refresh func()
	Chart   *chart.Terminal
	// Location renders timestamps. Defaults to time.Local.
	Location *time.Location
	Source   string
}

type stateMsg view.State

type toggledMsg struct {
	status core.BotStatus
	err    error
}

// Model is the bubbletea model
type Model struct {
	deps Deps
	ctx  context.Context

	state    view.State
	hasState bool
	cursor   int
	width    int
	height   int
	notice   string
}

// New creates the model. ctx bounds control requests.
func New(ctx context.Context, deps Deps) Model {
	if deps.Chart == nil {
		deps.Chart = chart.NewTerminal(defaultWidth-leftWidth-4, chartHeight)
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return Model{deps: deps, ctx: ctx, width: defaultWidth, height: defaultHeight}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deps.Chart.Resize(m.chartWidth(), chartHeight)
		return m, nil
	case stateMsg:
		m.state = view.State(msg)
		m.hasState = true
		m.clampCursor()
		return m, nil
	case toggledMsg:
		if msg.err != nil {
			m.notice = "pause/resume failed, state unchanged"
			return m, nil
		}
		m.notice = ""
		m.state.Paused = msg.status.Paused()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.state.Scanner)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.state.Scanner) && m.deps.Selector != nil {
			if err := m.deps.Selector.Select(m.state.Scanner[m.cursor].Symbol); err != nil {
				m.notice = err.Error()
			}
		}
	case "p":
		if m.deps.Toggler != nil {
			return m, m.toggle()
		}
	case "r":
		if m.deps.Refresh != nil {
			m.deps.Refresh()
		}
	}
	return m, nil
}

func (m Model) toggle() tea.Cmd {
	toggler, ctx := m.deps.Toggler, m.ctx
	return func() tea.Msg {
		status, err := toggler.Toggle(ctx)
		return toggledMsg{status: status, err: err}
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.state.Scanner) {
		m.cursor = len(m.state.Scanner) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Renderer forwards each cycle's state into a running program
type Renderer struct {
	program *tea.Program
}

// NewRenderer wraps p
func NewRenderer(p *tea.Program) *Renderer {
	return &Renderer{program: p}
}

func (r *Renderer) Render(state view.State) {
	r.program.Send(stateMsg(state))
}
