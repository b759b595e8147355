package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"inkdash/internal/calendar"
)

// ReloadFunc fetches a fresh event snapshot.
type ReloadFunc func(ctx context.Context) ([]calendar.RawEvent, error)

type Options struct {
	Controller *calendar.Controller
	// Reload backs the r key and the initial load. Nil disables both.
	Reload ReloadFunc
	// ReloadTimeout bounds a single reload. Zero means one minute.
	ReloadTimeout time.Duration
}

// Model is the interactive calendar. The controller is only touched from
// Update and View, which bubbletea calls on one goroutine.
type Model struct {
	ctrl    *calendar.Controller
	reload  ReloadFunc
	timeout time.Duration

	width   int
	height  int
	loading bool
	message string

	styles Styles
}

type eventsLoadedMsg struct {
	events []calendar.RawEvent
	err    error
}

func NewModel(opts Options) *Model {
	m := &Model{
		ctrl:    opts.Controller,
		reload:  opts.Reload,
		timeout: opts.ReloadTimeout,
		width:   80,
		styles:  DefaultStyles(),
	}
	if m.timeout <= 0 {
		m.timeout = time.Minute
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return m.reloadCmd()
}

func (m *Model) reloadCmd() tea.Cmd {
	if m.reload == nil || m.loading {
		return nil
	}
	m.loading = true
	reload, timeout := m.reload, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		events, err := reload(ctx)
		return eventsLoadedMsg{events: events, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case eventsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.message = "Refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.ctrl.SetEvents(msg.events)
		m.message = fmt.Sprintf("Loaded %d events", len(msg.events))
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "h", "left":
		m.ctrl.Previous()
	case "l", "right":
		m.ctrl.Next()
	case "t":
		m.ctrl.Today()
	case "m":
		m.ctrl.SetMode(nextMode(m.ctrl.State().Mode))
	case "r":
		if m.reload == nil {
			m.message = "Refresh not available"
			return m, nil
		}
		if m.loading {
			return m, nil
		}
		m.message = "Refreshing..."
		return m, m.reloadCmd()
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '8' {
			m.toggle(int(key[0] - '1'))
		}
	}
	return m, nil
}

func nextMode(cur calendar.Mode) calendar.Mode {
	switch cur {
	case calendar.ModeWeek:
		return calendar.ModeThreeDay
	case calendar.ModeThreeDay:
		return calendar.ModeFiveDay
	default:
		return calendar.ModeWeek
	}
}

// toggle flips the i-th source in legend order.
func (m *Model) toggle(i int) {
	sources := m.ctrl.Sources()
	if i >= len(sources) {
		return
	}
	m.ctrl.ToggleSource(sources[i].ID)
}

func (m *Model) View() string {
	body := renderAgenda(m.ctrl.View(), m.width, m.styles)

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(m.styles.Message.Render(m.message))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Help.Render(helpLine))
	return lipgloss.NewStyle().MaxWidth(max(m.width, minWidth)).Render(b.String())
}

const helpLine = "h/l prev/next  t today  m mode  1-8 toggle  r refresh  q quit"

// Run starts the interactive program and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
