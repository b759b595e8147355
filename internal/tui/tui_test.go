package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"inkdash/internal/calendar"
)

var now = time.Date(2024, time.January, 3, 8, 0, 0, 0, time.UTC)

func testController() *calendar.Controller {
	c := calendar.NewController(calendar.ControllerOptions{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	c.SetSources([]calendar.CalendarSource{
		{ID: "work", Name: "Work", Color: calendar.ColorBlue},
		{ID: "home", Name: "Home", Color: calendar.ColorGreen},
	})
	c.SetEvents(testEvents())
	return c
}

func testEvents() []calendar.RawEvent {
	return []calendar.RawEvent{
		{
			ID: "standup", Title: "Standup", CalendarID: "work",
			Location: "Room 4",
			Start:    calendar.EventTime{DateTime: "2024-01-03T09:00:00Z"},
			End:      calendar.EventTime{DateTime: "2024-01-03T09:15:00Z"},
		},
		{
			ID: "trip", Title: "School trip", CalendarID: "home",
			Start: calendar.EventTime{Date: "2024-01-03"},
			End:   calendar.EventTime{Date: "2024-01-04"},
		},
		{
			ID: "review", CalendarID: "work",
			Title: "Quarterly planning review with the whole platform group and guests",
			Start: calendar.EventTime{DateTime: "2024-01-04T14:00:00Z"},
			End:   calendar.EventTime{DateTime: "2024-01-04T15:30:00Z"},
		},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRenderAgenda(t *testing.T) {
	out := RenderAgenda(testController().View(), 60)

	for _, want := range []string{
		"Dec 31, 2023 – Jan 6, 2024 (week)",
		"Wed Jan 3",
		"today",
		"all day",
		"School trip",
		"09:00-09:15",
		"Standup @ Room 4",
		"no events",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("agenda missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "School trip") > strings.Index(out, "Standup") {
		t.Error("all-day event not listed before timed events")
	}
}

func TestRenderAgendaWraps(t *testing.T) {
	const width = 40
	out := RenderAgenda(testController().View(), width)

	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > width && !strings.Contains(line, "–") {
			t.Errorf("line wider than %d (%d): %q", width, w, line)
		}
	}
	if !strings.Contains(out, strings.Repeat(" ", eventIndent)+"whole") &&
		!strings.Contains(out, strings.Repeat(" ", eventIndent)+"platform") {
		t.Errorf("long title not wrapped under the text column:\n%s", out)
	}
}

func TestModelNavigation(t *testing.T) {
	c := testController()
	m := NewModel(Options{Controller: c})

	start := c.Range().Start
	m.Update(key("l"))
	if got := c.Range().Start; !got.Equal(start.AddDate(0, 0, 7)) {
		t.Errorf("after l: %v", got)
	}
	m.Update(key("h"))
	m.Update(key("h"))
	if got := c.Range().Start; !got.Equal(start.AddDate(0, 0, -7)) {
		t.Errorf("after h h: %v", got)
	}
	m.Update(key("t"))
	if got := c.Range().Start; !got.Equal(start) {
		t.Errorf("after t: %v", got)
	}

	for _, want := range []calendar.Mode{calendar.ModeThreeDay, calendar.ModeFiveDay, calendar.ModeWeek} {
		m.Update(key("m"))
		if got := c.State().Mode; got != want {
			t.Errorf("after m: mode = %v, want %v", got, want)
		}
	}
}

func TestModelToggleSources(t *testing.T) {
	c := testController()
	m := NewModel(Options{Controller: c})

	m.Update(key("2"))
	if c.State().Enabled.Has("home") {
		t.Error("2 did not toggle the second source off")
	}
	if strings.Contains(m.View(), "School trip") {
		t.Error("disabled source still rendered")
	}
	m.Update(key("8"))
	m.Update(key("2"))
	if !c.State().Enabled.Has("home") {
		t.Error("2 did not toggle the second source back on")
	}
}

func TestModelQuit(t *testing.T) {
	m := NewModel(Options{Controller: testController()})
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestModelReload(t *testing.T) {
	c := calendar.NewController(calendar.ControllerOptions{Location: time.UTC, Now: func() time.Time { return now }})
	calls := 0
	m := NewModel(Options{
		Controller: c,
		Reload: func(ctx context.Context) ([]calendar.RawEvent, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("feed down")
			}
			return testEvents(), nil
		},
	})

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init returned no reload command")
	}
	m.Update(cmd())
	if !strings.Contains(m.View(), "Standup") {
		t.Error("loaded events not rendered")
	}
	if !strings.Contains(m.View(), "Loaded 3 events") {
		t.Error("load message missing")
	}

	_, cmd = m.Update(key("r"))
	if cmd == nil {
		t.Fatal("r returned no command")
	}
	m.Update(cmd())
	view := m.View()
	if !strings.Contains(view, "Refresh failed") || !strings.Contains(view, "Standup") {
		t.Errorf("failed reload should keep the last events and report:\n%s", view)
	}
}

func TestModelWithoutReload(t *testing.T) {
	m := NewModel(Options{Controller: testController()})
	if cmd := m.Init(); cmd != nil {
		t.Error("Init without reload returned a command")
	}
	if _, cmd := m.Update(key("r")); cmd != nil {
		t.Error("r without reload returned a command")
	}
}
