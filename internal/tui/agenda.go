// Package tui renders the calendar view in a terminal: a static agenda for
// scripts and an interactive bubbletea program.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"inkdash/internal/calendar"
)

// Styles groups the agenda's lipgloss styles.
type Styles struct {
	Title   lipgloss.Style
	Day     lipgloss.Style
	Today   lipgloss.Style
	Time    lipgloss.Style
	Empty   lipgloss.Style
	Detail  lipgloss.Style
	Legend  lipgloss.Style
	Help    lipgloss.Style
	Message lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true).
			Underline(true),
		Day: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		Today: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true),
		Time: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")),
		Empty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true),
		Detail: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Legend: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Message: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
	}
}

const (
	minWidth = 30
	// timeColumn is "09:00-10:30" plus a gap.
	timeColumn = 13
	allDayText = "all day"
	// eventIndent is where event text starts: margin, time column, bullet.
	eventIndent = 2 + timeColumn + 3
)

// RenderAgenda lays the view out as a day-by-day list no wider than width.
func RenderAgenda(v calendar.View, width int) string {
	return renderAgenda(v, width, DefaultStyles())
}

func renderAgenda(v calendar.View, width int, st Styles) string {
	if width < minWidth {
		width = minWidth
	}

	colors := make(map[string]calendar.Color, len(v.Sources))
	for _, src := range v.Sources {
		colors[src.ID] = src.Color
	}

	var lines []string
	lines = append(lines, st.Title.Render(fmt.Sprintf("%s (%s)", v.Title, v.Mode)))
	if legend := renderLegend(v, st); legend != "" {
		lines = append(lines, wordwrap.String(legend, width))
	}

	for _, day := range v.Days {
		lines = append(lines, "")
		heading := day.Date.Format("Mon Jan 2")
		if day.IsToday {
			lines = append(lines, st.Today.Render(heading+"  today"))
		} else {
			lines = append(lines, st.Day.Render(heading))
		}

		if len(day.AllDay) == 0 && len(day.Timed) == 0 {
			lines = append(lines, "  "+st.Empty.Render("no events"))
			continue
		}
		for _, ev := range day.AllDay {
			lines = append(lines, renderEvent(ev, allDayText, colors, width, st)...)
		}
		for _, ev := range day.Timed {
			span := ev.Start.Format("15:04") + "-" + ev.End.Format("15:04")
			lines = append(lines, renderEvent(ev, span, colors, width, st)...)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// renderEvent prints the time column and a colored bullet, then wraps the
// title and location into the remaining width.
func renderEvent(ev calendar.DisplayEvent, when string, colors map[string]calendar.Color, width int, st Styles) []string {
	color, ok := colors[ev.CalendarID]
	if !ok {
		color = ev.CalendarColor
	}
	bullet := lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex())).Render("●")

	text := ev.Title
	if ev.Location != "" {
		text += " @ " + ev.Location
	}
	textWidth := width - eventIndent
	wrapped := strings.Split(wordwrap.String(text, textWidth), "\n")

	lines := make([]string, 0, len(wrapped))
	lines = append(lines, fmt.Sprintf("  %s%s %s",
		st.Time.Render(when),
		strings.Repeat(" ", max(1, timeColumn-len(when))),
		bullet+" "+wrapped[0],
	))
	if len(wrapped) > 1 {
		rest := indent.String(strings.Join(wrapped[1:], "\n"), eventIndent)
		for _, l := range strings.Split(rest, "\n") {
			lines = append(lines, st.Detail.Render(l))
		}
	}
	return lines
}

func renderLegend(v calendar.View, st Styles) string {
	if len(v.Sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v.Sources))
	for i, src := range v.Sources {
		mark := "x"
		if len(v.Enabled) > 0 && !v.Enabled.Has(src.ID) {
			mark = "-"
		}
		name := src.Name
		if name == "" {
			name = src.ID
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(src.Color.Hex())).Render("●")
		parts = append(parts, fmt.Sprintf("%d[%s] %s %s", i+1, mark, swatch, name))
	}
	return st.Legend.Render(strings.Join(parts, "  "))
}
