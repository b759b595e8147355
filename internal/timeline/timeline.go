// Package timeline lays out the daily routine strip shown under the
// calendar: configured marks (alarm, work, bedtime...) on a horizontal axis
// between two hours, plus a dot for the current time.
package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	appLog "inkdash/internal/log"
)

// Kinds of marks.
const (
	KindMarker     = "marker"
	KindRangeStart = "range-start"
	KindRangeEnd   = "range-end"
)

// Mark is a positioned routine entry.
type Mark struct {
	Time  string `json:"time"`
	Label string `json:"label"`
	Type  string `json:"type"`
	// Left is the horizontal position in percent of the strip.
	Left float64 `json:"left"`
	// Display is the short 12h label, e.g. "6:30" or "7am".
	Display string `json:"display"`
}

// Span is a shaded interval between a range-start and the next range-end.
type Span struct {
	Label string  `json:"label"`
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Strip is the laid-out timeline for one day.
type Strip struct {
	Day       string `json:"day"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Marks     []Mark `json:"marks"`
	Spans     []Span `json:"spans"`
	// Now is the current-time position, nil outside the strip's hours.
	Now *float64 `json:"now,omitempty"`
}

// ForDay picks the schedule for t's weekday: the first override naming the
// day, else the default.
func ForDay(cfg config.TimelineConfig, t time.Time) []config.TimelineMark {
	day := strings.ToLower(t.Weekday().String())
	for _, o := range cfg.Overrides {
		for _, d := range o.Days {
			if strings.ToLower(strings.TrimSpace(d)) == day {
				return o.Marks
			}
		}
	}
	return cfg.Default
}

// Layout positions the schedule for now's day. Marks with unparseable times
// are logged and dropped.
func Layout(cfg config.TimelineConfig, now time.Time) Strip {
	axis := calendar.Uniform{DayStart: float64(cfg.StartHour), DayEnd: float64(cfg.EndHour)}
	day := calendar.StartOfDay(now)

	strip := Strip{
		Day:       calendar.DayKey(now),
		StartHour: cfg.StartHour,
		EndHour:   cfg.EndHour,
		Marks:     []Mark{},
		Spans:     []Span{},
	}

	var open *Mark
	for _, m := range ForDay(cfg, now) {
		h, mm, err := parseClock(m.Time)
		if err != nil {
			appLog.Warn("timeline mark skipped", "time", m.Time, "label", m.Label, "reason", err)
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), h, mm, 0, 0, day.Location())
		mark := Mark{
			Time:    m.Time,
			Label:   m.Label,
			Type:    m.Type,
			Left:    left(axis, at),
			Display: display(h, mm),
		}
		strip.Marks = append(strip.Marks, mark)

		switch m.Type {
		case KindRangeStart:
			start := mark
			open = &start
		case KindRangeEnd:
			if open != nil {
				strip.Spans = append(strip.Spans, Span{
					Label: open.Label,
					Left:  open.Left,
					Width: mark.Left - open.Left,
				})
				open = nil
			}
		}
	}

	if h := hours(now); h >= axis.DayStart && h <= axis.DayEnd {
		pos := left(axis, now)
		strip.Now = &pos
	}
	return strip
}

// left places t on the axis in percent, 0 before the first hour and 100 from
// the last.
func left(axis calendar.Uniform, t time.Time) float64 {
	span := axis.DayEnd - axis.DayStart
	if span <= 0 {
		return 0
	}
	pos := (hours(t) - axis.DayStart) / span * 100
	return math.Min(100, math.Max(0, pos))
}

func hours(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("timeline: %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("timeline: bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("timeline: bad minute in %q", s)
	}
	return h, m, nil
}

func display(h, m int) string {
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	if m == 0 {
		return fmt.Sprintf("%d%s", h12, suffix)
	}
	return fmt.Sprintf("%d:%02d", h12, m)
}
