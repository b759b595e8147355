// Package calendar turns a merged list of calendar events into the per-day,
// positioned columns the dashboard renders.
//
// Every date computation happens in the location carried by its time.Time
// argument. Callers pick the display location once (see config.Timezone) and
// convert into it; nothing here reads time.Local on its own. Day arithmetic
// counts calendar dates through dayStart, so a DST change, even one that skips
// midnight, never moves a day boundary onto another date.
package calendar

import (
	"fmt"
	"time"
)

// DefaultWeekStart is the first day of the week used across the dashboard.
// It is configurable (config.WeekStart), but one value is threaded through
// the controller to every range computation.
const DefaultWeekStart = time.Sunday

// StartOfDay returns the first instant of t's calendar day: 00:00:00.000, or
// the end of the gap where the zone skips midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return dayStart(y, m, d, t.Location())
}

// dayStart is the first instant of the date y-m-d in loc. Out-of-range days
// normalize the way time.Date does.
func dayStart(y int, m time.Month, d int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	want := time.Date(y, m, d, 12, 0, 0, 0, loc)
	if SameDay(t, want) {
		return t
	}
	// Midnight falls in a gap and time.Date resolved it onto the previous
	// day; the day begins where the new offset takes over.
	if _, end := t.ZoneBounds(); !end.IsZero() && end.After(t) {
		t = end
	}
	for !SameDay(t, want) && t.Before(want) {
		t = t.Add(time.Minute)
	}
	return t
}

// addDays moves t by n calendar days keeping its wall clock. A wall clock that
// does not exist on the target date becomes the start of that date.
func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	u := time.Date(y, m, d+n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if want := time.Date(y, m, d+n, 12, 0, 0, 0, t.Location()); !SameDay(u, want) {
		return dayStart(y, m, d+n, t.Location())
	}
	return u
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// WeekStart returns midnight of the first day of the week containing t.
func WeekStart(t time.Time, first time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(first) + 7) % 7
	y, m, d := t.Date()
	return dayStart(y, m, d-offset, t.Location())
}

// WeekEnd returns the last millisecond of the week containing t.
func WeekEnd(t time.Time, first time.Weekday) time.Time {
	return EndOfDay(addDays(WeekStart(t, first), 6))
}

// WeekDates returns the seven days of the week containing t, at midnight.
func WeekDates(t time.Time, first time.Weekday) []time.Time {
	offset := (int(t.Weekday()) - int(first) + 7) % 7
	y, m, d := t.Date()
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = dayStart(y, m, d-offset+i, t.Location())
	}
	return dates
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayKey is the bucket key for t's calendar day.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatRange renders a header label, collapsing the month and year when both
// ends share them:
//
//	Jan 1 – 7, 2024
//	Jan 28 – Feb 3, 2024
//	Dec 31, 2023 – Jan 6, 2024
func FormatRange(start, end time.Time) string {
	sameYear := start.Year() == end.Year()
	sameMonth := sameYear && start.Month() == end.Month()

	switch {
	case sameMonth:
		return fmt.Sprintf("%s %d – %d, %d", start.Format("Jan"), start.Day(), end.Day(), start.Year())
	case sameYear:
		return fmt.Sprintf("%s – %s, %d", start.Format("Jan 2"), end.Format("Jan 2"), start.Year())
	default:
		return fmt.Sprintf("%s – %s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006"))
	}
}
