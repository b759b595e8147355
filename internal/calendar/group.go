package calendar

import (
	"sort"
	"strings"
	"time"
)

// Buckets maps a DayKey to that day's events, sorted by start.
type Buckets map[string][]DisplayEvent

// untitled replaces empty event titles.
const untitled = "(No title)"

// localLayouts are accepted date-time forms without a zone offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const dateLayout = "2006-01-02"

// GroupEvents filters raw by source and range and buckets the survivors by
// the calendar day of their start. Every day in r gets a bucket, possibly
// empty. An empty enabled set applies no source filter.
//
// Times are resolved in r.Start's location. Events whose start cannot be
// parsed are dropped.
func GroupEvents(raw []RawEvent, r DateRange, enabled SourceSet) Buckets {
	days := r.Days()
	buckets := make(Buckets, len(days))
	if len(days) == 0 {
		return buckets
	}
	for _, d := range days {
		buckets[DayKey(d)] = []DisplayEvent{}
	}

	loc := r.Start.Location()
	for _, ev := range raw {
		if len(enabled) > 0 && !enabled.Has(ev.CalendarID) {
			continue
		}
		de, ok := project(ev, loc)
		if !ok || !r.Contains(de.Start) {
			continue
		}
		key := DayKey(de.Start)
		if _, ok := buckets[key]; !ok {
			continue
		}
		buckets[key] = append(buckets[key], de)
	}

	for key, events := range buckets {
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Start.Before(events[j].Start)
		})
		buckets[key] = events
	}
	return buckets
}

// Partition splits a bucket into all-day and timed events, keeping order.
func Partition(events []DisplayEvent) (allDay, timed []DisplayEvent) {
	allDay = []DisplayEvent{}
	timed = []DisplayEvent{}
	for _, ev := range events {
		if ev.IsAllDay {
			allDay = append(allDay, ev)
		} else {
			timed = append(timed, ev)
		}
	}
	return allDay, timed
}

func project(ev RawEvent, loc *time.Location) (DisplayEvent, bool) {
	start, allDay, ok := resolve(ev.Start, loc)
	if !ok {
		return DisplayEvent{}, false
	}

	end, _, ok := resolve(ev.End, loc)
	switch {
	case !ok && allDay:
		end = start.AddDate(0, 0, 1)
	case !ok:
		end = start
	case end.Before(start):
		end = start
	}

	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = untitled
	}

	return DisplayEvent{
		ID:            ev.ID,
		Title:         title,
		Description:   ev.Description,
		Location:      ev.Location,
		URL:           ev.URL,
		Start:         start,
		End:           end,
		IsAllDay:      allDay,
		CalendarID:    ev.CalendarID,
		CalendarColor: ev.CalendarColor,
	}, true
}

// resolve picks DateTime over Date. Zone-less date-times and dates are read
// in loc; zoned date-times are converted into it.
func resolve(et EventTime, loc *time.Location) (t time.Time, allDay bool, ok bool) {
	if s := strings.TrimSpace(et.DateTime); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), false, true
		}
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, false, true
			}
		}
		return time.Time{}, false, false
	}
	if s := strings.TrimSpace(et.Date); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}
