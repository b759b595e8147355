package feed

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "inkdash/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// Occurrence is one concrete instance of an event after recurrence
// expansion, in the display location.
type Occurrence struct {
	SourceID string
	UID      string
	// InstanceKey tells occurrences of one recurring event apart.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	URL         string

	AllDay bool
	Start  time.Time
	End    time.Time
}

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation receives every occurrence. Nil means time.Local.
	DisplayLocation *time.Location

	// RangeStart and RangeEnd bound the occurrences returned (inclusive).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means 5000.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded occurrences, sorted by start.
type ExpandResult struct {
	Occurrences []Occurrence
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// Expand turns parsed events into occurrences inside the configured window.
// It handles single events, RRULE recurrences, EXDATE removals, RECURRENCE-ID
// overrides and cancelled instances. A bad RRULE is logged and that event
// skipped.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("feed: expand range end is before start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Base events and overrides are keyed by source and UID; two feeds may
	// reuse a UID.
	type key struct{ source, uid string }
	base := make(map[key][]ParsedEvent)
	overrides := make(map[key][]ParsedEvent)
	var order []key

	for _, ev := range events {
		if ev.Floating {
			ev = reanchor(ev, cfg.DisplayLocation)
		}
		k := key{ev.Source.ID, ev.UID}
		if ev.IsOverride && ev.Recurrence != nil {
			overrides[k] = append(overrides[k], ev)
			continue
		}
		if _, seen := base[k]; !seen {
			order = append(order, k)
		}
		base[k] = append(base[k], ev)
	}

	for _, k := range order {
		truncated := false
		for _, ev := range base[k] {
			occ, hitCap := expandEvent(ev, overrides[k], cfg)
			truncated = truncated || hitCap
			result.Occurrences = append(result.Occurrences, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, k.uid)
			appLog.Warn("expand: occurrences truncated", "source", k.source, "uid", k.uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingle(ev, overrides, cfg), false
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	if ev.Cancelled || !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []Occurrence{makeOccurrence(ev, ev.Start, ev.End, ev.Start, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	opt, err := rrule.StrToROptionInLocation(ev.RawRRule, ev.Start.Location())
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Start the search one event-length early so an occurrence running into
	// the window is kept.
	dur := ev.End.Sub(ev.Start)
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())

	starts := set.Between(from, to, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		instance := ev
		start, end := s, s.Add(dur)
		if ev.AllDay {
			start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			days := int(dur.Hours()/24 + 0.5)
			if days < 1 {
				days = 1
			}
			end = start.AddDate(0, 0, days)
		}
		if o, ok := findOverride(overrides, s); ok {
			instance = o
			start, end = o.Start, o.End
		}
		if instance.Cancelled || !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(instance, start, end, s, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverride matches an override by RECURRENCE-ID instant.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence converts into displayLoc. instance is the unmodified
// recurrence start, so an override keeps the key of the slot it replaces.
func makeOccurrence(ev ParsedEvent, start, end, instance time.Time, displayLoc *time.Location) Occurrence {
	occ := Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		URL:         ev.URL,
		AllDay:      ev.AllDay,
		Start:       start.In(displayLoc),
		End:         end.In(displayLoc),
	}
	if ev.AllDay {
		// Dates are floating; keep the calendar day, not the instant.
		occ.Start = rewall(start, displayLoc)
		occ.End = rewall(end, displayLoc)
	}
	occ.InstanceKey = instance.In(displayLoc).Format("20060102T150405")
	return occ
}

// reanchor re-reads a floating event's wall-clock times in loc.
func reanchor(ev ParsedEvent, loc *time.Location) ParsedEvent {
	ev.Start = rewall(ev.Start, loc)
	ev.End = rewall(ev.End, loc)
	exdates := make([]time.Time, len(ev.ExDates))
	for i, ex := range ev.ExDates {
		exdates[i] = rewall(ex, loc)
	}
	ev.ExDates = exdates
	if ev.Recurrence != nil {
		rid := rewall(*ev.Recurrence, loc)
		ev.Recurrence = &rid
	}
	return ev
}

func rewall(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// overlaps treats events as half-open [start, end) against an inclusive
// window. Zero-length events overlap when their start is inside.
func overlaps(start, end, winStart, winEnd time.Time) bool {
	if start.After(winEnd) {
		return false
	}
	if end.Equal(start) {
		return !start.Before(winStart)
	}
	return end.After(winStart)
}
