package feed

import (
	"context"
	"fmt"
	"time"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	appLog "inkdash/internal/log"
)

// Window is the span of time a provider is asked for.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// WindowAround covers [now-backfill, now+ahead] at day granularity.
func WindowAround(now time.Time, backfillDays, aheadDays int) Window {
	return Window{
		Start:    calendar.StartOfDay(now).AddDate(0, 0, -backfillDays),
		End:      calendar.EndOfDay(now.AddDate(0, 0, aheadDays)),
		Location: now.Location(),
	}
}

// Provider yields raw events for a window.
type Provider interface {
	Name() string
	Events(ctx context.Context, w Window) ([]calendar.RawEvent, error)
}

// Sources lists every configured calendar, ICS first, then Google. A source
// without a valid color gets one by position.
func Sources(cfg *config.Config) []calendar.CalendarSource {
	out := make([]calendar.CalendarSource, 0, len(cfg.Calendars)+len(cfg.Google.Calendars))
	add := func(id, name, color string) {
		c, err := calendar.ParseColor(color)
		if err != nil {
			if color != "" {
				appLog.Warn("unknown calendar color, assigning default", "id", id, "color", color)
			}
			c = calendar.DefaultColor(len(out))
		}
		if name == "" {
			name = id
		}
		out = append(out, calendar.CalendarSource{ID: id, Name: name, Color: c})
	}
	for _, c := range cfg.Calendars {
		add(c.ID, c.Name, c.Color)
	}
	for _, c := range cfg.Google.Calendars {
		add(c.ID, c.Name, c.Color)
	}
	return out
}

// ICSSources pairs the ICS calendars in cfg with their resolved colors.
func ICSSources(cfg *config.Config) []Source {
	colors := make(map[string]calendar.Color)
	for _, s := range Sources(cfg) {
		colors[s.ID] = s.Color
	}
	out := make([]Source, 0, len(cfg.Calendars))
	for _, c := range cfg.Calendars {
		out = append(out, Source{ID: c.ID, Name: c.Name, Color: colors[c.ID], URL: c.URL})
	}
	return out
}

// ICSProvider fetches, parses and expands ICS subscriptions.
type ICSProvider struct {
	Fetcher *Fetcher
	Sources []Source
}

func (p *ICSProvider) Name() string { return "ics" }

// Events returns occurrences from every source that produced a body. It only
// fails when every source failed.
func (p *ICSProvider) Events(ctx context.Context, w Window) ([]calendar.RawEvent, error) {
	if len(p.Sources) == 0 {
		return nil, nil
	}
	results, errs := p.Fetcher.FetchAll(ctx, p.Sources)
	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("feed: all %d ICS sources failed: %w", len(errs), errs[0])
	}

	var parsed []ParsedEvent
	for _, res := range results {
		evs, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, evs...)
	}

	expanded, err := Expand(parsed, ExpandConfig{
		DisplayLocation: w.Location,
		RangeStart:      w.Start,
		RangeEnd:        w.End,
	})
	if err != nil {
		return nil, err
	}
	return ToRawEvents(expanded.Occurrences, p.Sources), nil
}

// ToRawEvents formats occurrences as provider-neutral raw events. Timed
// occurrences carry an RFC 3339 DateTime, all-day ones a Date.
func ToRawEvents(occs []Occurrence, sources []Source) []calendar.RawEvent {
	colors := make(map[string]calendar.Color, len(sources))
	for _, s := range sources {
		colors[s.ID] = s.Color
	}

	out := make([]calendar.RawEvent, 0, len(occs))
	for _, o := range occs {
		ev := calendar.RawEvent{
			ID:            o.SourceID + "-" + o.UID + "@" + o.InstanceKey,
			Title:         o.Summary,
			Description:   o.Description,
			Location:      o.Location,
			URL:           o.URL,
			CalendarID:    o.SourceID,
			CalendarColor: colors[o.SourceID],
		}
		if o.AllDay {
			ev.Start.Date = o.Start.Format("2006-01-02")
			ev.End.Date = o.End.Format("2006-01-02")
		} else {
			ev.Start.DateTime = o.Start.Format(time.RFC3339)
			ev.End.DateTime = o.End.Format(time.RFC3339)
		}
		out = append(out, ev)
	}
	return out
}

// Merge concatenates event lists, keeping the first event for each ID.
func Merge(lists ...[]calendar.RawEvent) []calendar.RawEvent {
	seen := make(map[string]bool)
	var out []calendar.RawEvent
	for _, list := range lists {
		for _, ev := range list {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			out = append(out, ev)
		}
	}
	return out
}
