package calendar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Color is the closed palette used to tell calendar sources apart.
type Color int

const (
	ColorBlue Color = iota
	ColorPurple
	ColorGreen
	ColorRed
	ColorOrange
	ColorPink
	ColorCyan
	ColorAmber
)

var colorNames = [...]string{
	ColorBlue:   "blue",
	ColorPurple: "purple",
	ColorGreen:  "green",
	ColorRed:    "red",
	ColorOrange: "orange",
	ColorPink:   "pink",
	ColorCyan:   "cyan",
	ColorAmber:  "amber",
}

var colorHex = [...]string{
	ColorBlue:   "#3b82f6",
	ColorPurple: "#a855f7",
	ColorGreen:  "#22c55e",
	ColorRed:    "#ef4444",
	ColorOrange: "#f97316",
	ColorPink:   "#ec4899",
	ColorCyan:   "#06b6d4",
	ColorAmber:  "#f59e0b",
}

// Colors lists the palette in assignment order.
func Colors() []Color {
	return []Color{ColorBlue, ColorPurple, ColorGreen, ColorRed, ColorOrange, ColorPink, ColorCyan, ColorAmber}
}

// DefaultColor assigns palette entries round-robin, for sources configured
// without an explicit color.
func DefaultColor(i int) Color {
	if i < 0 {
		i = -i
	}
	return Color(i % len(colorNames))
}

// ParseColor resolves a palette name (case-insensitive).
func ParseColor(s string) (Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range colorNames {
		if n == name {
			return Color(i), nil
		}
	}
	return ColorBlue, fmt.Errorf("calendar: unknown color %q", s)
}

func (c Color) valid() bool {
	return c >= 0 && int(c) < len(colorNames)
}

func (c Color) String() string {
	if !c.valid() {
		return colorNames[ColorBlue]
	}
	return colorNames[c]
}

// Hex returns the CSS color for c.
func (c Color) Hex() string {
	if !c.valid() {
		return colorHex[ColorBlue]
	}
	return colorHex[c]
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CalendarSource is one originating calendar feed.
type CalendarSource struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

// EventTime carries exactly one of DateTime (timed) or Date (all-day), as
// received from the provider.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// RawEvent is an event as delivered by a feed, merged across sources.
type RawEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	URL           string    `json:"url,omitempty"`
	CalendarID    string    `json:"calendarId"`
	CalendarColor Color     `json:"calendarColor"`
	Start         EventTime `json:"start"`
	End           EventTime `json:"end"`
}

// Position places a timed event inside a day column, in percent of the
// column height.
type Position struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// DisplayEvent is the render-ready projection of a RawEvent. It is rebuilt on
// every recomputation and never mutated afterwards.
type DisplayEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	URL           string    `json:"url,omitempty"`
	Start         time.Time `json:"startTime"`
	End           time.Time `json:"endTime"`
	IsAllDay      bool      `json:"isAllDay"`
	CalendarID    string    `json:"calendarId"`
	CalendarColor Color     `json:"calendarColor"`
	Position      *Position `json:"position,omitempty"`
}

// DateRange is an inclusive window of time.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the start of every calendar day touched by r, in order. A
// range whose end precedes its start has no days.
func (r DateRange) Days() []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	var days []time.Time
	last := StartOfDay(r.End)
	y, m, d := r.Start.Date()
	for i := 0; ; i++ {
		day := dayStart(y, m, d+i, r.Start.Location())
		if day.After(last) {
			return days
		}
		days = append(days, day)
	}
}

// SourceSet is a set of calendar source IDs. It marshals as a sorted array.
type SourceSet map[string]struct{}

// NewSourceSet builds a set from ids.
func NewSourceSet(ids ...string) SourceSet {
	s := make(SourceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s SourceSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in sorted order.
func (s SourceSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of s.
func (s SourceSet) Clone() SourceSet {
	out := make(SourceSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s SourceSet) key() string {
	return strings.Join(s.IDs(), "\x00")
}

func (s SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *SourceSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSourceSet(ids...)
	return nil
}
