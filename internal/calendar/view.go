package calendar

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode is the granularity of the visible window.
type Mode int

const (
	ModeWeek Mode = iota
	ModeThreeDay
	ModeFiveDay
)

// Days is the navigation step and column count of the mode.
func (m Mode) Days() int {
	switch m {
	case ModeThreeDay:
		return 3
	case ModeFiveDay:
		return 5
	default:
		return 7
	}
}

func (m Mode) String() string {
	switch m {
	case ModeThreeDay:
		return "3day"
	case ModeFiveDay:
		return "5day"
	default:
		return "week"
	}
}

// ParseMode accepts "week", "3day" and "5day" (and their spelled-out forms).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "7day":
		return ModeWeek, nil
	case "3day", "three-day", "3":
		return ModeThreeDay, nil
	case "5day", "five-day", "5":
		return ModeFiveDay, nil
	default:
		return ModeWeek, fmt.Errorf("calendar: unknown view mode %q", s)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ViewState is everything the user can change about the calendar view.
type ViewState struct {
	Anchor  time.Time `json:"anchor"`
	Mode    Mode      `json:"mode"`
	Enabled SourceSet `json:"enabled"`
}

// DayColumn is one rendered day.
type DayColumn struct {
	Date    time.Time      `json:"date"`
	Key     string         `json:"key"`
	IsToday bool           `json:"isToday"`
	AllDay  []DisplayEvent `json:"allDay"`
	Timed   []DisplayEvent `json:"timed"`
}

// View is the projection handed to renderers.
type View struct {
	Mode    Mode             `json:"mode"`
	Range   DateRange        `json:"range"`
	Title   string           `json:"title"`
	Sources []CalendarSource `json:"sources"`
	Enabled SourceSet        `json:"enabled"`
	Days    []DayColumn      `json:"days"`
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Location is the display timezone. Nil means time.Local.
	Location *time.Location
	// WeekStart is the first day of the week for ModeWeek.
	WeekStart time.Weekday
	// Layout positions timed events. Nil means Uniform over 0-24.
	Layout Layout
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Controller owns the ViewState and recomputes the visible projection. It is
// not safe for concurrent use; callers serialise access.
type Controller struct {
	state     ViewState
	loc       *time.Location
	weekStart time.Weekday
	layout    Layout
	now       func() time.Time

	sources []CalendarSource
	known   SourceSet

	events     []RawEvent
	generation uint64

	memoKey  string
	memoView View
}

// NewController starts in week mode anchored on today with every source
// enabled.
func NewController(opts ControllerOptions) *Controller {
	c := &Controller{
		loc:       opts.Location,
		weekStart: opts.WeekStart,
		layout:    opts.Layout,
		now:       opts.Now,
		known:     SourceSet{},
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.layout == nil {
		c.layout = Uniform{DayStart: 0, DayEnd: 24}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.state = ViewState{
		Anchor:  c.today(),
		Mode:    ModeWeek,
		Enabled: SourceSet{},
	}
	return c
}

func (c *Controller) today() time.Time {
	return c.now().In(c.loc)
}

// State returns a copy of the current view state.
func (c *Controller) State() ViewState {
	s := c.state
	s.Enabled = c.state.Enabled.Clone()
	return s
}

// Restore replaces the view state, e.g. from a persisted snapshot.
func (c *Controller) Restore(s ViewState) {
	if s.Anchor.IsZero() {
		s.Anchor = c.today()
	}
	if s.Enabled == nil {
		s.Enabled = SourceSet{}
	}
	s.Anchor = s.Anchor.In(c.loc)
	s.Enabled = s.Enabled.Clone()
	c.state = s
}

// SetMode switches the granularity and re-centres on today.
func (c *Controller) SetMode(m Mode) {
	c.state.Mode = m
	c.state.Anchor = c.today()
}

// Previous moves the anchor back by one page.
func (c *Controller) Previous() {
	c.state.Anchor = addDays(c.state.Anchor, -c.state.Mode.Days())
}

// Next moves the anchor forward by one page.
func (c *Controller) Next() {
	c.state.Anchor = addDays(c.state.Anchor, c.state.Mode.Days())
}

// Today resets the anchor to now.
func (c *Controller) Today() {
	c.state.Anchor = c.today()
}

// ToggleSource flips id's membership in the enabled set.
func (c *Controller) ToggleSource(id string) {
	if c.state.Enabled.Has(id) {
		delete(c.state.Enabled, id)
		return
	}
	c.state.Enabled[id] = struct{}{}
}

// SetSources records the configured sources. Sources seen for the first time
// are enabled; existing toggles are kept.
func (c *Controller) SetSources(sources []CalendarSource) {
	c.sources = append([]CalendarSource(nil), sources...)
	c.memoKey = ""
	for _, s := range sources {
		if c.known.Has(s.ID) {
			continue
		}
		c.known[s.ID] = struct{}{}
		c.state.Enabled[s.ID] = struct{}{}
	}
}

// Sources returns the configured sources.
func (c *Controller) Sources() []CalendarSource {
	return append([]CalendarSource(nil), c.sources...)
}

// SetLayout swaps the positioning strategy.
func (c *Controller) SetLayout(l Layout) {
	if l == nil {
		l = Uniform{DayStart: 0, DayEnd: 24}
	}
	c.layout = l
	c.memoKey = ""
}

// SetEvents replaces the raw event list the projection is computed from.
func (c *Controller) SetEvents(events []RawEvent) {
	c.events = events
	c.generation++
}

// Range is the visible window for the current state.
func (c *Controller) Range() DateRange {
	return RangeFor(c.state.Anchor, c.state.Mode, c.weekStart)
}

// RangeFor computes the visible window for an anchor and mode.
func RangeFor(anchor time.Time, mode Mode, weekStart time.Weekday) DateRange {
	if mode == ModeWeek {
		return DateRange{Start: WeekStart(anchor, weekStart), End: WeekEnd(anchor, weekStart)}
	}
	start := StartOfDay(anchor)
	return DateRange{Start: start, End: EndOfDay(addDays(start, mode.Days()-1))}
}

// View projects the current events for the current state. Results are reused
// until the events, the range, the enabled set or the sources change.
func (c *Controller) View() View {
	r := c.Range()
	today := DayKey(c.today())
	key := fmt.Sprintf("%d|%s|%s|%s|%s|%s", c.generation, c.state.Mode, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), c.state.Enabled.key(), today)
	if key == c.memoKey {
		return c.memoView
	}

	v := Project(c.events, r, c.state.Enabled, c.layout, today)
	v.Mode = c.state.Mode
	v.Sources = c.Sources()
	v.Enabled = c.state.Enabled.Clone()

	c.memoKey = key
	c.memoView = v
	return v
}

// Project groups raw into day columns over r and positions the timed events.
// todayKey marks the column for today, if visible.
func Project(raw []RawEvent, r DateRange, enabled SourceSet, layout Layout, todayKey string) View {
	buckets := GroupEvents(raw, r, enabled)
	days := r.Days()

	v := View{
		Range: r,
		Title: FormatRange(r.Start, r.End),
		Days:  make([]DayColumn, 0, len(days)),
	}
	for _, d := range days {
		key := DayKey(d)
		allDay, timed := Partition(buckets[key])
		for i := range timed {
			p := layout.Position(timed[i].Start, timed[i].End)
			timed[i].Position = &p
		}
		v.Days = append(v.Days, DayColumn{
			Date:    d,
			Key:     key,
			IsToday: key == todayKey,
			AllDay:  allDay,
			Timed:   timed,
		})
	}
	return v
}
