package timeline

import (
	"math"
	"testing"
	"time"

	"inkdash/internal/config"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestForDay(t *testing.T) {
	cfg := config.TimelineConfig{
		StartHour: 6,
		EndHour:   23,
		Default:   []config.TimelineMark{{Time: "07:00", Label: "Wake up", Type: KindMarker}},
		Overrides: []config.TimelineOverride{
			{Days: []string{"Saturday", "sunday"}, Marks: []config.TimelineMark{{Time: "09:00", Label: "Lie in", Type: KindMarker}}},
		},
	}
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC), "Wake up"}, // Monday
		{time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC), "Lie in"}, // Saturday
		{time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC), "Lie in"}, // Sunday
	}
	for _, tt := range tests {
		got := ForDay(cfg, tt.day)
		if len(got) != 1 || got[0].Label != tt.want {
			t.Errorf("%s: got %+v, want %s", tt.day.Weekday(), got, tt.want)
		}
	}
}

func TestLayoutDefaultSchedule(t *testing.T) {
	cfg := config.DefaultTimeline()
	now := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	strip := Layout(cfg, now)
	if len(strip.Marks) != len(cfg.Default) {
		t.Fatalf("got %d marks, want %d", len(strip.Marks), len(cfg.Default))
	}

	// 06:30 on a 6-23 axis.
	if !approx(strip.Marks[0].Left, 0.5/17*100) {
		t.Errorf("alarm left = %v", strip.Marks[0].Left)
	}
	if strip.Marks[0].Display != "6:30" || strip.Marks[1].Display != "7am" {
		t.Errorf("displays = %q, %q", strip.Marks[0].Display, strip.Marks[1].Display)
	}

	if len(strip.Spans) != 1 {
		t.Fatalf("spans = %+v", strip.Spans)
	}
	work := strip.Spans[0]
	if work.Label != "Work" || !approx(work.Left, 2.5/17*100) || !approx(work.Width, 9.5/17*100) {
		t.Errorf("work span = %+v", work)
	}

	if strip.Now == nil || !approx(*strip.Now, 8.5/17*100) {
		t.Errorf("now = %v", strip.Now)
	}
}

func TestLayoutOutsideHours(t *testing.T) {
	cfg := config.TimelineConfig{
		StartHour: 6,
		EndHour:   23,
		Default: []config.TimelineMark{
			{Time: "05:00", Label: "Early", Type: KindMarker},
			{Time: "23:30", Label: "Late", Type: KindMarker},
			{Time: "25:00", Label: "Bad", Type: KindMarker},
		},
	}
	strip := Layout(cfg, time.Date(2024, 1, 8, 3, 0, 0, 0, time.UTC))

	if len(strip.Marks) != 2 {
		t.Fatalf("marks = %+v", strip.Marks)
	}
	if strip.Marks[0].Left != 0 || strip.Marks[1].Left != 100 {
		t.Errorf("clamped lefts = %v, %v", strip.Marks[0].Left, strip.Marks[1].Left)
	}
	if strip.Now != nil {
		t.Errorf("now should be hidden at 03:00, got %v", *strip.Now)
	}
}

func TestLayoutNearEndOfStrip(t *testing.T) {
	cfg := config.TimelineConfig{
		StartHour: 6,
		EndHour:   22,
		Default: []config.TimelineMark{
			{Time: "21:55", Label: "Lights out", Type: KindMarker},
		},
	}
	strip := Layout(cfg, time.Date(2024, 1, 8, 21, 57, 0, 0, time.UTC))

	want := (21 + 55.0/60 - 6) / 16 * 100
	if len(strip.Marks) != 1 || !approx(strip.Marks[0].Left, want) {
		t.Errorf("marks = %+v, want left %v", strip.Marks, want)
	}
	if strip.Now == nil || *strip.Now <= 99 || *strip.Now > 100 {
		t.Errorf("now = %v, want within the last percent", strip.Now)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"06:30", 6, 30, false},
		{" 0:05 ", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseClock(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && (h != tt.h || m != tt.m) {
			t.Errorf("parseClock(%q) = %d:%d", tt.in, h, m)
		}
	}
}
