package calendar

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func at(h, m int) time.Time {
	return time.Date(2024, time.January, 3, h, m, 0, 0, time.UTC)
}

func TestUniformPosition(t *testing.T) {
	tests := []struct {
		name       string
		layout     Uniform
		start, end time.Time
		top, h     float64
	}{
		{"morning meeting", Uniform{0, 24}, at(9, 0), at(10, 30), 37.5, 6.25},
		{"zero length", Uniform{0, 24}, at(12, 0), at(12, 0), 50, 1},
		{"end before start", Uniform{0, 24}, at(12, 0), at(11, 0), 50, 1},
		{"last minute", Uniform{0, 24}, at(23, 59), at(23, 59), 99, 1},
		{"spills past midnight", Uniform{0, 24}, at(22, 0), at(2, 0).AddDate(0, 0, 1), 22.0 / 24 * 100, 2.0 / 24 * 100},
		{"working window", Uniform{8, 18}, at(9, 0), at(10, 0), 10, 10},
		{"before window", Uniform{8, 18}, at(6, 0), at(9, 0), 0, 30},
		{"after window", Uniform{8, 18}, at(19, 0), at(20, 0), 99, 1},
		{"invalid window falls back to full day", Uniform{20, 8}, at(6, 0), at(12, 0), 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.layout.Position(tt.start, tt.end)
			if !approx(p.Top, tt.top) || !approx(p.Height, tt.h) {
				t.Errorf("Position = %+v, want top=%v height=%v", p, tt.top, tt.h)
			}
		})
	}
}

func TestVariableDensityPosition(t *testing.T) {
	if !approx(dayWeight, 21.6) {
		t.Fatalf("dayWeight = %v, want 21.6", dayWeight)
	}

	var v VariableDensity
	p := v.Position(at(8, 0), at(20, 0))
	if !approx(p.Top, 2.4/21.6*100) || !approx(p.Height, 18/21.6*100) {
		t.Errorf("daytime band = %+v", p)
	}

	p = v.Position(at(9, 0), at(10, 30))
	if !approx(p.Top, 3.9/21.6*100) || !approx(p.Height, 2.25/21.6*100) {
		t.Errorf("09:00-10:30 = %+v", p)
	}

	// An hour at night takes a fifth of the room of an hour at noon.
	night := v.Position(at(2, 0), at(3, 0)).Height
	noon := v.Position(at(12, 0), at(13, 0)).Height
	if !approx(noon/night, 5) {
		t.Errorf("noon/night height ratio = %v, want 5", noon/night)
	}
}

func TestPositionBoundsAndOrder(t *testing.T) {
	layouts := map[string]Layout{
		"uniform":        Uniform{0, 24},
		"uniform window": Uniform{7, 19},
		"variable":       VariableDensity{},
	}
	durations := []time.Duration{0, time.Minute, 45 * time.Minute, 3 * time.Hour, 30 * time.Hour}

	for name, layout := range layouts {
		prevTop := -1.0
		for m := 0; m < 24*60; m += 7 {
			start := at(0, 0).Add(time.Duration(m) * time.Minute)
			for _, d := range durations {
				p := layout.Position(start, start.Add(d))
				if p.Top < 0 || p.Top > 100 {
					t.Fatalf("%s: top %v out of range for %v+%v", name, p.Top, start, d)
				}
				if p.Height < 1 || p.Height > 100-p.Top+1e-9 {
					t.Fatalf("%s: height %v out of [1, %v] for %v+%v", name, p.Height, 100-p.Top, start, d)
				}
			}
			top := layout.Position(start, start).Top
			if top < prevTop {
				t.Fatalf("%s: top decreased at %v (%v < %v)", name, start, top, prevTop)
			}
			prevTop = top
		}
	}
}

func TestNewLayout(t *testing.T) {
	l, err := NewLayout("", 6, 22)
	if err != nil {
		t.Fatalf("NewLayout default: %v", err)
	}
	if u, ok := l.(Uniform); !ok || u.DayStart != 6 || u.DayEnd != 22 {
		t.Errorf("default layout = %#v", l)
	}
	if l, err := NewLayout("Variable", 0, 0); err != nil || l != (VariableDensity{}) {
		t.Errorf("NewLayout(Variable) = %#v, %v", l, err)
	}
	if _, err := NewLayout("spiral", 0, 24); err == nil {
		t.Error("NewLayout(spiral) succeeded")
	}
}
