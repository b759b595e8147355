package calendar

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Layout maps an event's time span onto a day column.
type Layout interface {
	Position(start, end time.Time) Position
}

const (
	LayoutUniform  = "uniform"
	LayoutVariable = "variable"
)

// NewLayout builds the strategy named by configuration. dayStart and dayEnd
// only apply to the uniform strategy.
func NewLayout(name string, dayStart, dayEnd float64) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LayoutUniform:
		return Uniform{DayStart: dayStart, DayEnd: dayEnd}, nil
	case LayoutVariable:
		return VariableDensity{}, nil
	default:
		return nil, fmt.Errorf("calendar: unknown layout strategy %q", name)
	}
}

// Uniform gives every hour of the [DayStart, DayEnd) window the same height.
type Uniform struct {
	DayStart float64
	DayEnd   float64
}

func (u Uniform) window() (float64, float64) {
	if u.DayEnd <= u.DayStart || u.DayStart < 0 || u.DayEnd > 24 {
		return 0, 24
	}
	return u.DayStart, u.DayEnd
}

// Position implements Layout.
func (u Uniform) Position(start, end time.Time) Position {
	from, to := u.window()
	startHour, endHour := spanHours(start, end)
	total := to - from
	return clampPosition(
		(startHour-from)/total*100,
		(endHour-startHour)/total*100,
	)
}

// VariableDensity compresses the night bands (00-08, 20-24) and stretches the
// daytime band (08-20), where most events happen.
type VariableDensity struct{}

const (
	compressedWeight = 0.3
	expandedWeight   = 1.5
	expandedFrom     = 8.0
	expandedTo       = 20.0
)

// dayWeight is the cumulative weight of a full day: 8*0.3 + 12*1.5 + 4*0.3.
var dayWeight = cumulativeWeight(24)

// cumulativeWeight returns the weighted distance from midnight to hour h.
func cumulativeWeight(h float64) float64 {
	h = math.Max(0, math.Min(24, h))
	switch {
	case h <= expandedFrom:
		return h * compressedWeight
	case h <= expandedTo:
		return expandedFrom*compressedWeight + (h-expandedFrom)*expandedWeight
	default:
		return expandedFrom*compressedWeight +
			(expandedTo-expandedFrom)*expandedWeight +
			(h-expandedTo)*compressedWeight
	}
}

// Position implements Layout.
func (VariableDensity) Position(start, end time.Time) Position {
	startHour, endHour := spanHours(start, end)
	top := cumulativeWeight(startHour) / dayWeight * 100
	height := (cumulativeWeight(endHour) - cumulativeWeight(startHour)) / dayWeight * 100
	return clampPosition(top, height)
}

// spanHours returns fractional wall-clock hours of start and end relative to
// start's day. An end on a later day is pinned to 24.
func spanHours(start, end time.Time) (float64, float64) {
	startHour := fractionalHour(start)
	end = end.In(start.Location())
	if end.Before(start) {
		return startHour, startHour
	}
	if !SameDay(start, end) {
		return startHour, 24
	}
	return startHour, fractionalHour(end)
}

func fractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// minHeight keeps zero-length events visible.
const minHeight = 1

// clampPosition keeps height in [minHeight, 100-top]. Top is capped at
// 100-minHeight so a block starting at the very bottom still fits.
func clampPosition(top, height float64) Position {
	top = math.Max(0, math.Min(100-minHeight, top))
	height = math.Max(minHeight, math.Min(100-top, height))
	return Position{Top: top, Height: height}
}
