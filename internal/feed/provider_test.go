package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/api/option"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
)

func TestSourcesAssignsColors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Calendars = []config.CalendarConfig{
		{ID: "home", URL: "https://x/h.ics"},
		{ID: "work", Name: "Work", Color: "red", URL: "https://x/w.ics"},
		{ID: "odd", Color: "magenta", URL: "https://x/o.ics"},
	}
	cfg.Google.Calendars = []config.GoogleCalendarConfig{{ID: "g", Name: "Google"}}

	got := Sources(cfg)
	want := []calendar.CalendarSource{
		{ID: "home", Name: "home", Color: calendar.DefaultColor(0)},
		{ID: "work", Name: "Work", Color: calendar.ColorRed},
		{ID: "odd", Name: "odd", Color: calendar.DefaultColor(2)},
		{ID: "g", Name: "Google", Color: calendar.DefaultColor(3)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sources, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	ics := ICSSources(cfg)
	if len(ics) != 3 || ics[1].Color != calendar.ColorRed || ics[1].URL != "https://x/w.ics" {
		t.Errorf("ICSSources = %+v", ics)
	}
}

func TestMergeKeepsFirst(t *testing.T) {
	a := []calendar.RawEvent{{ID: "1", Title: "a1"}, {ID: "2", Title: "a2"}}
	b := []calendar.RawEvent{{ID: "2", Title: "b2"}, {ID: "3", Title: "b3"}}

	got := Merge(a, nil, b)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[1].Title != "a2" || got[2].Title != "b3" {
		t.Errorf("merge = %+v", got)
	}
}

func TestWindowAround(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	w := WindowAround(now, 7, 30)
	if !w.Start.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", w.Start)
	}
	if w.End.Day() != 14 || w.End.Month() != time.April || w.End.Hour() != 23 {
		t.Errorf("End = %v", w.End)
	}
}

func TestGoogleProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("singleEvents") != "true" {
			t.Errorf("singleEvents not requested: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":       "e1",
					"summary":  "Dentist",
					"status":   "confirmed",
					"htmlLink": "https://calendar.example.com/e1",
					"start":    map[string]string{"dateTime": "2024-01-09T15:00:00+01:00"},
					"end":      map[string]string{"dateTime": "2024-01-09T16:00:00+01:00"},
				},
				{
					"id":     "e2",
					"status": "cancelled",
					"start":  map[string]string{"date": "2024-01-10"},
				},
				{
					"id":      "e3",
					"summary": "Holiday",
					"start":   map[string]string{"date": "2024-01-12"},
					"end":     map[string]string{"date": "2024-01-13"},
				},
			},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	gcfg := config.GoogleConfig{Calendars: []config.GoogleCalendarConfig{{ID: "personal"}}}
	sources := []calendar.CalendarSource{{ID: "personal", Name: "Personal", Color: calendar.ColorCyan}}
	p, err := NewGoogleProviderWithOptions(ctx, gcfg, sources,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewGoogleProviderWithOptions: %v", err)
	}

	now := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	events, err := p.Events(ctx, WindowAround(now, 1, 7))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (cancelled dropped)", len(events))
	}
	if events[0].ID != "personal-e1" || events[0].Start.DateTime == "" || events[0].CalendarColor != calendar.ColorCyan {
		t.Errorf("timed event = %+v", events[0])
	}
	if events[1].Start.Date != "2024-01-12" || events[1].Start.DateTime != "" {
		t.Errorf("all-day event = %+v", events[1])
	}
}
