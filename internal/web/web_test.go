package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	"inkdash/internal/device"
	"inkdash/internal/refresh"
)

// Wednesday 10 January 2024, 10:00 UTC.
func fixedNow() time.Time { return time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC) }

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeRefresher) Status() refresh.Status {
	return refresh.Status{EventCount: f.calls}
}

type fixedBattery struct{}

func (fixedBattery) Read(context.Context) (device.BatteryStatus, error) {
	return device.BatteryStatus{Percent: 42, Level: device.LevelOK}, nil
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *fakeRefresher) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Calendars = []config.CalendarConfig{
		{ID: "work", Name: "Work", Color: "blue", URL: "https://example.com/w.ics"},
		{ID: "home", Name: "Home", Color: "green", URL: "https://example.com/h.ics"},
	}
	cfg.Capture.Output = filepath.Join(t.TempDir(), "preview.png")
	if mutate != nil {
		mutate(cfg)
	}

	ctrl := calendar.NewController(calendar.ControllerOptions{
		Location:  time.UTC,
		WeekStart: time.Sunday,
		Now:       fixedNow,
	})
	ref := &fakeRefresher{}
	s := NewServer(Options{Config: cfg, Controller: ctrl, Refresher: ref, Battery: fixedBattery{}, Now: fixedNow})
	s.ApplyConfig(cfg)
	s.SetEvents([]calendar.RawEvent{
		{ID: "1", Title: "Standup", CalendarID: "work",
			Start: calendar.EventTime{DateTime: "2024-01-10T09:00:00Z"},
			End:   calendar.EventTime{DateTime: "2024-01-10T09:15:00Z"}},
		{ID: "2", Title: "Groceries", CalendarID: "home",
			Start: calendar.EventTime{Date: "2024-01-11"},
			End:   calendar.EventTime{Date: "2024-01-12"}},
		{ID: "3", Title: "Retro", CalendarID: "work",
			Start: calendar.EventTime{DateTime: "2024-01-17T15:00:00Z"},
			End:   calendar.EventTime{DateTime: "2024-01-17T16:00:00Z"}},
	})
	return s, ref
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) calendar.View {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var v calendar.View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func countEvents(v calendar.View) int {
	n := 0
	for _, d := range v.Days {
		n += len(d.AllDay) + len(d.Timed)
	}
	return n
}

func TestCalendarView(t *testing.T) {
	s, _ := newTestServer(t, nil)
	v := decodeView(t, do(t, s.Handler(), http.MethodGet, "/api/calendar", ""))

	if v.Mode != calendar.ModeWeek || len(v.Days) != 7 {
		t.Fatalf("mode = %v, days = %d", v.Mode, len(v.Days))
	}
	if v.Title != "Jan 7 – 13, 2024" {
		t.Errorf("title = %q", v.Title)
	}
	if countEvents(v) != 2 {
		t.Errorf("visible events = %d, want 2", countEvents(v))
	}
	wed := v.Days[3]
	if !wed.IsToday || len(wed.Timed) != 1 || wed.Timed[0].Position == nil {
		t.Errorf("today column = %+v", wed)
	}
}

func TestNavigation(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	next := decodeView(t, do(t, h, http.MethodPost, "/api/calendar/next", ""))
	if next.Title != "Jan 14 – 20, 2024" || countEvents(next) != 1 {
		t.Errorf("next: %q with %d events", next.Title, countEvents(next))
	}

	back := decodeView(t, do(t, h, http.MethodPost, "/api/calendar/today", ""))
	if back.Title != "Jan 7 – 13, 2024" {
		t.Errorf("today: %q", back.Title)
	}

	prev := decodeView(t, do(t, h, http.MethodPost, "/api/calendar/previous", ""))
	if prev.Title != "Dec 31, 2023 – Jan 6, 2024" {
		t.Errorf("previous: %q", prev.Title)
	}

	if rec := do(t, h, http.MethodGet, "/api/calendar/next", ""); rec.Code == http.StatusOK {
		t.Errorf("GET on POST route succeeded")
	}
}

func TestSetMode(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		body     string
		wantCode int
		wantDays int
	}{
		{`{"mode":"3day"}`, http.StatusOK, 3},
		{`{"mode":"5day"}`, http.StatusOK, 5},
		{`{"mode":"week"}`, http.StatusOK, 7},
		{`{"mode":"month"}`, http.StatusBadRequest, 0},
		{`not json`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/api/calendar/mode", tt.body)
		if rec.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.body, rec.Code, tt.wantCode)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		v := decodeView(t, rec)
		if len(v.Days) != tt.wantDays {
			t.Errorf("%s: days = %d, want %d", tt.body, len(v.Days), tt.wantDays)
		}
		if tt.wantDays == 3 && v.Days[0].Key != "2024-01-10" {
			t.Errorf("3day view should start today, got %s", v.Days[0].Key)
		}
	}
}

func TestToggleSource(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	v := decodeView(t, do(t, h, http.MethodPost, "/api/calendar/sources/home/toggle", ""))
	if countEvents(v) != 1 || v.Enabled.Has("home") {
		t.Errorf("after hiding home: %d events, enabled=%v", countEvents(v), v.Enabled.IDs())
	}

	v = decodeView(t, do(t, h, http.MethodPost, "/api/calendar/sources/home/toggle", ""))
	if countEvents(v) != 2 {
		t.Errorf("after showing home again: %d events", countEvents(v))
	}

	if rec := do(t, h, http.MethodPost, "/api/calendar/sources/nope/toggle", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d", rec.Code)
	}
}

func TestSources(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/sources", "")

	var got []struct {
		ID      string `json:"id"`
		Color   string `json:"color"`
		Hex     string `json:"hex"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Color != "green" || got[1].Hex != calendar.ColorGreen.Hex() || !got[0].Enabled {
		t.Errorf("sources = %+v", got)
	}
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "kiosk", Password: "pw"}
	})
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health without auth = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/calendar", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/calendar without auth = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	req.SetBasicAuth("kiosk", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/calendar with auth = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	req.SetBasicAuth("kiosk", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	s, ref := newTestServer(t, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusOK || ref.calls != 1 {
		t.Errorf("refresh status = %d, calls = %d", rec.Code, ref.calls)
	}

	ref.err = errors.New("offline")
	if rec := do(t, h, http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("failing refresh status = %d", rec.Code)
	}
}

func TestTimelineAndBattery(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/timeline", "")
	var strip struct {
		Day   string `json:"day"`
		Marks []any  `json:"marks"`
		Now   *float64
	}
	if err := json.NewDecoder(rec.Body).Decode(&strip); err != nil {
		t.Fatal(err)
	}
	if strip.Day != "2024-01-10" || len(strip.Marks) == 0 || strip.Now == nil {
		t.Errorf("timeline = %+v", strip)
	}

	rec = do(t, h, http.MethodGet, "/api/battery", "")
	if !strings.Contains(rec.Body.String(), `"percent":42`) {
		t.Errorf("battery body = %s", rec.Body.String())
	}
}

func TestStaticAndPreview(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "data-ready") {
		t.Errorf("index status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/unknown", ""); rec.Code != http.StatusNotFound ||
		!strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("unknown api = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	if rec := do(t, h, http.MethodGet, "/preview.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing preview = %d", rec.Code)
	}
	if err := os.WriteFile(s.config().Capture.Output, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatal(err)
	}
	if rec := do(t, h, http.MethodGet, "/preview.png", ""); rec.Code != http.StatusOK {
		t.Errorf("preview = %d", rec.Code)
	}
}

func TestApplyConfigAddsSource(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cfg := *s.config()
	cfg.Calendars = append(cfg.Calendars, config.CalendarConfig{ID: "club", URL: "https://example.com/c.ics"})
	cfg.Layout.Strategy = "variable"
	s.ApplyConfig(&cfg)

	v := decodeView(t, do(t, s.Handler(), http.MethodGet, "/api/calendar", ""))
	if len(v.Sources) != 3 || !v.Enabled.Has("club") {
		t.Errorf("sources after reload = %+v enabled = %v", v.Sources, v.Enabled.IDs())
	}
}
