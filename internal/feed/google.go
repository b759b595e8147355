package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	appLog "inkdash/internal/log"
)

// GoogleProvider lists events through the Google Calendar API. It needs a
// token obtained beforehand; it never runs the consent flow.
type GoogleProvider struct {
	service   *gcal.Service
	calendars []calendar.CalendarSource
}

// NewGoogleProvider builds a provider from the credentials and token files in
// cfg. sources supplies the resolved colors of the Google calendars.
func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig, sources []calendar.CalendarSource) (*GoogleProvider, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("feed: google credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("feed: google credentials: %w", err)
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("feed: google token: %w", err)
	}
	return NewGoogleProviderWithOptions(ctx, cfg, sources, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
}

// NewGoogleProviderWithOptions skips credential loading, e.g. to point the
// client at a test server.
func NewGoogleProviderWithOptions(ctx context.Context, cfg config.GoogleConfig, sources []calendar.CalendarSource, opts ...option.ClientOption) (*GoogleProvider, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("feed: google service: %w", err)
	}

	byID := make(map[string]calendar.CalendarSource, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}
	cals := make([]calendar.CalendarSource, 0, len(cfg.Calendars))
	for _, c := range cfg.Calendars {
		src, ok := byID[c.ID]
		if !ok {
			src = calendar.CalendarSource{ID: c.ID, Name: c.Name}
		}
		cals = append(cals, src)
	}
	return &GoogleProvider{service: svc, calendars: cals}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

// Events lists single (expanded) events of every configured calendar. A
// failing calendar is logged and skipped.
func (p *GoogleProvider) Events(ctx context.Context, w Window) ([]calendar.RawEvent, error) {
	var (
		out    []calendar.RawEvent
		failed int
		last   error
	)
	for _, src := range p.calendars {
		evs, err := p.list(ctx, src, w)
		if err != nil {
			failed++
			last = err
			appLog.Error("google calendar list failed", err, "id", src.ID)
			continue
		}
		out = append(out, evs...)
	}
	if failed > 0 && failed == len(p.calendars) {
		return nil, fmt.Errorf("feed: all google calendars failed: %w", last)
	}
	return out, nil
}

func (p *GoogleProvider) list(ctx context.Context, src calendar.CalendarSource, w Window) ([]calendar.RawEvent, error) {
	var out []calendar.RawEvent
	call := p.service.Events.List(src.ID).
		TimeMin(w.Start.Format(time.RFC3339)).
		TimeMax(w.End.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if w.Location != nil {
		call = call.TimeZone(w.Location.String())
	}

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" || item.Start == nil {
				continue
			}
			out = append(out, fromGoogle(src, item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("feed: google list %s: %w", src.ID, err)
	}
	return out, nil
}

func fromGoogle(src calendar.CalendarSource, item *gcal.Event) calendar.RawEvent {
	ev := calendar.RawEvent{
		ID:            src.ID + "-" + item.Id,
		Title:         item.Summary,
		Description:   item.Description,
		Location:      item.Location,
		URL:           item.HtmlLink,
		CalendarID:    src.ID,
		CalendarColor: src.Color,
		Start: calendar.EventTime{
			DateTime: item.Start.DateTime,
			Date:     item.Start.Date,
		},
	}
	if item.End != nil {
		ev.End = calendar.EventTime{DateTime: item.End.DateTime, Date: item.End.Date}
	}
	return ev
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
