package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets and the listen address. They
// are read after the YAML file, optionally from a .env file next to it.
const (
	EnvBasicAuthUser     = "INKDASH_BASIC_AUTH_USER"
	EnvBasicAuthPassword = "INKDASH_BASIC_AUTH_PASSWORD"
	EnvGoogleCredentials = "INKDASH_GOOGLE_CREDENTIALS"
	EnvListen            = "INKDASH_LISTEN"
)

// CalendarConfig describes a single ICS subscription source.
type CalendarConfig struct {
	// ID is an internal identifier used for filtering, de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
	// Color is one of the palette names (blue, purple, green, red, orange,
	// pink, cyan, amber). Empty means assigned by position.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// GoogleCalendarConfig is one calendar read through the Google Calendar API.
type GoogleCalendarConfig struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// GoogleConfig enables the Google Calendar provider. The OAuth flow itself
// happens elsewhere; only a stored token is consumed here.
type GoogleConfig struct {
	CredentialsFile string                 `yaml:"credentials_file" json:"credentials_file"`
	TokenFile       string                 `yaml:"token_file" json:"token_file"`
	Calendars       []GoogleCalendarConfig `yaml:"calendars" json:"calendars"`
}

// Enabled reports whether the provider has enough to run.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.TokenFile != "" && len(g.Calendars) > 0
}

// LayoutConfig picks the positioning strategy for timed events.
type LayoutConfig struct {
	// Strategy is "uniform" (default) or "variable".
	Strategy string  `yaml:"strategy" json:"strategy"`
	DayStart float64 `yaml:"day_start" json:"day_start"`
	DayEnd   float64 `yaml:"day_end" json:"day_end"`
}

// TimelineMark is one point on the daily routine timeline.
type TimelineMark struct {
	// Time is "HH:MM", 24h.
	Time  string `yaml:"time" json:"time"`
	Label string `yaml:"label" json:"label"`
	// Type is "marker", "range-start" or "range-end".
	Type string `yaml:"type" json:"type"`
}

// TimelineOverride replaces the default schedule on the listed weekdays.
type TimelineOverride struct {
	Days  []string       `yaml:"days" json:"days"`
	Marks []TimelineMark `yaml:"marks" json:"marks"`
}

// TimelineConfig is the daily routine strip shown under the calendar.
type TimelineConfig struct {
	StartHour int                `yaml:"start_hour" json:"start_hour"`
	EndHour   int                `yaml:"end_hour" json:"end_hour"`
	Default   []TimelineMark     `yaml:"default" json:"default"`
	Overrides []TimelineOverride `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// CaptureConfig controls the headless-browser screenshot of the dashboard.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL defaults to the local dashboard page.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Output is the PNG path served at /preview.png.
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	// Cron schedules periodic captures. Empty means capture after each refresh.
	Cron string `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FetchDays and BackfillDays bound the event window requested from
	// providers, relative to now.
	FetchDays    int `yaml:"fetch_days" json:"fetch_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	Google    GoogleConfig     `yaml:"google" json:"google"`

	Timeline TimelineConfig `yaml:"timeline" json:"timeline"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`

	// CacheDir holds ICS bodies and their validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultTimeline mirrors the routine strip the dashboard ships with.
func DefaultTimeline() TimelineConfig {
	return TimelineConfig{
		StartHour: 6,
		EndHour:   23,
		Default: []TimelineMark{
			{Time: "06:30", Label: "Alarm", Type: "marker"},
			{Time: "07:00", Label: "Wake up", Type: "marker"},
			{Time: "08:30", Label: "Work", Type: "range-start"},
			{Time: "18:00", Label: "", Type: "range-end"},
			{Time: "18:30", Label: "Bubble time", Type: "marker"},
			{Time: "21:30", Label: "In bed", Type: "marker"},
			{Time: "22:30", Label: "Sleep", Type: "marker"},
		},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "UTC",
		WeekStart:    "sunday",
		RefreshCron:  "*/15 * * * *",
		FetchDays:    35,
		BackfillDays: 7,
		LogLevel:     "info",
		Layout: LayoutConfig{
			Strategy: "uniform",
			DayStart: 0,
			DayEnd:   24,
		},
		Calendars: []CalendarConfig{},
		Timeline:  DefaultTimeline(),
		Capture: CaptureConfig{
			Output: "preview.png",
			Width:  1280,
			Height: 800,
		},
		CacheDir: "cache",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = d.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.FetchDays <= 0 {
		c.FetchDays = d.FetchDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Layout.Strategy == "" {
		c.Layout.Strategy = d.Layout.Strategy
	}
	if c.Layout.DayEnd <= c.Layout.DayStart || c.Layout.DayStart < 0 || c.Layout.DayEnd > 24 {
		c.Layout.DayStart, c.Layout.DayEnd = d.Layout.DayStart, d.Layout.DayEnd
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		if c.Calendars[i].ID == "" {
			c.Calendars[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
		if c.Calendars[i].Name == "" {
			c.Calendars[i].Name = c.Calendars[i].ID
		}
	}
	if c.Timeline.EndHour <= c.Timeline.StartHour || c.Timeline.StartHour < 0 || c.Timeline.EndHour > 24 {
		c.Timeline.StartHour, c.Timeline.EndHour = d.Timeline.StartHour, d.Timeline.EndHour
	}
	if c.Timeline.Default == nil {
		c.Timeline.Default = d.Timeline.Default
	}
	if c.Capture.Output == "" {
		c.Capture.Output = d.Capture.Output
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = d.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = d.Capture.Height
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday maps WeekStart onto time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Calendars))
	for _, cal := range c.Calendars {
		if cal.URL == "" {
			return fmt.Errorf("config: calendar %q has no url", cal.ID)
		}
		if seen[cal.ID] {
			return fmt.Errorf("config: duplicate calendar id %q", cal.ID)
		}
		seen[cal.ID] = true
	}
	for _, cal := range c.Google.Calendars {
		if seen[cal.ID] {
			return fmt.Errorf("config: duplicate calendar id %q", cal.ID)
		}
		seen[cal.ID] = true
	}
	return nil
}

// ApplyEnv overlays secrets from the environment. A .env file in dir (if
// any) is loaded first; variables already set in the process win.
func (c *Config) ApplyEnv(dir string) {
	if dir != "" {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}

	user := os.Getenv(EnvBasicAuthUser)
	pass := os.Getenv(EnvBasicAuthPassword)
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	if v := os.Getenv(EnvGoogleCredentials); v != "" {
		c.Google.CredentialsFile = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//
// Environment overrides are applied in both cases but never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.ApplyEnv(filepath.Dir(path))
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv(filepath.Dir(path))

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".inkdash-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
