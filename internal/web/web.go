package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	"inkdash/internal/device"
	"inkdash/internal/feed"
	appLog "inkdash/internal/log"
	"inkdash/internal/refresh"
	"inkdash/internal/timeline"
)

// Refresher is the part of refresh.Refresher the API needs.
type Refresher interface {
	Refresh(ctx context.Context) error
	Status() refresh.Status
}

// Options wires a Server.
type Options struct {
	Config     *config.Config
	Controller *calendar.Controller
	Refresher  Refresher
	Battery    device.BatteryReader
	// Now is the clock for the timeline. Nil means time.Now.
	Now func() time.Time
}

// Server serves the dashboard page and its JSON API. The calendar controller
// is single-threaded; every handler touching it holds mu.
type Server struct {
	mu   sync.Mutex
	cfg  *config.Config
	ctrl *calendar.Controller

	refresher Refresher
	battery   device.BatteryReader
	now       func() time.Time

	mux *http.ServeMux
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. A nil battery reader is replaced by a
// simulated one behind a 30s cache.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		ctrl:      opts.Controller,
		refresher: opts.Refresher,
		battery:   opts.Battery,
		now:       opts.Now,
		mux:       http.NewServeMux(),
	}
	if s.battery == nil {
		s.battery = &device.CachedReader{Reader: device.NewSimulatedReader(), TTL: 30 * time.Second}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, with basic auth when configured.
func (s *Server) Handler() http.Handler {
	return s.basicAuthMiddleware(s.mux)
}

// SetEvents hands a new snapshot to the controller.
func (s *Server) SetEvents(events []calendar.RawEvent) {
	s.mu.Lock()
	s.ctrl.SetEvents(events)
	s.mu.Unlock()
}

// ApplyConfig swaps in a reloaded config: sources, layout and credentials
// take effect immediately. Timezone and week start need a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	layout, err := calendar.NewLayout(cfg.Layout.Strategy, cfg.Layout.DayStart, cfg.Layout.DayEnd)
	if err != nil {
		appLog.Warn("layout not applied", "reason", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Timezone != s.cfg.Timezone || cfg.WeekStart != s.cfg.WeekStart {
		appLog.Warn("timezone and week_start changes apply after restart")
	}
	s.cfg = cfg
	s.ctrl.SetSources(feed.Sources(cfg))
	if layout != nil {
		s.ctrl.SetLayout(layout)
	}
}

func (s *Server) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// basicAuthMiddleware guards every path except /health. Credentials are read
// per request so a config reload takes effect without a restart.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := s.config().BasicAuth
		if r.URL.Path == "/health" || auth == nil || auth.Username == "" || auth.Password == "" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, auth.Username) || !secureCompare(p, auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="inkdash", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config().Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /api/calendar/previous", s.navigate((*calendar.Controller).Previous))
	s.mux.HandleFunc("POST /api/calendar/next", s.navigate((*calendar.Controller).Next))
	s.mux.HandleFunc("POST /api/calendar/today", s.navigate((*calendar.Controller).Today))
	s.mux.HandleFunc("POST /api/calendar/mode", s.handleMode)
	s.mux.HandleFunc("POST /api/calendar/sources/{id}/toggle", s.handleToggle)

	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	sources := s.ctrl.Sources()
	enabled := s.ctrl.State().Enabled
	s.mu.Unlock()

	type sourceDTO struct {
		calendar.CalendarSource
		Hex     string `json:"hex"`
		Enabled bool   `json:"enabled"`
	}
	out := make([]sourceDTO, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceDTO{
			CalendarSource: src,
			Hex:            src.Color.Hex(),
			Enabled:        len(enabled) == 0 || enabled.Has(src.ID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	v := s.ctrl.View()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, v)
}

// navigate applies a state change and returns the new view.
func (s *Server) navigate(step func(*calendar.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		step(s.ctrl)
		v := s.ctrl.View()
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mode, err := calendar.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.navigate(func(c *calendar.Controller) { c.SetMode(mode) })(w, r)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	known := false
	for _, src := range s.ctrl.Sources() {
		if src.ID == id {
			known = true
			break
		}
	}
	if !known {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown calendar source")
		return
	}
	s.ctrl.ToggleSource(id)
	v := s.ctrl.View()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config()
	writeJSON(w, http.StatusOK, timeline.Layout(cfg.Timeline, s.now().In(cfg.Location())))
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	st, err := s.battery.Read(r.Context())
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeJSON(w, http.StatusOK, refresh.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	if err := s.refresher.Refresh(r.Context()); err != nil {
		appLog.Error("manual refresh failed", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

// handlePreview serves the last captured dashboard PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.config().Capture.Output)
}

// staticFileServer serves the embedded dashboard page. /api/* never falls
// through to HTML.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
