package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"inkdash/internal/calendar"
	"inkdash/internal/capture"
	"inkdash/internal/config"
	"inkdash/internal/device"
	appLog "inkdash/internal/log"
	"inkdash/internal/refresh"
	"inkdash/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard with scheduled refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyListen(cfg, listen)
			return serve(commandContext(cmd), cfg, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// applyListen lets --listen override the config file, including reloaded
// copies of it.
func applyListen(cfg *config.Config, listen string) {
	if listen != "" {
		cfg.Listen = listen
	}
}

func serve(parent context.Context, cfg *config.Config, listen string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"refresh", cfg.RefreshCron,
		"fetch_days", cfg.FetchDays,
		"ics_count", len(cfg.Calendars),
		"google", cfg.Google.Enabled(),
		"capture", cfg.Capture.Enabled,
	)

	refresher := refresh.New(refreshOptions(ctx, cfg))
	server := web.NewServer(web.Options{
		Config:     cfg,
		Controller: newController(cfg),
		Refresher:  refresher,
		Battery:    &device.CachedReader{Reader: device.DefaultBatteryReader(ctx), TTL: 30 * time.Second},
	})
	refresher.OnUpdate(server.SetEvents)

	shots := &capturer{cfg: cfg}
	var jobs []refresh.Job
	if cfg.Capture.Enabled {
		if cfg.Capture.Cron != "" {
			jobs = append(jobs, refresh.Job{Name: "capture", Spec: cfg.Capture.Cron, Run: shots.run})
		} else {
			refresher.OnUpdate(func([]calendar.RawEvent) { go shots.tryRun(ctx) })
		}
	}

	watcher, err := config.Watch(configPath, func(next *config.Config) {
		applyListen(next, listen)
		applyLogLevel(next)
		server.ApplyConfig(next)
		refresher.Reconfigure(refreshOptions(ctx, next))
		shots.set(next)
		go func() {
			if err := refresher.Refresh(ctx); err != nil {
				appLog.Error("refresh after config reload failed", err)
			}
		}()
	})
	if err != nil {
		appLog.Warn("config hot reload disabled", "reason", err)
	} else {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(ctx) }()

	if err := refresher.Start(ctx, cfg.RefreshCron, jobs...); err != nil {
		cancel()
		<-errCh
		return err
	}
	defer refresher.Stop()

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("http server stopped", err)
		return err
	}
	appLog.Info("inkdash exiting")
	return nil
}

// capturer screenshots the dashboard, skipping a request while a capture is
// still running.
type capturer struct {
	mu      sync.Mutex
	cfg     *config.Config
	running sync.Mutex
}

func (c *capturer) set(cfg *config.Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *capturer) run(ctx context.Context) error {
	if !c.running.TryLock() {
		appLog.Debug("capture already running, skipped")
		return nil
	}
	defer c.running.Unlock()

	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	if !cfg.Capture.Enabled {
		return nil
	}

	started := time.Now()
	opts := capture.OptionsFromConfig(cfg)
	if err := capture.Screenshot(ctx, opts); err != nil {
		return err
	}
	appLog.Info("dashboard captured", "output", opts.OutputPath, "took_ms", time.Since(started).Milliseconds())
	return nil
}

func (c *capturer) tryRun(ctx context.Context) {
	if err := c.run(ctx); err != nil {
		appLog.Error("capture failed", err)
	}
}
