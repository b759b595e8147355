package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inkdash/internal/calendar"
	"inkdash/internal/config"
	"inkdash/internal/feed"
	appLog "inkdash/internal/log"
	"inkdash/internal/refresh"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inkdash",
		Short: "Personal calendar dashboard",
		Long: `inkdash merges ICS subscriptions and Google calendars into a week view,
served as a web dashboard, a terminal agenda or a PNG for a wall display.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log_level from the config (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newAgendaCmd(),
		newTUICmd(),
		newSnapshotCmd(),
		newVersionCmd(),
	)
	return root
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// loadConfig reads, validates and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", configPath)
		return nil, err
	}
	applyLogLevel(cfg)
	return cfg, nil
}

func applyLogLevel(cfg *config.Config) {
	name := cfg.LogLevel
	if logLevel != "" {
		name = logLevel
	}
	if lvl, ok := appLog.ParseLevel(name); ok {
		appLog.SetLevel(lvl)
		return
	}
	appLog.Warn("unknown log level, keeping info", "log_level", name)
	appLog.SetLevel(appLog.LevelInfo)
}

// buildProviders wires the ICS provider and, when configured, Google. A
// Google setup error is logged and that provider left out.
func buildProviders(ctx context.Context, cfg *config.Config) []feed.Provider {
	providers := []feed.Provider{
		&feed.ICSProvider{
			Fetcher: feed.NewFetcher(filepath.Join(cfg.CacheDir, "ics"), &http.Client{Timeout: 30 * time.Second}),
			Sources: feed.ICSSources(cfg),
		},
	}
	if cfg.Google.Enabled() {
		gp, err := feed.NewGoogleProvider(ctx, cfg.Google, feed.Sources(cfg))
		if err != nil {
			appLog.Error("google calendar disabled", err)
		} else {
			providers = append(providers, gp)
		}
	}
	return providers
}

func refreshOptions(ctx context.Context, cfg *config.Config) refresh.Options {
	return refresh.Options{
		Providers:    buildProviders(ctx, cfg),
		Location:     cfg.Location(),
		FetchDays:    cfg.FetchDays,
		BackfillDays: cfg.BackfillDays,
	}
}

func newController(cfg *config.Config) *calendar.Controller {
	layout, err := calendar.NewLayout(cfg.Layout.Strategy, cfg.Layout.DayStart, cfg.Layout.DayEnd)
	if err != nil {
		appLog.Warn("falling back to uniform layout", "reason", err)
		layout = nil
	}
	c := calendar.NewController(calendar.ControllerOptions{
		Location:  cfg.Location(),
		WeekStart: cfg.FirstWeekday(),
		Layout:    layout,
	})
	c.SetSources(feed.Sources(cfg))
	return c
}
