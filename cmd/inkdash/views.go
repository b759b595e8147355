package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"inkdash/internal/calendar"
	"inkdash/internal/capture"
	"inkdash/internal/config"
	appLog "inkdash/internal/log"
	"inkdash/internal/refresh"
	"inkdash/internal/tui"
)

func newAgendaCmd() *cobra.Command {
	var (
		mode    string
		date    string
		width   int
		sources []string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Fetch once and print the calendar view",
		Example: `  inkdash agenda
  inkdash agenda --mode 3day --date 2024-01-03
  inkdash agenda --sources work,home --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := calendar.ParseMode(mode)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(commandContext(cmd))
			defer cancel()

			ctrl := newController(cfg)
			state := ctrl.State()
			state.Mode = m
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, cfg.Location())
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				state.Anchor = d
			}
			if len(sources) > 0 {
				state.Enabled = calendar.NewSourceSet(sources...)
			}
			ctrl.Restore(state)

			refresher := refresh.New(refreshOptions(ctx, cfg))
			if err := refresher.Refresh(ctx); err != nil {
				appLog.Warn("showing an empty calendar", "reason", err)
			}
			ctrl.SetEvents(refresher.Events())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ctrl.View())
			}
			_, err = fmt.Fprint(out, tui.RenderAgenda(ctrl.View(), width))
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "week", "View mode: week, 3day or 5day")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date (YYYY-MM-DD), default today")
	cmd.Flags().IntVar(&width, "width", 80, "Output width in columns")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Only show these calendar ids")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the view as JSON")
	return cmd
}

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse the calendar interactively in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// The alternate screen owns the terminal; send logs to a file.
			logFile, err := openLogFile(cfg)
			if err != nil {
				return err
			}
			defer logFile.Close()
			appLog.SetOutput(logFile)
			defer appLog.SetOutput(nil)

			ctx, cancel := signalContext(commandContext(cmd))
			defer cancel()

			refresher := refresh.New(refreshOptions(ctx, cfg))
			return tui.Run(ctx, tui.Options{
				Controller: newController(cfg),
				Reload: func(ctx context.Context) ([]calendar.RawEvent, error) {
					if err := refresher.Refresh(ctx); err != nil {
						return nil, err
					}
					return refresher.Events(), nil
				},
			})
		},
	}
}

func openLogFile(cfg *config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return os.OpenFile(filepath.Join(cfg.CacheDir, "inkdash-tui.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func newSnapshotCmd() *cobra.Command {
	var (
		url     string
		out     string
		width   int
		height  int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Screenshot a running dashboard to PNG",
		Long: `snapshot loads the dashboard page in headless Chromium, waits until it
reports ready and writes a PNG of the viewport. The dashboard must already be
served, e.g. by "inkdash serve".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := capture.OptionsFromConfig(cfg)
			if url != "" {
				opts.URL = url
			}
			if out != "" {
				opts.OutputPath = out
			}
			if width > 0 {
				opts.Width = width
			}
			if height > 0 {
				opts.Height = height
			}
			opts.Timeout = timeout

			ctx, cancel := signalContext(commandContext(cmd))
			defer cancel()
			if err := capture.Screenshot(ctx, opts); err != nil {
				return err
			}
			appLog.Info("snapshot written", "output", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Dashboard URL (default: the configured listener)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output PNG path (default: capture.output)")
	cmd.Flags().IntVar(&width, "width", 0, "Viewport width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Viewport height in pixels")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort after this long (default 30s)")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
