// Package refresh keeps the merged event list current. Providers are polled
// on a cron schedule; a failed round keeps the last good snapshot.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"inkdash/internal/calendar"
	"inkdash/internal/feed"
	appLog "inkdash/internal/log"
)

// Options configures a Refresher.
type Options struct {
	Providers    []feed.Provider
	Location     *time.Location
	FetchDays    int
	BackfillDays int
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Status describes the last refresh round.
type Status struct {
	UpdatedAt  time.Time `json:"updated_at"`
	EventCount int       `json:"event_count"`
	LastError  string    `json:"last_error,omitempty"`
	Running    bool      `json:"running"`
}

// Refresher owns the last-known-good event snapshot.
type Refresher struct {
	mu        sync.RWMutex
	opts      Options
	events    []calendar.RawEvent
	updatedAt time.Time
	lastErr   error
	listeners []func([]calendar.RawEvent)

	// serialises rounds so cron and manual refreshes never overlap
	round sync.Mutex

	cron *cron.Cron
}

// New creates a Refresher. Nothing is fetched until Refresh or Start.
func New(opts Options) *Refresher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Refresher{opts: opts}
}

// Reconfigure swaps providers and window, e.g. after a config reload. The
// current snapshot is kept until the next round.
func (r *Refresher) Reconfigure(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.Location == nil {
		opts.Location = r.opts.Location
	}
	if opts.Now == nil {
		opts.Now = r.opts.Now
	}
	r.opts = opts
}

// OnUpdate registers fn to receive each new snapshot.
func (r *Refresher) OnUpdate(fn func([]calendar.RawEvent)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Events returns the current snapshot.
func (r *Refresher) Events() []calendar.RawEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events
}

// Status reports on the last round.
func (r *Refresher) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		UpdatedAt:  r.updatedAt,
		EventCount: len(r.events),
		Running:    r.cron != nil,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Refresh queries every provider once. Providers that fail are logged and
// left out; if all of them fail the previous snapshot stays and an error is
// returned.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.round.Lock()
	defer r.round.Unlock()

	r.mu.RLock()
	opts := r.opts
	r.mu.RUnlock()

	now := opts.Now().In(opts.Location)
	window := feed.WindowAround(now, opts.BackfillDays, opts.FetchDays)
	started := time.Now()

	var (
		lists [][]calendar.RawEvent
		errs  []error
	)
	for _, p := range opts.Providers {
		evs, err := p.Events(ctx, window)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			appLog.Error("provider refresh failed", err, "provider", p.Name())
			continue
		}
		lists = append(lists, evs)
	}

	if len(opts.Providers) > 0 && len(lists) == 0 {
		err := fmt.Errorf("refresh: every provider failed: %w", errors.Join(errs...))
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return err
	}

	merged := feed.Merge(lists...)
	if merged == nil {
		merged = []calendar.RawEvent{}
	}

	r.mu.Lock()
	r.events = merged
	r.updatedAt = now
	r.lastErr = errors.Join(errs...)
	listeners := append([]func([]calendar.RawEvent){}, r.listeners...)
	r.mu.Unlock()

	appLog.Info("refresh completed",
		"events", len(merged),
		"providers", len(opts.Providers),
		"failed", len(errs),
		"took", time.Since(started).Round(time.Millisecond),
	)
	for _, fn := range listeners {
		fn(merged)
	}
	return nil
}

// Job is an extra task run on its own schedule alongside refreshes.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Start runs one refresh immediately, then schedules Refresh on spec and
// every job on its own spec. It returns once scheduling is set up; Stop (or
// cancelling ctx) ends it.
func (r *Refresher) Start(ctx context.Context, spec string, jobs ...Job) error {
	r.mu.RLock()
	loc := r.opts.Location
	r.mu.RUnlock()

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		if err := r.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", spec, err)
	}
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.Spec, func() {
			if err := j.Run(ctx); err != nil {
				appLog.Error("scheduled job failed", err, "job", j.Name)
			}
		}); err != nil {
			return fmt.Errorf("refresh: schedule %s %q: %w", j.Name, j.Spec, err)
		}
	}

	r.mu.Lock()
	if r.cron != nil {
		r.mu.Unlock()
		return errors.New("refresh: already started")
	}
	r.cron = c
	r.mu.Unlock()

	if err := r.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}
	c.Start()
	appLog.Info("refresh scheduler started", "spec", spec, "jobs", len(jobs))

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// ValidateSpec reports whether spec is a valid five-field cron expression.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
