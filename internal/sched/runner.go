// Package sched drives monitor refresh cadence. Each monitor gets one
// goroutine combining a poll ticker with optional debounced filesystem
// events on its transcript directories, so a burst of log appends turns into
// a prompt single refresh instead of a poll-interval wait. Refreshes for one
// monitor are serialized by construction: the goroutine runs each to
// completion before selecting the next trigger.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentsight/agentsight/internal/monitor"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 2 * time.Second

// DefaultDebounce collapses filesystem event bursts.
const DefaultDebounce = 250 * time.Millisecond

type entry struct {
	mon  *monitor.Monitor
	dirs []string
}

// Runner schedules refreshes for a set of monitors.
type Runner struct {
	interval time.Duration
	debounce time.Duration
	entries  []entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner builds a Runner. Zero durations mean defaults.
func NewRunner(interval, debounce time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Runner{interval: interval, debounce: debounce}
}

// Add registers a monitor, optionally with transcript directories to watch
// for change-triggered refreshes. Call before Start.
func (r *Runner) Add(m *monitor.Monitor, watchDirs ...string) {
	r.entries = append(r.entries, entry{mon: m, dirs: watchDirs})
}

// Start launches one scheduling goroutine per monitor. Each runs an initial
// refresh immediately so consumers see data without waiting a full interval.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, e := range r.entries {
		r.wg.Add(1)
		go func(e entry) {
			defer r.wg.Done()
			r.run(ctx, e)
		}(e)
	}
}

// Stop cancels scheduling and waits for in-flight refreshes to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, e entry) {
	kick := make(chan struct{}, 1)
	if len(e.dirs) > 0 {
		stop := r.watch(ctx, e, kick)
		if stop != nil {
			defer stop()
		}
	}

	e.mon.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mon.Refresh(ctx)
		case <-kick:
			e.mon.Refresh(ctx)
			// The poll that would have fired next carries no new
			// information; let the ticker restart its interval.
			ticker.Reset(r.interval)
		}
	}
}

// watch posts to kick, debounced, whenever anything under the entry's
// directories changes. Watch failures degrade to polling only.
func (r *Runner) watch(ctx context.Context, e entry, kick chan struct{}) func() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("transcript watch unavailable, polling only",
			"provider", e.mon.Provider(), "error", err)
		return nil
	}

	watching := 0
	for _, dir := range e.dirs {
		if err := w.Add(dir); err != nil {
			slog.Debug("cannot watch transcript dir", "dir", dir, "error", err)
			continue
		}
		watching++
	}
	if watching == 0 {
		w.Close()
		return nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				if timer == nil {
					timer = time.NewTimer(r.debounce)
					fire = timer.C
				} else {
					timer.Reset(r.debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Debug("transcript watch error",
					"provider", e.mon.Provider(), "error", err)
			case <-fire:
				timer = nil
				fire = nil
				select {
				case kick <- struct{}{}:
				default:
					// A refresh is already queued; this burst rides along.
				}
			}
		}
	}()

	return func() { w.Close() }
}
