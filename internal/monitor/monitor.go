// Package monitor turns one provider's discovered transcripts and processes
// into session snapshots, refresh by refresh. Each provider gets its own
// Monitor instance; cross-provider merging happens in the aggregator.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentsight/agentsight/internal/discovery"
	"github.com/agentsight/agentsight/internal/transcript"
)

// DefaultStaleAfter is the horizon beyond which a session with no live
// process is dropped from refresh output entirely.
const DefaultStaleAfter = 24 * time.Hour

// Options tune a Monitor. Zero values mean defaults.
type Options struct {
	// TailWindow is the trailing byte window read per transcript.
	TailWindow int64
	// StaleAfter is the staleness horizon for processless sessions.
	StaleAfter time.Duration
	// Price computes a session's cost from its model and token counts.
	// Cost models belong to the provider; downstream aggregation only
	// sums what the monitor attaches here. Nil means cost stays zero.
	Price func(model string, tokens transcript.TokenCounts) float64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type cacheEntry struct {
	modTime time.Time
	info    transcript.Info
	phase   transcript.Phase
}

// Monitor tracks the sessions of a single provider. A monitor's Refresh is
// driven by one scheduler goroutine and runs to completion before the next
// trigger, so no internal locking is needed.
type Monitor struct {
	disc        discovery.Discoverer
	tailWindow  int64
	staleAfter  time.Duration
	price       func(model string, tokens transcript.TokenCounts) float64
	now         func() time.Time
	cache       map[string]cacheEntry
	subscribers []func([]Snapshot)
	lastRefresh time.Time
	lastCount   int

	// tail is a seam for tests to count reduction work.
	tail func(path string, window int64) []transcript.Entry
}

// New builds a Monitor over the given provider discovery.
func New(disc discovery.Discoverer, opts Options) *Monitor {
	if opts.TailWindow <= 0 {
		opts.TailWindow = transcript.DefaultTailWindow
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		disc:       disc,
		tailWindow: opts.TailWindow,
		staleAfter: opts.StaleAfter,
		price:      opts.Price,
		now:        opts.Now,
		cache:      make(map[string]cacheEntry),
		tail:       transcript.ReadTail,
	}
}

// Provider returns the monitored provider's name.
func (m *Monitor) Provider() string { return m.disc.Name() }

// Subscribe registers fn to receive the full snapshot list after every
// refresh, in registration order. Register before scheduling starts.
func (m *Monitor) Subscribe(fn func([]Snapshot)) {
	m.subscribers = append(m.subscribers, fn)
}

// LastRefresh returns when the monitor last completed a refresh and how many
// sessions that refresh emitted.
func (m *Monitor) LastRefresh() (time.Time, int) {
	return m.lastRefresh, m.lastCount
}

// Refresh discovers the provider's sessions, recomputes snapshots for files
// whose modification time changed, drops processless sessions older than the
// staleness horizon, and delivers the full list to all subscribers.
func (m *Monitor) Refresh(ctx context.Context) {
	now := m.now()

	files, err := m.disc.TranscriptFiles(ctx)
	if err != nil {
		slog.Warn("transcript discovery failed", "provider", m.Provider(), "error", err)
	}
	procs, err := m.disc.Processes(ctx)
	if err != nil {
		slog.Warn("process discovery failed", "provider", m.Provider(), "error", err)
	}

	snapshots := make([]Snapshot, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true

		entry, ok := m.cache[f.Path]
		if !ok || !entry.modTime.Equal(f.ModTime) {
			// Changed since last refresh: pay the tail+reduce cost.
			info := transcript.Reduce(m.tail(f.Path, m.tailWindow), now)
			entry = cacheEntry{
				modTime: f.ModTime,
				info:    info,
				phase:   transcript.ClassifyPhase(info),
			}
			m.cache[f.Path] = entry
		}

		// Process correlation and lifecycle are cheap and depend on live
		// state, so they are recomputed even on cache hits.
		proc := matchProcess(procs, entry.info)
		if proc == nil && f.ModTime.Before(now.Add(-m.staleAfter)) {
			continue
		}

		snap := Snapshot{
			Provider:       m.Provider(),
			Info:           entry.info,
			Phase:          entry.phase,
			State:          deriveState(proc != nil, entry.phase, entry.info.LastStopReason),
			TranscriptPath: f.Path,
			RefreshedAt:    now,
		}
		if m.price != nil {
			snap.CostUSD = m.price(entry.info.Model, entry.info.Tokens)
		}
		if proc != nil {
			snap.PID = proc.PID
			snap.CPUPercent = proc.CPUPercent
			snap.MemoryBytes = proc.MemoryBytes
		}
		snapshots = append(snapshots, snap)
	}

	// Forget files discovery no longer reports so the cache tracks the
	// working set, not history.
	for path := range m.cache {
		if !seen[path] {
			delete(m.cache, path)
		}
	}

	m.lastRefresh = now
	m.lastCount = len(snapshots)
	for _, fn := range m.subscribers {
		fn(snapshots)
	}
}

// deriveState maps process liveness plus conversation phase to a lifecycle
// state. A live process counts as active while it has work in flight and
// idle once the session is interactable. Without a process, a final
// end_turn means the session completed; anything else within the staleness
// horizon is idle.
func deriveState(hasProcess bool, phase transcript.Phase, stopReason string) State {
	if hasProcess {
		if phase == transcript.PhaseInteractable {
			return StateIdle
		}
		return StateActive
	}
	if stopReason == transcript.StopReasonEndTurn {
		return StateCompleted
	}
	return StateIdle
}

// matchProcess correlates a live process with a session, preferring an
// explicit session id and falling back to working-directory equality.
func matchProcess(procs []discovery.Process, info transcript.Info) *discovery.Process {
	for i := range procs {
		if procs[i].SessionID != "" && procs[i].SessionID == info.SessionID {
			return &procs[i]
		}
	}
	for i := range procs {
		if procs[i].Cwd != "" && procs[i].Cwd == info.Cwd {
			return &procs[i]
		}
	}
	return nil
}
