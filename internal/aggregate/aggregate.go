// Package aggregate merges per-provider snapshot lists into one deduplicated,
// freshness-ordered view and fans it out to consumers.
//
// Design notes:
//   - One latest-list slot per provider; a delivery replaces the slot whole.
//   - Merge-and-deliver never overlaps itself. Triggers that arrive while a
//     pass is running collapse into exactly one queued extra pass, so consumer
//     work stays O(triggers) with bounded staleness instead of queuing without
//     limit.
//   - Consumers run sequentially in registration order; one consumer's
//     failure or panic never reaches the others.
package aggregate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/monitor"
)

// Consumer receives each merged snapshot list. The list is shared across
// consumers; treat it as read-only. A returned error is logged, never
// propagated.
type Consumer func([]monitor.Snapshot) error

// Aggregator fans provider refreshes into ordered merged deliveries.
type Aggregator struct {
	mu        sync.Mutex
	providers []string
	latest    map[string][]monitor.Snapshot
	delivered map[string]time.Time
	consumers []Consumer
	running   bool
	pending   bool
	now       func() time.Time
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		latest:    make(map[string][]monitor.Snapshot),
		delivered: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Register creates the provider's slot and returns the updater its monitor
// subscribes with. Each update replaces the slot and triggers a merge pass.
func (a *Aggregator) Register(provider string) func([]monitor.Snapshot) {
	a.mu.Lock()
	if _, ok := a.latest[provider]; !ok {
		a.providers = append(a.providers, provider)
		a.latest[provider] = nil
	}
	a.mu.Unlock()

	return func(snapshots []monitor.Snapshot) {
		a.Update(provider, snapshots)
	}
}

// AddConsumer appends fn to the delivery list. Consumers are invoked in
// registration order on every merge pass.
func (a *Aggregator) AddConsumer(fn Consumer) {
	a.mu.Lock()
	a.consumers = append(a.consumers, fn)
	a.mu.Unlock()
}

// Update replaces a provider's latest snapshot list and requests a merge
// pass. Safe to call from any goroutine at any rate: overlapping requests
// coalesce.
func (a *Aggregator) Update(provider string, snapshots []monitor.Snapshot) {
	a.mu.Lock()
	if _, ok := a.latest[provider]; !ok {
		a.providers = append(a.providers, provider)
	}
	a.latest[provider] = snapshots
	a.delivered[provider] = a.now()

	if a.running {
		// Collapse into the single queued pass; it will pick up this
		// update when it runs.
		a.pending = true
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	go a.loop()
}

// loop runs merge passes until no trigger arrived during the last one.
func (a *Aggregator) loop() {
	for {
		merged := a.Merged()
		a.deliver(merged)

		a.mu.Lock()
		if a.pending {
			a.pending = false
			a.mu.Unlock()
			continue
		}
		a.running = false
		a.mu.Unlock()
		return
	}
}

func (a *Aggregator) deliver(merged []monitor.Snapshot) {
	a.mu.Lock()
	consumers := make([]Consumer, len(a.consumers))
	copy(consumers, a.consumers)
	a.mu.Unlock()

	for i, fn := range consumers {
		if err := invoke(fn, merged); err != nil {
			slog.Warn("snapshot consumer failed", "consumer", i, "error", err)
		}
	}
}

func invoke(fn Consumer, merged []monitor.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panicked: %v", r)
		}
	}()
	return fn(merged)
}

// Merged computes the current cross-provider view: deduplicated by
// provider:sessionId (later lastActivity wins on a key collision), stale
// entries dropped, ordered by state priority with fresher sessions first
// within a state.
func (a *Aggregator) Merged() []monitor.Snapshot {
	a.mu.Lock()
	lists := make([][]monitor.Snapshot, 0, len(a.providers))
	for _, p := range a.providers {
		lists = append(lists, a.latest[p])
	}
	a.mu.Unlock()

	byKey := make(map[string]monitor.Snapshot)
	for _, list := range lists {
		for _, snap := range list {
			if snap.State == monitor.StateStale {
				continue
			}
			key := snap.Key()
			if prev, ok := byKey[key]; ok && !snap.LastActivity.After(prev.LastActivity) {
				continue
			}
			byKey[key] = snap
		}
	}

	merged := make([]monitor.Snapshot, 0, len(byKey))
	for _, snap := range byKey {
		merged = append(merged, snap)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		pi, pj := monitor.StatePriority(merged[i].State), monitor.StatePriority(merged[j].State)
		if pi != pj {
			return pi < pj
		}
		return merged[i].LastActivity.After(merged[j].LastActivity)
	})
	return merged
}

// WaitIdle blocks until no merge pass is running or queued, or the timeout
// elapses. Reports whether the aggregator went idle.
func (a *Aggregator) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		a.mu.Lock()
		idle := !a.running && !a.pending
		a.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
