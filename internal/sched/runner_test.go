package sched

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentsight/agentsight/internal/discovery"
	"github.com/agentsight/agentsight/internal/monitor"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestRunnerPolls(t *testing.T) {
	m := monitor.New(&discovery.Static{Provider: "claude"}, monitor.Options{})
	var deliveries atomic.Int64
	m.Subscribe(func([]monitor.Snapshot) { deliveries.Add(1) })

	r := NewRunner(20*time.Millisecond, 0)
	r.Add(m)
	r.Start(context.Background())
	defer r.Stop()

	// One immediate refresh plus at least two ticks.
	if !waitFor(t, 2*time.Second, func() bool { return deliveries.Load() >= 3 }) {
		t.Errorf("deliveries = %d, want >= 3", deliveries.Load())
	}
}

func TestRunnerStopHaltsRefreshes(t *testing.T) {
	m := monitor.New(&discovery.Static{Provider: "claude"}, monitor.Options{})
	var deliveries atomic.Int64
	m.Subscribe(func([]monitor.Snapshot) { deliveries.Add(1) })

	r := NewRunner(10*time.Millisecond, 0)
	r.Add(m)
	r.Start(context.Background())
	waitFor(t, time.Second, func() bool { return deliveries.Load() >= 2 })
	r.Stop()

	after := deliveries.Load()
	time.Sleep(50 * time.Millisecond)
	if got := deliveries.Load(); got != after {
		t.Errorf("deliveries advanced after Stop: %d -> %d", after, got)
	}
}

func TestRunnerWatchTriggersRefresh(t *testing.T) {
	dir := t.TempDir()
	m := monitor.New(&discovery.Static{Provider: "claude"}, monitor.Options{})
	var deliveries atomic.Int64
	m.Subscribe(func([]monitor.Snapshot) { deliveries.Add(1) })

	// Long poll interval so only the watcher can plausibly fire in time.
	r := NewRunner(time.Hour, 10*time.Millisecond)
	r.Add(m, dir)
	r.Start(context.Background())
	defer r.Stop()

	if !waitFor(t, time.Second, func() bool { return deliveries.Load() >= 1 }) {
		t.Fatal("initial refresh never ran")
	}

	if err := os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return deliveries.Load() >= 2 }) {
		t.Errorf("deliveries = %d, want >= 2 after file write", deliveries.Load())
	}
}

func TestRunnerDebounceCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	m := monitor.New(&discovery.Static{Provider: "claude"}, monitor.Options{})
	var deliveries atomic.Int64
	m.Subscribe(func([]monitor.Snapshot) { deliveries.Add(1) })

	r := NewRunner(time.Hour, 100*time.Millisecond)
	r.Add(m, dir)
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, time.Second, func() bool { return deliveries.Load() >= 1 })

	// A burst of writes inside the debounce window.
	for i := 0; i < 10; i++ {
		os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte("{}\n"), 0o644)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return deliveries.Load() >= 2 })
	time.Sleep(200 * time.Millisecond)

	// 1 initial + at most 2 debounced refreshes for the whole burst (two
	// when a write lands right after a timer fires).
	if got := deliveries.Load(); got > 3 {
		t.Errorf("deliveries = %d, want <= 3 for one coalesced burst", got)
	}
}
