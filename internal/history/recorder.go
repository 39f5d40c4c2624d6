// Package history archives per-provider token usage over time in SQLite.
// Each merged delivery may contribute one sample per provider, throttled so
// high-frequency refreshes do not flood the table; reports read the archive
// back by time window.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/transcript"
)

// DefaultSampleInterval throttles recording to one sample per provider per
// interval.
const DefaultSampleInterval = time.Minute

// Recorder owns the usage archive. A single Recorder is the only writer to
// its database file.
type Recorder struct {
	db   *sql.DB
	path string

	mu          sync.Mutex
	interval    time.Duration
	lastSampled map[string]time.Time
	now         func() time.Time
}

// Options tune a Recorder. Zero values mean defaults.
type Options struct {
	// SampleInterval is the per-provider recording throttle.
	SampleInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Open opens or creates the archive at path and applies the schema.
func Open(path string, opts Options) (*Recorder, error) {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}

	r := &Recorder{
		db:          db,
		path:        path,
		interval:    opts.SampleInterval,
		lastSampled: make(map[string]time.Time),
		now:         opts.Now,
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sampled_at TIMESTAMP NOT NULL,
			provider TEXT NOT NULL,
			sessions INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cache_read_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_samples_provider_time
			ON usage_samples(provider, sampled_at);
	`)
	if err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

// Consumer returns an aggregator consumer that records one sample per
// provider per delivery, subject to the sampling throttle.
func (r *Recorder) Consumer() aggregate.Consumer {
	return func(snaps []monitor.Snapshot) error {
		return r.Record(snaps)
	}
}

// Record groups the snapshots by provider and inserts a sample for each
// provider whose throttle window has elapsed.
func (r *Recorder) Record(snaps []monitor.Snapshot) error {
	type rollup struct {
		sessions int
		tokens   transcript.TokenCounts
		cost     float64
	}
	byProvider := make(map[string]*rollup)
	for _, snap := range snaps {
		agg, ok := byProvider[snap.Provider]
		if !ok {
			agg = &rollup{}
			byProvider[snap.Provider] = agg
		}
		agg.sessions++
		agg.tokens.Add(snap.Tokens)
		agg.cost += snap.CostUSD
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for provider, agg := range byProvider {
		if last, ok := r.lastSampled[provider]; ok && now.Sub(last) < r.interval {
			continue
		}
		_, err := r.db.Exec(`
			INSERT INTO usage_samples
				(sampled_at, provider, sessions, input_tokens, output_tokens, cache_read_tokens, cost_usd)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			now, provider, agg.sessions,
			agg.tokens.Input, agg.tokens.Output, agg.tokens.CacheRead, agg.cost,
		)
		if err != nil {
			return fmt.Errorf("recording usage sample: %w", err)
		}
		r.lastSampled[provider] = now
	}
	return nil
}

// ProviderTotals is one provider's usage as of its latest sample in a
// window.
type ProviderTotals struct {
	Provider  string                 `json:"provider"`
	Sessions  int                    `json:"sessions"`
	Tokens    transcript.TokenCounts `json:"tokens"`
	CostUSD   float64                `json:"costUSD"`
	SampledAt time.Time              `json:"sampledAt"`
	Samples   int                    `json:"samples"`
}

// Totals returns, per provider, the most recent sample taken at or after
// since, plus the number of samples in the window. Token counters in a
// sample are cumulative session totals, so the latest sample is the window's
// high-water mark.
func (r *Recorder) Totals(since time.Time) ([]ProviderTotals, error) {
	rows, err := r.db.Query(`
		SELECT s.provider, s.sessions, s.input_tokens, s.output_tokens, s.cache_read_tokens,
		       s.cost_usd, s.sampled_at,
		       (SELECT COUNT(*) FROM usage_samples c
		        WHERE c.provider = s.provider AND c.sampled_at >= ?) AS samples
		FROM usage_samples s
		WHERE s.sampled_at >= ?
		  AND s.id = (SELECT MAX(id) FROM usage_samples m
		              WHERE m.provider = s.provider AND m.sampled_at >= ?)
		ORDER BY s.provider`,
		since, since, since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}
	defer rows.Close()

	var out []ProviderTotals
	for rows.Next() {
		var t ProviderTotals
		if err := rows.Scan(&t.Provider, &t.Sessions,
			&t.Tokens.Input, &t.Tokens.Output, &t.Tokens.CacheRead,
			&t.CostUSD, &t.SampledAt, &t.Samples); err != nil {
			return nil, fmt.Errorf("scanning usage totals: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
