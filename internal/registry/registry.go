// Package registry tracks resumable sessions: which session belongs to which
// conversation thread, who started it, and which one a new interaction should
// attach to. Records expire by TTL, pruned lazily on every read rather than
// on a timer. An instance is owned by a single call path; the mutex only
// serializes that owner's handler goroutines, not other processes.
package registry

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL is how long a record stays visible after its last use.
const DefaultTTL = 24 * time.Hour

// Record is one resumable session. ThreadChannelID binds the session to a
// conversation thread; MappingKey scopes it to a logical group such as a
// workspace.
type Record struct {
	SessionID       string     `json:"sessionId"`
	Provider        string     `json:"provider,omitempty"`
	OwnerUserID     string     `json:"ownerUserId,omitempty"`
	MappingKey      string     `json:"mappingKey,omitempty"`
	Cwd             string     `json:"cwd,omitempty"`
	ThreadChannelID string     `json:"threadChannelId,omitempty"`
	ParentChannelID string     `json:"parentChannelId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsedAt      time.Time  `json:"lastUsedAt"`
	ArchivedAt      *time.Time `json:"archivedAt,omitempty"`
}

// Archived reports whether the record has been closed out.
func (r *Record) Archived() bool { return r.ArchivedAt != nil }

func (r *Record) clone() *Record {
	cp := *r
	if r.ArchivedAt != nil {
		at := *r.ArchivedAt
		cp.ArchivedAt = &at
	}
	return &cp
}

// Options configure a Registry. Zero values mean defaults.
type Options struct {
	// TTL evicts records whose LastUsedAt is older than this.
	TTL time.Duration
	// Path is the persistence file. Empty disables persistence and the
	// registry lives purely in memory.
	Path string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry holds the session records and the thread index.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	path     string
	now      func() time.Time
	sessions map[string]*Record // sessionID -> record
	byThread map[string]string  // threadChannelID -> sessionID

	saveWG   sync.WaitGroup
	saveMu   sync.Mutex
	saveGen  uint64 // bumped per mutation, read under mu
	savedGen uint64 // last generation written, read under saveMu
}

// New builds a Registry and loads persisted state when a path is configured.
// A corrupt or mismatched persisted payload is discarded with a warning and
// the registry starts empty.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		ttl:      opts.TTL,
		path:     opts.Path,
		now:      opts.Now,
		sessions: make(map[string]*Record),
		byThread: make(map[string]string),
	}
	r.load()
	return r
}

// UpsertParams name the fields a session start or use event carries.
type UpsertParams struct {
	SessionID       string
	Provider        string
	OwnerUserID     string
	MappingKey      string
	Cwd             string
	ThreadChannelID string
	ParentChannelID string
	// Timestamp is the event time; zero means now.
	Timestamp time.Time
}

// Upsert creates or updates the record for params.SessionID. CreatedAt and
// ArchivedAt survive updates; LastUsedAt always moves to the event time. A
// non-empty thread id re-points the thread index to this session. Returns a
// copy of the stored record.
func (r *Registry) Upsert(params UpsertParams) *Record {
	if params.SessionID == "" {
		return nil
	}
	at := params.Timestamp
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	r.pruneLocked(at)

	rec, ok := r.sessions[params.SessionID]
	if !ok {
		rec = &Record{SessionID: params.SessionID, CreatedAt: at}
		r.sessions[params.SessionID] = rec
	}
	if params.Provider != "" {
		rec.Provider = params.Provider
	}
	if params.OwnerUserID != "" {
		rec.OwnerUserID = params.OwnerUserID
	}
	if params.MappingKey != "" {
		rec.MappingKey = params.MappingKey
	}
	if params.Cwd != "" {
		rec.Cwd = params.Cwd
	}
	if params.ParentChannelID != "" {
		rec.ParentChannelID = params.ParentChannelID
	}
	if params.ThreadChannelID != "" && params.ThreadChannelID != rec.ThreadChannelID {
		if rec.ThreadChannelID != "" && r.byThread[rec.ThreadChannelID] == rec.SessionID {
			delete(r.byThread, rec.ThreadChannelID)
		}
		rec.ThreadChannelID = params.ThreadChannelID
	}
	if rec.ThreadChannelID != "" {
		// Later upsert wins the thread binding even if another session
		// held it before.
		r.byThread[rec.ThreadChannelID] = rec.SessionID
	}
	rec.LastUsedAt = at

	out := rec.clone()
	r.scheduleSaveLocked()
	r.mu.Unlock()
	return out
}

// Archive marks a session closed. Idempotent: ArchivedAt is set only when
// unset. Archived records drop out of default listings and resolution but
// stay retrievable by explicit id until TTL eviction. Reports whether the
// session existed.
func (r *Registry) Archive(sessionID string, at time.Time) bool {
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(at)

	rec, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if rec.ArchivedAt == nil {
		stamp := at
		rec.ArchivedAt = &stamp
		r.scheduleSaveLocked()
	}
	return true
}

// Get returns a copy of the record for sessionID, archived or not, after
// pruning expired records.
func (r *Registry) Get(sessionID string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())

	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Filter narrows List output. Zero fields match everything.
type Filter struct {
	OwnerUserID     string
	MappingKey      string
	IncludeArchived bool
	// Now anchors TTL pruning; zero means the registry clock.
	Now time.Time
}

// List returns copies of the matching non-expired records, most recently
// used first. Archived records are excluded unless IncludeArchived is set.
func (r *Registry) List(f Filter) []*Record {
	now := f.Now
	if now.IsZero() {
		now = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(now)

	var out []*Record
	for _, rec := range r.sessions {
		if rec.Archived() && !f.IncludeArchived {
			continue
		}
		if f.OwnerUserID != "" && rec.OwnerUserID != f.OwnerUserID {
			continue
		}
		if f.MappingKey != "" && rec.MappingKey != f.MappingKey {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}

// Len reports the number of live records after pruning.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
	return len(r.sessions)
}

// pruneLocked evicts records whose last use is older than the TTL, from both
// indices. Callers hold r.mu.
func (r *Registry) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.ttl)
	for id, rec := range r.sessions {
		if rec.LastUsedAt.Before(cutoff) {
			delete(r.sessions, id)
			if rec.ThreadChannelID != "" && r.byThread[rec.ThreadChannelID] == id {
				delete(r.byThread, rec.ThreadChannelID)
			}
		}
	}
}
