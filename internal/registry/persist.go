package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentsight/agentsight/internal/util"
)

// persistVersion tags the on-disk payload. Anything else is discarded on
// load rather than guessed at.
const persistVersion = 1

type persistedPayload struct {
	Version  int      `json:"version"`
	Sessions []Record `json:"sessions"`
}

// scheduleSaveLocked snapshots the current records and writes them out on a
// background goroutine. Fire-and-forget: the mutating call never blocks on
// or fails because of disk I/O. Stale writes are dropped by generation so an
// older snapshot cannot overwrite a newer one. Callers hold r.mu.
func (r *Registry) scheduleSaveLocked() {
	if r.path == "" {
		return
	}

	r.saveGen++
	gen := r.saveGen

	payload := persistedPayload{Version: persistVersion}
	for _, rec := range r.sessions {
		payload.Sessions = append(payload.Sessions, *rec.clone())
	}
	sort.Slice(payload.Sessions, func(i, j int) bool {
		return payload.Sessions[i].SessionID < payload.Sessions[j].SessionID
	})

	r.saveWG.Add(1)
	go func() {
		defer r.saveWG.Done()

		r.saveMu.Lock()
		defer r.saveMu.Unlock()
		if gen <= r.savedGen {
			return
		}
		r.savedGen = gen

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			slog.Warn("registry persist failed", "path", r.path, "error", err)
			return
		}
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			slog.Warn("registry persist failed", "path", r.path, "error", err)
			return
		}
		if err := util.AtomicWriteFile(r.path, data, 0o600); err != nil {
			slog.Warn("registry persist failed", "path", r.path, "error", err)
		}
	}()
}

// Flush blocks until pending persistence writes have settled. Call on
// shutdown; mutating paths never need it.
func (r *Registry) Flush() {
	r.saveWG.Wait()
}

// load replaces in-memory state from the persistence file. Missing file
// means a fresh start. A payload with the wrong version or malformed shape
// is discarded with a warning and current state stays untouched.
func (r *Registry) load() {
	if r.path == "" {
		return
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("registry load failed", "path", r.path, "error", err)
		}
		return
	}

	var payload persistedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("discarding corrupt registry file", "path", r.path, "error", err)
		return
	}
	if payload.Version != persistVersion {
		slog.Warn("discarding registry file with unknown version",
			"path", r.path, "version", payload.Version, "want", persistVersion)
		return
	}

	sessions := make(map[string]*Record, len(payload.Sessions))
	byThread := make(map[string]string)
	for i := range payload.Sessions {
		rec := payload.Sessions[i]
		if rec.SessionID == "" {
			slog.Debug("skipping persisted record without session id", "path", r.path)
			continue
		}
		sessions[rec.SessionID] = &rec
		if rec.ThreadChannelID != "" {
			// Latest use wins the thread binding when several records
			// carry the same thread.
			if prev, ok := byThread[rec.ThreadChannelID]; !ok || rec.LastUsedAt.After(sessions[prev].LastUsedAt) {
				byThread[rec.ThreadChannelID] = rec.SessionID
			}
		}
	}

	r.mu.Lock()
	r.sessions = sessions
	r.byThread = byThread
	r.mu.Unlock()
}
