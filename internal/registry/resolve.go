package registry

import (
	"fmt"
	"time"
)

// ResumeSource says which rule picked the resume target.
type ResumeSource string

const (
	ResumeExplicit ResumeSource = "explicit"
	ResumeThread   ResumeSource = "thread"
	ResumeRecent   ResumeSource = "recent"
)

// ReasonNotFound is the only failure reason resolution produces.
const ReasonNotFound = "not_found"

// ResumeQuery asks which session a new interaction should attach to.
type ResumeQuery struct {
	// ExplicitSessionID, when set, must name an existing non-archived
	// record or resolution fails outright.
	ExplicitSessionID string
	// ThreadChannelID resolves through the thread index.
	ThreadChannelID string
	// OwnerUserID and MappingKey scope only the recency fallback. Explicit
	// and thread lookups ignore them: anyone who knows the session or the
	// thread may resume it.
	OwnerUserID string
	MappingKey  string
	// Now anchors TTL pruning; zero means the registry clock.
	Now time.Time
}

// ResumeResult is a typed outcome, never an error: callers branch on OK.
type ResumeResult struct {
	OK      bool         `json:"ok"`
	Source  ResumeSource `json:"source,omitempty"`
	Record  *Record      `json:"record,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ResolveResumeTarget picks the session to resume. Precedence, first success
// wins: explicit id, then thread binding, then the owner's most recently
// used session in the mapping group. An explicit id that is missing or
// archived fails immediately; a dead thread binding falls through to the
// recency rule.
func (r *Registry) ResolveResumeTarget(q ResumeQuery) ResumeResult {
	now := q.Now
	if now.IsZero() {
		now = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(now)

	if q.ExplicitSessionID != "" {
		rec, ok := r.sessions[q.ExplicitSessionID]
		if !ok || rec.Archived() {
			return notFound(fmt.Sprintf("session %q not found or archived", q.ExplicitSessionID))
		}
		return found(ResumeExplicit, rec)
	}

	if q.ThreadChannelID != "" {
		if id, ok := r.byThread[q.ThreadChannelID]; ok {
			if rec, ok := r.sessions[id]; ok && !rec.Archived() {
				return found(ResumeThread, rec)
			}
		}
	}

	var recent *Record
	for _, rec := range r.sessions {
		if rec.Archived() || rec.OwnerUserID != q.OwnerUserID || rec.MappingKey != q.MappingKey {
			continue
		}
		if recent == nil || rec.LastUsedAt.After(recent.LastUsedAt) {
			recent = rec
		}
	}
	if recent != nil {
		return found(ResumeRecent, recent)
	}

	return notFound(fmt.Sprintf("no resumable session for owner %q in %q", q.OwnerUserID, q.MappingKey))
}

func found(source ResumeSource, rec *Record) ResumeResult {
	return ResumeResult{OK: true, Source: source, Record: rec.clone()}
}

func notFound(message string) ResumeResult {
	return ResumeResult{OK: false, Reason: ReasonNotFound, Message: message}
}
