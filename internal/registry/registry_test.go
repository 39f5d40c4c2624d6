package registry

import (
	"testing"
	"time"
)

var base = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func newTestRegistry(ttl time.Duration) *Registry {
	return New(Options{TTL: ttl, Now: func() time.Time { return base }})
}

func TestUpsertCreateAndUpdate(t *testing.T) {
	r := newTestRegistry(0)

	created := r.Upsert(UpsertParams{
		SessionID:       "s-1",
		Provider:        "claude",
		OwnerUserID:     "user-a",
		MappingKey:      "mg",
		Cwd:             "/work",
		ThreadChannelID: "thread-1",
		ParentChannelID: "parent-1",
		Timestamp:       base,
	})
	if created == nil {
		t.Fatal("Upsert returned nil")
	}
	if !created.CreatedAt.Equal(base) || !created.LastUsedAt.Equal(base) {
		t.Errorf("timestamps = %v/%v, want both %v", created.CreatedAt, created.LastUsedAt, base)
	}

	later := base.Add(time.Hour)
	updated := r.Upsert(UpsertParams{SessionID: "s-1", Cwd: "/elsewhere", Timestamp: later})
	if !updated.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want original %v", updated.CreatedAt, base)
	}
	if !updated.LastUsedAt.Equal(later) {
		t.Errorf("LastUsedAt = %v, want %v", updated.LastUsedAt, later)
	}
	if updated.Cwd != "/elsewhere" {
		t.Errorf("Cwd = %q, want /elsewhere", updated.Cwd)
	}
	if updated.Provider != "claude" || updated.OwnerUserID != "user-a" {
		t.Errorf("update clobbered fields it did not carry: %+v", updated)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestUpsertPreservesArchivedAt(t *testing.T) {
	r := newTestRegistry(0)
	r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base})
	r.Archive("s-1", base.Add(time.Minute))

	rec := r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base.Add(time.Hour)})
	if rec.ArchivedAt == nil || !rec.ArchivedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("ArchivedAt = %v, want preserved %v", rec.ArchivedAt, base.Add(time.Minute))
	}
}

func TestUpsertRepointsThreadIndex(t *testing.T) {
	r := newTestRegistry(0)
	r.Upsert(UpsertParams{SessionID: "s-old", ThreadChannelID: "thread-1", Timestamp: base})
	r.Upsert(UpsertParams{SessionID: "s-new", ThreadChannelID: "thread-1", Timestamp: base.Add(time.Minute)})

	res := r.ResolveResumeTarget(ResumeQuery{ThreadChannelID: "thread-1", Now: base.Add(time.Minute)})
	if !res.OK || res.Record.SessionID != "s-new" {
		t.Errorf("thread resolution = %+v, want s-new", res)
	}
}

func TestArchiveIdempotent(t *testing.T) {
	r := newTestRegistry(0)
	r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base})

	first := base.Add(time.Minute)
	if !r.Archive("s-1", first) {
		t.Fatal("Archive returned false for existing session")
	}
	r.Archive("s-1", base.Add(time.Hour))

	rec, ok := r.Get("s-1")
	if !ok {
		t.Fatal("archived record should stay retrievable by id")
	}
	if rec.ArchivedAt == nil || !rec.ArchivedAt.Equal(first) {
		t.Errorf("ArchivedAt = %v, want first archive time %v", rec.ArchivedAt, first)
	}

	if r.Archive("s-missing", base) {
		t.Error("Archive returned true for unknown session")
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	r := newTestRegistry(0)
	r.Upsert(UpsertParams{SessionID: "s-1", OwnerUserID: "user-a", MappingKey: "mg", Timestamp: base})
	r.Upsert(UpsertParams{SessionID: "s-2", OwnerUserID: "user-a", MappingKey: "mg", Timestamp: base.Add(time.Minute)})
	r.Upsert(UpsertParams{SessionID: "s-3", OwnerUserID: "user-b", MappingKey: "mg", Timestamp: base.Add(2 * time.Minute)})
	r.Upsert(UpsertParams{SessionID: "s-4", OwnerUserID: "user-a", MappingKey: "other", Timestamp: base.Add(3 * time.Minute)})
	r.Archive("s-1", base.Add(4*time.Minute))

	t.Run("owner and mapping filter, newest first, archived hidden", func(t *testing.T) {
		got := r.List(Filter{OwnerUserID: "user-a", MappingKey: "mg", Now: base.Add(5 * time.Minute)})
		if len(got) != 1 || got[0].SessionID != "s-2" {
			t.Fatalf("List = %v, want [s-2]", ids(got))
		}
	})

	t.Run("includeArchived restores archived records", func(t *testing.T) {
		got := r.List(Filter{OwnerUserID: "user-a", MappingKey: "mg", IncludeArchived: true, Now: base.Add(5 * time.Minute)})
		want := []string{"s-2", "s-1"}
		if len(got) != 2 || got[0].SessionID != want[0] || got[1].SessionID != want[1] {
			t.Fatalf("List = %v, want %v", ids(got), want)
		}
	})

	t.Run("no filter returns all live records newest first", func(t *testing.T) {
		got := r.List(Filter{Now: base.Add(5 * time.Minute)})
		want := []string{"s-4", "s-3", "s-2"}
		if len(got) != 3 {
			t.Fatalf("List = %v, want %v", ids(got), want)
		}
		for i := range want {
			if got[i].SessionID != want[i] {
				t.Errorf("List[%d] = %q, want %q", i, got[i].SessionID, want[i])
			}
		}
	})
}

func ids(records []*Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.SessionID
	}
	return out
}

func TestTTLExpiry(t *testing.T) {
	// ttl of one second; a record last used at base is gone two seconds on.
	r := newTestRegistry(time.Second)
	r.Upsert(UpsertParams{SessionID: "s-1", ThreadChannelID: "thread-1", Timestamp: base})

	res := r.ResolveResumeTarget(ResumeQuery{ExplicitSessionID: "s-1", Now: base.Add(2 * time.Second)})
	if res.OK {
		t.Fatalf("resolve after ttl = %+v, want not_found", res)
	}
	if res.Reason != ReasonNotFound {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonNotFound)
	}

	// Lazy prune removed it from both indices.
	if got := r.List(Filter{Now: base.Add(2 * time.Second)}); len(got) != 0 {
		t.Errorf("List after expiry = %v, want empty", ids(got))
	}
	thread := r.ResolveResumeTarget(ResumeQuery{ThreadChannelID: "thread-1", Now: base.Add(2 * time.Second)})
	if thread.OK {
		t.Errorf("thread resolve after expiry = %+v, want not_found", thread)
	}
}

func TestTTLKeepsFreshRecords(t *testing.T) {
	r := newTestRegistry(time.Second)
	r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base})

	res := r.ResolveResumeTarget(ResumeQuery{ExplicitSessionID: "s-1", Now: base.Add(500 * time.Millisecond)})
	if !res.OK {
		t.Errorf("resolve within ttl failed: %+v", res)
	}
}

func TestUpsertRefreshesTTL(t *testing.T) {
	r := newTestRegistry(time.Second)
	r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base})
	r.Upsert(UpsertParams{SessionID: "s-1", Timestamp: base.Add(900 * time.Millisecond)})

	// Without the second use this would be expired.
	res := r.ResolveResumeTarget(ResumeQuery{ExplicitSessionID: "s-1", Now: base.Add(1800 * time.Millisecond)})
	if !res.OK {
		t.Errorf("resolve after refreshed use failed: %+v", res)
	}
}
