package monitor

import (
	"time"

	"github.com/agentsight/agentsight/internal/transcript"
)

// State is the coarse lifecycle of a session, distinct from the finer
// activity phase: state says whether anything is running, phase says what
// the conversation is waiting on.
type State string

const (
	StateActive    State = "active"
	StateIdle      State = "idle"
	StateCompleted State = "completed"
	StateStale     State = "stale"
)

// StatePriority orders states for merged views: running sessions first,
// finished ones last. Lower sorts earlier.
func StatePriority(s State) int {
	switch s {
	case StateActive:
		return 0
	case StateIdle:
		return 1
	case StateCompleted:
		return 2
	default:
		return 3
	}
}

// Snapshot is the computed point-in-time view of one session from one
// provider. Recomputed whole on every refresh; a new value replaces the old
// one, nothing mutates in place.
type Snapshot struct {
	Provider string `json:"provider"`
	transcript.Info
	Phase          transcript.Phase `json:"activityPhase"`
	State          State            `json:"state"`
	TranscriptPath string           `json:"transcriptPath"`
	PID            int              `json:"pid,omitempty"`
	CPUPercent     float64          `json:"cpuPercent,omitempty"`
	MemoryBytes    int64            `json:"memoryBytes,omitempty"`
	CostUSD        float64          `json:"costUSD"`
	RefreshedAt    time.Time        `json:"refreshedAt"`
}

// Key is the composite identity used for cross-provider deduplication.
// Provider is part of the key, so equal session ids from different providers
// never collide.
func (s Snapshot) Key() string {
	return s.Provider + ":" + s.SessionID
}
