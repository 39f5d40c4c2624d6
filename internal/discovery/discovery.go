// Package discovery locates candidate transcript files and live agent
// processes per provider. Monitors consume its output as opaque lists; all
// provider-specific path and process knowledge lives here.
package discovery

import (
	"context"
	"time"
)

// Process describes one live agent process.
type Process struct {
	PID         int     `json:"pid"`
	SessionID   string  `json:"sessionId,omitempty"`
	Cwd         string  `json:"cwd,omitempty"`
	CPUPercent  float64 `json:"cpuPercent"`
	MemoryBytes int64   `json:"memoryBytes"`
}

// TranscriptFile is one candidate session log found on disk.
type TranscriptFile struct {
	Path    string
	ModTime time.Time
}

// Discoverer supplies the per-provider inputs a session monitor consumes on
// each refresh. Implementations are called from a single monitor goroutine
// and do not need to be safe for concurrent use.
type Discoverer interface {
	// Name returns the short lowercase provider identifier, e.g. "claude".
	// It becomes part of composite session keys.
	Name() string

	// Processes returns the provider's live agent processes.
	Processes(ctx context.Context) ([]Process, error)

	// TranscriptFiles returns candidate session logs with their current
	// modification times. Called on every refresh, so implementations
	// should stay at directory-listing cost.
	TranscriptFiles(ctx context.Context) ([]TranscriptFile, error)
}

// Static is a fixed-content Discoverer for tests and custom wiring.
type Static struct {
	Provider string
	Procs    []Process
	Files    []TranscriptFile
}

func (s *Static) Name() string { return s.Provider }

func (s *Static) Processes(context.Context) ([]Process, error) {
	return s.Procs, nil
}

func (s *Static) TranscriptFiles(context.Context) ([]TranscriptFile, error) {
	return s.Files, nil
}
