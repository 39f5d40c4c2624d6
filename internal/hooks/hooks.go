// Package hooks ingests agent lifecycle events and applies them to the
// session registry. Provider hook scripts POST these events as JSON
// (SessionStart when an agent boots, UserPromptSubmit on each prompt, and
// so on); the dispatcher translates each into the matching registry
// mutation and ignores everything it does not recognize.
package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentsight/agentsight/internal/registry"
)

// Hook event names, matching what provider-side hook scripts send.
const (
	EventSessionStart     = "SessionStart"
	EventSessionResume    = "SessionResume"
	EventSessionEnd       = "SessionEnd"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventStop             = "Stop"
)

// Event is the wire payload a provider hook script delivers. Field names
// follow the provider hook convention (snake_case). TranscriptPath rides
// along for monitors; the registry itself does not store it.
type Event struct {
	HookEventName   string    `json:"hook_event_name"`
	SessionID       string    `json:"session_id"`
	Cwd             string    `json:"cwd,omitempty"`
	TranscriptPath  string    `json:"transcript_path,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	OwnerUserID     string    `json:"owner_user_id,omitempty"`
	MappingKey      string    `json:"mapping_key,omitempty"`
	ThreadChannelID string    `json:"thread_channel_id,omitempty"`
	ParentChannelID string    `json:"parent_channel_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ParseEvent decodes and validates a hook payload.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding hook event: %w", err)
	}
	if ev.HookEventName == "" {
		return Event{}, errors.New("hook event missing hook_event_name")
	}
	if ev.SessionID == "" {
		return Event{}, fmt.Errorf("hook event %s missing session_id", ev.HookEventName)
	}
	return ev, nil
}

// Dispatcher applies hook events to a registry.
type Dispatcher struct {
	registry *registry.Registry
	now      func() time.Time
}

// NewDispatcher builds a dispatcher writing into reg.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg, now: time.Now}
}

// Handle applies ev. Start-class events (SessionStart, SessionResume)
// create or update the session record. SessionEnd archives it. Activity
// events refresh LastUsedAt. Unknown event names are logged at debug and
// ignored; nothing here returns an error because a hook delivery has no
// caller to report to.
func (d *Dispatcher) Handle(ev Event) {
	at := ev.Timestamp
	if at.IsZero() {
		at = d.now()
	}

	switch ev.HookEventName {
	case EventSessionStart, EventSessionResume:
		d.registry.Upsert(upsertParams(ev, at))
	case EventSessionEnd:
		if !d.registry.Archive(ev.SessionID, at) {
			slog.Debug("session end for unknown session", "session_id", ev.SessionID)
		}
	case EventUserPromptSubmit, EventStop:
		// Activity only: refresh LastUsedAt plus whatever identity fields
		// the event happens to carry.
		d.registry.Upsert(upsertParams(ev, at))
	default:
		slog.Debug("ignoring unknown hook event",
			"hook_event_name", ev.HookEventName,
			"session_id", ev.SessionID)
	}
}

// HandleRaw decodes a JSON payload and applies it. The error covers decode
// and validation only; applying an event never fails.
func (d *Dispatcher) HandleRaw(data []byte) error {
	ev, err := ParseEvent(data)
	if err != nil {
		return err
	}
	d.Handle(ev)
	return nil
}

func upsertParams(ev Event, at time.Time) registry.UpsertParams {
	return registry.UpsertParams{
		SessionID:       ev.SessionID,
		Provider:        ev.Provider,
		OwnerUserID:     ev.OwnerUserID,
		MappingKey:      ev.MappingKey,
		Cwd:             ev.Cwd,
		ThreadChannelID: ev.ThreadChannelID,
		ParentChannelID: ev.ParentChannelID,
		Timestamp:       at,
	}
}
