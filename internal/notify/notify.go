// Package notify turns session phase transitions into outbound
// notifications. A Notifier consumes merged snapshot deliveries, remembers
// the last phase it saw per session, and dispatches an event when a session
// crosses into a state a human should know about (waiting for an answer,
// waiting for permission, turn finished). Sinks are webhooks and a log file.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/transcript"
)

// EventType identifies a notification event.
type EventType string

const (
	EventWaitingQuestion   EventType = "session.waiting_question"
	EventWaitingPermission EventType = "session.waiting_permission"
	EventInteractable      EventType = "session.interactable"
	EventCompleted         EventType = "session.completed"
)

// KnownEvent reports whether name is a recognized notification event.
func KnownEvent(name string) bool {
	switch EventType(strings.TrimSpace(name)) {
	case EventWaitingQuestion, EventWaitingPermission, EventInteractable, EventCompleted:
		return true
	default:
		return false
	}
}

// Event is the payload delivered to sinks.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	SessionID string    `json:"session_id"`
	Cwd       string    `json:"cwd,omitempty"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
}

// Config holds notification configuration.
type Config struct {
	Enabled bool     `toml:"enabled"`
	Events  []string `toml:"events"` // Which events to notify on

	Webhook WebhookSink `toml:"webhook"`
	Log     LogSink     `toml:"log"`
}

// WebhookSink configures the default webhook target from the main config.
// Per-project routes from .agentsight.yaml are added on top of this one.
type WebhookSink struct {
	Enabled bool              `toml:"enabled"`
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`
}

// LogSink appends one line per event to a file.
type LogSink struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultConfig returns a default notification configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Events: []string{
			string(EventWaitingQuestion),
			string(EventWaitingPermission),
		},
		Webhook: WebhookSink{Enabled: false},
		Log: LogSink{
			Enabled: false,
			Path:    "~/.config/agentsight/notifications.log",
		},
	}
}

// Route is one webhook target. Routes come from the main config's webhook
// sink and from per-project .agentsight.yaml files.
type Route struct {
	Name      string
	URL       string
	Events    []string // empty matches every enabled event
	Providers []string // empty matches every provider
	Timeout   time.Duration
	Secret    string
	Headers   map[string]string
}

func (r Route) matches(ev Event) bool {
	if len(r.Events) > 0 {
		ok := false
		for _, e := range r.Events {
			if EventType(strings.TrimSpace(e)) == ev.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(r.Providers) > 0 {
		ok := false
		for _, p := range r.Providers {
			if strings.EqualFold(strings.TrimSpace(p), ev.Provider) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Notifier watches snapshot deliveries for phase transitions and fans
// matching events out to the configured sinks.
type Notifier struct {
	cfg        Config
	enabled    map[EventType]bool
	routes     []Route
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	lastPhase map[string]transcript.Phase
	lastState map[string]monitor.State
}

// New builds a Notifier. Routes from per-project files are appended to the
// webhook sink configured in cfg.
func New(cfg Config, routes []Route) *Notifier {
	cfg.Log.Path = os.ExpandEnv(cfg.Log.Path)

	n := &Notifier{
		cfg:        cfg,
		enabled:    make(map[EventType]bool),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		lastPhase:  make(map[string]transcript.Phase),
		lastState:  make(map[string]monitor.State),
	}
	for _, e := range cfg.Events {
		n.enabled[EventType(strings.TrimSpace(e))] = true
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		n.routes = append(n.routes, Route{
			Name:    "config",
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
		})
	}
	n.routes = append(n.routes, routes...)
	return n
}

// Consumer returns an aggregator consumer that feeds deliveries into the
// notifier. Dispatch happens inline; a slow sink delays only the coalesced
// follow-up pass, never other consumers.
func (n *Notifier) Consumer() aggregate.Consumer {
	return func(snaps []monitor.Snapshot) error {
		return n.Observe(snaps)
	}
}

// Observe diffs the delivery against the previously seen phases and
// dispatches events for the transitions that warrant one.
func (n *Notifier) Observe(snaps []monitor.Snapshot) error {
	if !n.cfg.Enabled {
		return nil
	}

	var errs []error
	for _, ev := range n.transitions(snaps) {
		if err := n.dispatch(ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// transitions updates the per-session phase memory and returns the events
// to emit. Sessions absent from the delivery are forgotten so a restarted
// session notifies again.
func (n *Notifier) transitions(snaps []monitor.Snapshot) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	seen := make(map[string]bool, len(snaps))
	var events []Event

	for _, snap := range snaps {
		key := snap.Key()
		seen[key] = true

		prevPhase, known := n.lastPhase[key]
		prevState := n.lastState[key]
		n.lastPhase[key] = snap.Phase
		n.lastState[key] = snap.State

		if known && prevState != monitor.StateCompleted && snap.State == monitor.StateCompleted {
			events = n.appendEvent(events, EventCompleted, snap)
		}

		if known && snap.Phase == prevPhase {
			continue
		}
		// First sighting only alerts for waiting states; announcing every
		// already-idle session at startup would be noise.
		switch snap.Phase {
		case transcript.PhaseWaitingQuestion:
			events = n.appendEvent(events, EventWaitingQuestion, snap)
		case transcript.PhaseWaitingPermission:
			events = n.appendEvent(events, EventWaitingPermission, snap)
		case transcript.PhaseInteractable:
			if known {
				events = n.appendEvent(events, EventInteractable, snap)
			}
		}
	}

	for key := range n.lastPhase {
		if !seen[key] {
			delete(n.lastPhase, key)
			delete(n.lastState, key)
		}
	}
	return events
}

func (n *Notifier) appendEvent(events []Event, typ EventType, snap monitor.Snapshot) []Event {
	if !n.enabled[typ] {
		return events
	}
	return append(events, Event{
		Type:      typ,
		Timestamp: n.now().UTC(),
		Provider:  snap.Provider,
		SessionID: snap.SessionID,
		Cwd:       snap.Cwd,
		Phase:     string(snap.Phase),
		Message:   eventMessage(typ, snap),
	})
}

func eventMessage(typ EventType, snap monitor.Snapshot) string {
	id := shortID(snap.SessionID)
	switch typ {
	case EventWaitingQuestion:
		return fmt.Sprintf("%s session %s is waiting for an answer", snap.Provider, id)
	case EventWaitingPermission:
		if len(snap.WaitToolNames) > 0 {
			return fmt.Sprintf("%s session %s is waiting for permission: %s",
				snap.Provider, id, strings.Join(snap.WaitToolNames, ", "))
		}
		return fmt.Sprintf("%s session %s is waiting for permission", snap.Provider, id)
	case EventInteractable:
		return fmt.Sprintf("%s session %s finished its turn", snap.Provider, id)
	case EventCompleted:
		return fmt.Sprintf("%s session %s completed", snap.Provider, id)
	default:
		return fmt.Sprintf("%s session %s: %s", snap.Provider, id, typ)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// dispatch sends ev to the log sink and every matching route. Sink failures
// are collected so one bad route cannot silence the others.
func (n *Notifier) dispatch(ev Event) error {
	var errs []error

	if n.cfg.Log.Enabled && n.cfg.Log.Path != "" {
		if err := n.sendLog(ev); err != nil {
			errs = append(errs, fmt.Errorf("log: %w", err))
		}
	}
	for _, route := range n.routes {
		if !route.matches(ev) {
			continue
		}
		if err := n.sendWebhook(route, ev); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", route.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}
	return nil
}

func (n *Notifier) sendWebhook(route Route, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, route.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range route.Headers {
		req.Header.Set(k, v)
	}
	if route.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+route.Secret)
	}

	client := n.httpClient
	if route.Timeout > 0 {
		client = &http.Client{Timeout: route.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) sendLog(ev Event) error {
	path := expandHome(n.cfg.Log.Path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] [%s:%s] %s: %s",
		ev.Timestamp.Format(time.RFC3339), ev.Provider, shortID(ev.SessionID), ev.Type, ev.Message)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("writing log line: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
