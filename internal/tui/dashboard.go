// Package tui renders the live session dashboard for the watch command.
// Snapshot batches arrive as messages pushed from the aggregator; the model
// never fetches on its own beyond asking its refresh hook to run.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/agentsight/agentsight/internal/cost"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/transcript"
	"github.com/agentsight/agentsight/internal/util"
)

// SnapshotsMsg delivers a merged snapshot batch to the dashboard.
type SnapshotsMsg []monitor.Snapshot

// tickMsg drives the relative-time column.
type tickMsg time.Time

// KeyMap defines dashboard keybindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	phaseStyles = map[transcript.Phase]lipgloss.Style{
		transcript.PhaseWaitingQuestion:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		transcript.PhaseWaitingPermission: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		transcript.PhaseInteractable:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		transcript.PhaseBusy:              lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

// Model is the dashboard model.
type Model struct {
	snapshots  []monitor.Snapshot
	width      int
	height     int
	cursor     int
	lastUpdate time.Time
	quitting   bool
	keys       KeyMap

	// onRefresh asks the pipeline for an immediate refresh; may be nil.
	onRefresh func()
}

// New builds a dashboard. onRefresh is invoked when the user presses the
// refresh key; pass nil when refresh cadence is fully external.
func New(onRefresh func()) Model {
	return Model{keys: DefaultKeyMap(), onRefresh: onRefresh, width: 100, height: 30}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SnapshotsMsg:
		m.snapshots = msg
		m.lastUpdate = time.Now()
		if m.cursor >= len(m.snapshots) {
			m.cursor = max(0, len(m.snapshots)-1)
		}

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.snapshots)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Refresh):
			if m.onRefresh != nil {
				go m.onRefresh()
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	waiting := 0
	var totalCost float64
	for _, s := range m.snapshots {
		if s.Phase == transcript.PhaseWaitingQuestion || s.Phase == transcript.PhaseWaitingPermission {
			waiting++
		}
		totalCost += s.CostUSD
	}
	title := fmt.Sprintf(" agentsight — %d session(s), %d waiting, %s",
		len(m.snapshots), waiting, cost.FormatUSD(totalCost))
	if !m.lastUpdate.IsZero() {
		title += fmt.Sprintf("  (updated %s)", relTime(m.lastUpdate, time.Now()))
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if len(m.snapshots) == 0 {
		b.WriteString("  No live sessions.\n")
	} else {
		b.WriteString(m.renderTable())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  ↑/↓ move · r refresh · q quit"))
	return b.String()
}

func (m Model) renderTable() string {
	msgWidth := m.width - 72
	if msgWidth < 12 {
		msgWidth = 12
	}

	cols := []struct {
		name  string
		width int
	}{
		{"PROVIDER", 8}, {"SESSION", 12}, {"PHASE", 19}, {"DIR", 16},
		{"TOKENS", 7}, {"ACTIVITY", 8}, {"LAST MESSAGE", msgWidth},
	}

	var b strings.Builder
	var header strings.Builder
	for _, c := range cols {
		header.WriteString(pad(c.name, c.width))
		header.WriteString("  ")
	}
	b.WriteString("  " + headerStyle.Render(strings.TrimRight(header.String(), " ")) + "\n")

	now := time.Now()
	maxRows := m.height - 7
	if maxRows < 1 {
		maxRows = 1
	}
	for i, s := range m.snapshots {
		if i >= maxRows {
			b.WriteString(fmt.Sprintf("  … %d more\n", len(m.snapshots)-maxRows))
			break
		}

		phase := phaseStyles[s.Phase].Render(pad(string(s.Phase), 19))
		row := "  " +
			pad(s.Provider, 8) + "  " +
			pad(clip(s.SessionID, 12), 12) + "  " +
			phase + "  " +
			pad(clip(filepath.Base(s.Cwd), 16), 16) + "  " +
			pad(util.FormatTokens(s.Tokens.Total()), 7) + "  " +
			pad(relTime(s.LastActivity, now), 8) + "  " +
			clip(s.LastUserMessage, msgWidth)
		if i == m.cursor {
			row = cursorStyle.Render(row)
		}
		b.WriteString(row + "\n")
	}
	return b.String()
}

func clip(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return truncate.StringWithTail(s, uint(width), "…")
}

func pad(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
