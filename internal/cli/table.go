package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/agentsight/agentsight/internal/transcript"
)

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// useJSON reports whether output should be machine readable: the --json
// flag, or stdout not being a terminal.
func useJSON() bool {
	return jsonOutput || !stdoutIsTTY()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// terminalWidth returns the usable output width, with a sane default when
// stdout is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

var colorProfile = termenv.ColorProfile()

// phaseCell colors the activity phase for terminal output. Waiting states
// are what a human scans for, so they get the loud colors.
func phaseCell(phase transcript.Phase) string {
	s := string(phase)
	if noColor || colorProfile == termenv.Ascii {
		return s
	}
	out := termenv.String(s)
	switch phase {
	case transcript.PhaseWaitingQuestion:
		out = out.Foreground(colorProfile.Color("11")).Bold() // yellow
	case transcript.PhaseWaitingPermission:
		out = out.Foreground(colorProfile.Color("9")).Bold() // red
	case transcript.PhaseInteractable:
		out = out.Foreground(colorProfile.Color("10")) // green
	default:
		out = out.Foreground(colorProfile.Color("8")) // dim
	}
	return out.String()
}

// cell truncates s to width display columns, ellipsized, and rune-width
// aware so CJK text lines up.
func cell(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return truncate.StringWithTail(s, uint(width), "…")
}

// table renders aligned plain-text columns: header row, dashed separator,
// left-aligned cells.
type table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	widths  []int
}

func newTable(w io.Writer, headers ...string) *table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &table{w: w, headers: headers, widths: widths}
}

func (t *table) addRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) {
			if cw := runewidth.StringWidth(stripANSI(c)); cw > t.widths[i] {
				t.widths[i] = cw
			}
		}
	}
	t.rows = append(t.rows, cols)
}

func (t *table) render() {
	writeRow := func(cols []string) {
		parts := make([]string, len(t.headers))
		for i := range t.headers {
			var c string
			if i < len(cols) {
				c = cols[i]
			}
			pad := t.widths[i] - runewidth.StringWidth(stripANSI(c))
			if pad < 0 {
				pad = 0
			}
			parts[i] = c + strings.Repeat(" ", pad)
		}
		fmt.Fprintln(t.w, "  "+strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	writeRow(t.headers)
	seps := make([]string, len(t.headers))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	writeRow(seps)
	for _, row := range t.rows {
		writeRow(row)
	}
}

// stripANSI removes SGR escape sequences for width measurement of colored
// cells.
func stripANSI(s string) string {
	for {
		start := strings.IndexByte(s, 0x1b)
		if start < 0 {
			return s
		}
		end := strings.IndexByte(s[start:], 'm')
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + s[start+end+1:]
	}
}

// relativeTime renders how long ago t was, compactly.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
