package cli

import (
	"strings"
	"testing"
	"time"
)

func TestCell(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"truncated", "hello world", 8, "hello w…"},
		{"newlines flattened", "a\nb", 10, "a b"},
		{"exact", "hello", 5, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cell(tt.in, tt.width); got != tt.want {
				t.Errorf("cell(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"\x1b[1;33mbusy\x1b[0m", "busy"},
		{"a\x1b[31mb\x1b[0mc", "abc"},
		{"dangling\x1b[31", "dangling"},
	}
	for _, tt := range tests {
		if got := stripANSI(tt.in); got != tt.want {
			t.Errorf("stripANSI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "-"},
		{"seconds", now.Add(-30 * time.Second), "30s ago"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"days", now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeTime(tt.t, now); got != tt.want {
				t.Errorf("relativeTime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTableRender(t *testing.T) {
	var sb strings.Builder
	tbl := newTable(&sb, "NAME", "STATE")
	tbl.addRow("alpha", "active")
	tbl.addRow("a-much-longer-name", "idle")
	tbl.render()

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("rendered %d lines, want 4:\n%s", len(lines), sb.String())
	}
	if !strings.Contains(lines[0], "NAME") || !strings.Contains(lines[0], "STATE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "----") {
		t.Errorf("separator = %q", lines[1])
	}
	// The STATE column aligns past the widest NAME cell.
	stateCol := strings.Index(lines[0], "STATE")
	if got := strings.Index(lines[2], "active"); got != stateCol {
		t.Errorf("active at column %d, want %d", got, stateCol)
	}
	if got := strings.Index(lines[3], "idle"); got != stateCol {
		t.Errorf("idle at column %d, want %d", got, stateCol)
	}
}

func TestTableRenderColoredCellWidth(t *testing.T) {
	var sb strings.Builder
	tbl := newTable(&sb, "PHASE", "X")
	tbl.addRow("\x1b[1;33mbusy\x1b[0m", "y")
	tbl.render()

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	// Column width comes from the header (5), not the escaped cell length.
	xCol := strings.Index(lines[0], "X")
	if got := strings.Index(stripANSI(lines[2]), "y"); got != xCol {
		t.Errorf("y at column %d, want %d\n%s", got, xCol, sb.String())
	}
}
