package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestClaudeTranscriptFiles(t *testing.T) {
	root := t.TempDir()

	write := func(parts ...string) {
		t.Helper()
		path := filepath.Join(append([]string{root}, parts...)...)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("-home-user-projA", "abc123.jsonl")
	write("-home-user-projA", "def456.jsonl")
	write("-home-user-projB", "xyz.jsonl")
	write("-home-user-projA", "subagents", "nested.jsonl") // skipped: subagent dir
	write("-home-user-projA", "notes.txt")                 // skipped: not jsonl

	d := &Claude{Root: root}
	files, err := d.TranscriptFiles(context.Background())
	if err != nil {
		t.Fatalf("TranscriptFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3", len(files))
	}
	for _, f := range files {
		if f.ModTime.IsZero() {
			t.Errorf("file %s has zero mod time", f.Path)
		}
	}
}

func TestClaudeTranscriptFilesMissingRoot(t *testing.T) {
	d := &Claude{Root: filepath.Join(t.TempDir(), "does-not-exist")}
	files, err := d.TranscriptFiles(context.Background())
	if err != nil {
		t.Fatalf("TranscriptFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("len(files) = %d, want 0", len(files))
	}
}

func TestCodexTranscriptFilesWalksDateDirs(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "2026", "01", "02", "rollout-2026-01-02T10-00-00-abc.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d := &Codex{Root: root}
	files, err := d.TranscriptFiles(context.Background())
	if err != nil {
		t.Fatalf("TranscriptFiles: %v", err)
	}
	if len(files) != 1 || files[0].Path != path {
		t.Errorf("files = %+v, want the nested rollout file", files)
	}
}

func TestCommandMatches(t *testing.T) {
	tests := []struct {
		args    string
		command string
		want    bool
	}{
		{"claude --resume abc", "claude", true},
		{"/usr/local/bin/claude", "claude", true},
		{"vim claude.go", "claude", false},
		{"claudette", "claude", false},
		{"codex exec", "codex", true},
	}
	for _, tt := range tests {
		if got := commandMatches(tt.args, tt.command); got != tt.want {
			t.Errorf("commandMatches(%q, %q) = %v, want %v", tt.args, tt.command, got, tt.want)
		}
	}
}

func TestSessionIDFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"resume flag", []string{"claude", "--resume", "sess-1"}, "sess-1"},
		{"session-id flag", []string{"claude", "--session-id", "sess-2"}, "sess-2"},
		{"no flag", []string{"claude"}, ""},
		{"flag without value", []string{"claude", "--resume"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionIDFromArgs(tt.args); got != tt.want {
				t.Errorf("sessionIDFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
