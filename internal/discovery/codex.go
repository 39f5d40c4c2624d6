package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Codex discovers Codex CLI sessions. Transcripts are rollout files nested
// in date directories under ~/.codex/sessions.
type Codex struct {
	// Root overrides the sessions directory, for tests. Empty means
	// ~/.codex/sessions.
	Root string
}

func (c *Codex) Name() string { return "codex" }

func (c *Codex) Processes(ctx context.Context) ([]Process, error) {
	return scanProcesses(ctx, "codex")
}

func (c *Codex) TranscriptFiles(context.Context) ([]TranscriptFile, error) {
	root := c.Root
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(home, ".codex", "sessions")
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []TranscriptFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, TranscriptFile{Path: path, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
