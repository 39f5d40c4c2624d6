package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Claude discovers Claude Code sessions. Transcripts live one directory per
// project under ~/.claude/projects, one top-level .jsonl per session;
// subdirectories hold subagent logs and are skipped.
type Claude struct {
	// Root overrides the projects directory, for tests. Empty means
	// ~/.claude/projects.
	Root string
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Processes(ctx context.Context) ([]Process, error) {
	return scanProcesses(ctx, "claude")
}

func (c *Claude) TranscriptFiles(context.Context) ([]TranscriptFile, error) {
	root := c.Root
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(home, ".claude", "projects")
	}

	projects, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []TranscriptFile
	for _, proj := range projects {
		if !proj.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, proj.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			files = append(files, TranscriptFile{
				Path:    filepath.Join(root, proj.Name(), e.Name()),
				ModTime: info.ModTime(),
			})
		}
	}
	return files, nil
}
