package discovery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// scanProcesses lists live processes whose command line contains the given
// token, with pid, cpu%, and resident memory from ps. The working directory
// is resolved from /proc where available so monitors can correlate a process
// with the session running in the same directory; on systems without /proc
// it stays empty and correlation falls back to session ids.
func scanProcesses(ctx context.Context, command string) ([]Process, error) {
	out, err := exec.CommandContext(ctx, "ps", "axo", "pid=,pcpu=,rss=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var procs []Process
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		args := strings.Join(fields[3:], " ")
		if !commandMatches(args, command) {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		cpu, _ := strconv.ParseFloat(fields[1], 64)
		rssKB, _ := strconv.ParseInt(fields[2], 10, 64)

		procs = append(procs, Process{
			PID:         pid,
			SessionID:   sessionIDFromArgs(fields[3:]),
			Cwd:         processCwd(pid),
			CPUPercent:  cpu,
			MemoryBytes: rssKB * 1024,
		})
	}
	return procs, nil
}

// commandMatches checks the executable token of the command line, not the
// whole string, so "vim claude.go" does not count as a claude process.
func commandMatches(args, command string) bool {
	first := args
	if idx := strings.IndexByte(args, ' '); idx >= 0 {
		first = args[:idx]
	}
	base := first
	if idx := strings.LastIndexByte(first, '/'); idx >= 0 {
		base = first[idx+1:]
	}
	return base == command
}

// sessionIDFromArgs picks up an explicit session id when the process was
// started with one (e.g. "claude --resume <id>").
func sessionIDFromArgs(args []string) string {
	for i, arg := range args {
		switch arg {
		case "--resume", "--session-id":
			if i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return ""
}

func processCwd(pid int) string {
	cwd, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return ""
	}
	return cwd
}
