package transcript

import (
	"bytes"
	"io"
	"log/slog"
	"os"
)

// DefaultTailWindow is the number of trailing bytes read per refresh. It
// bounds parse cost on long-running sessions whose logs grow without limit.
const DefaultTailWindow = 256_000

// ReadTail reads the trailing window of the transcript at path and returns
// its parseable entries ordered oldest to newest. The whole file is read
// when it is smaller than the window. When the window starts mid-file the
// first line is discarded since it is almost certainly partial. Malformed
// lines are skipped. Any I/O failure yields an empty sequence: the session
// simply appears to have no data this cycle.
//
// Stateless: every call recomputes from the file, so tailing an unchanged
// file twice yields identical results.
func ReadTail(path string, window int64) []Entry {
	if window <= 0 {
		window = DefaultTailWindow
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Debug("transcript open failed", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Debug("transcript stat failed", "path", path, "error", err)
		return nil
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	start := int64(0)
	if size > window {
		start = size - window
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		slog.Debug("transcript seek failed", "path", path, "error", err)
		return nil
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		slog.Debug("transcript read failed", "path", path, "error", err)
		return nil
	}

	// A window starting mid-file begins inside some line; drop through the
	// first newline so only complete lines are parsed.
	if start > 0 {
		if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
			buf = buf[idx+1:]
		} else {
			return nil
		}
	}

	var entries []Entry
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if entry, ok := ParseEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
