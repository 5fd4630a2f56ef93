// Package eventlog is the durable, append-only store of file touch events for
// a single repository.
//
// Events are kept as newline-delimited "<unix-seconds>\t<path>" records in
// events.log inside the repository's gtm metadata directory. Appends and
// drains serialize on a repository-scoped file lock so that independent
// short-lived processes (one per editor save, one per commit) never interleave
// writes or drain the same event twice.
package eventlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TouchEvent records that a file was touched at a point in time.
type TouchEvent struct {
	RepoID    string `json:"repo_id"`
	Path      string `json:"path"`      // relative to the work tree root, slash separated
	Timestamp int64  `json:"timestamp"` // unix seconds
}

// ErrInvalidPath is returned when an event path cannot be stored as a single
// log line.
var ErrInvalidPath = errors.New("eventlog: invalid event path")

// IOFailure reports a failed read or write of the underlying log storage.
// Recording callers treat it as non-fatal.
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("eventlog: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOFailure) Unwrap() error {
	return e.Err
}

// encodeEvents renders events in log line format.
func encodeEvents(events ...TouchEvent) ([]byte, error) {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Path == "" || strings.ContainsAny(ev.Path, "\r\n") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, ev.Path)
		}
		sb.WriteString(strconv.FormatInt(ev.Timestamp, 10))
		sb.WriteByte('\t')
		sb.WriteString(ev.Path)
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// decodeEvents parses log lines from r. Lines that do not parse are skipped
// and counted.
func decodeEvents(r io.Reader, repoID string) (events []TouchEvent, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 1 || tab == len(line)-1 {
			skipped++
			continue
		}
		ts, perr := strconv.ParseInt(line[:tab], 10, 64)
		if perr != nil {
			skipped++
			continue
		}
		events = append(events, TouchEvent{
			RepoID:    repoID,
			Path:      line[tab+1:],
			Timestamp: ts,
		})
	}
	return events, skipped, scanner.Err()
}
