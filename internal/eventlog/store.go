package eventlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	pendingFileName = "events.log"
	lockFileName    = "events.lock"
	archiveDirName  = "archive"
	// ackedFileName lists acknowledged segments that could not be removed.
	ackedFileName = "acked"

	scratchPrefix  = "scratch-"
	inflightPrefix = "inflight-"
	segmentExt     = ".log"
)

// Options tunes a Store. Zero values fall back to DefaultOptions.
type Options struct {
	// RepoID is stamped on every event read back from the store.
	RepoID string
	// LockTimeout bounds how long Append and Drain wait for the repository lock.
	LockTimeout time.Duration
	// LockRetry is the interval between non-blocking lock attempts.
	LockRetry time.Duration
	// StaleAfter is the age after which an in-flight segment left by a crashed
	// flush is reclaimed by the next Drain.
	StaleAfter time.Duration
	// Archive keeps acknowledged segments under archive/<commit>/ instead of
	// removing them.
	Archive bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options used for zero-valued fields.
func DefaultOptions() Options {
	return Options{
		LockTimeout: 300 * time.Millisecond,
		LockRetry:   10 * time.Millisecond,
		StaleAfter:  5 * time.Minute,
		Now:         time.Now,
	}
}

// Store is the event log of one repository.
type Store struct {
	dir  string
	opts Options
}

// Batch is a set of drained events together with the in-flight segments that
// held them. A batch must be finished with either Ack or Restore.
type Batch struct {
	Events   []TouchEvent
	Segments []string
	// Skipped counts malformed lines that were discarded while reading.
	Skipped int
}

// Empty reports whether the batch holds no events.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Events) == 0
}

// Open returns the Store rooted at dir, creating the directory if needed.
func Open(dir string, opts Options) (*Store, error) {
	def := DefaultOptions()
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.LockRetry <= 0 {
		opts.LockRetry = def.LockRetry
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &IOFailure{Op: "create", Path: dir, Err: err}
	}
	return &Store{dir: dir, opts: opts}, nil
}

// Dir returns the directory holding the log segments.
func (s *Store) Dir() string {
	return s.dir
}

// Append durably writes one event. When the repository lock cannot be taken
// in time the event goes to a private scratch segment instead, which the next
// Drain merges.
func (s *Store) Append(ctx context.Context, ev TouchEvent) error {
	line, err := encodeEvents(ev)
	if err != nil {
		return err
	}

	err = s.withLock(ctx, func() error {
		return s.appendPending(line)
	})
	if errors.Is(err, ErrLockTimeout) {
		return s.appendScratch(line)
	}
	return err
}

// appendScratch writes data to a new scratch segment. The segment only
// becomes visible to Drain once it is complete.
func (s *Store) appendScratch(data []byte) error {
	id := uuid.NewString()
	tmp := s.path(scratchPrefix + id + ".tmp")
	if err := appendFile(tmp, data); err != nil {
		return err
	}
	final := s.path(scratchPrefix + id + segmentExt)
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return &IOFailure{Op: "rename", Path: final, Err: err}
	}
	return nil
}

// Drain claims every pending segment and returns its events ordered by
// timestamp. Events stamped later than now stay pending. Claiming is an atomic
// rename under the repository lock, so concurrent drains never share an event.
func (s *Store) Drain(ctx context.Context) (*Batch, error) {
	batch := &Batch{}
	err := s.withLock(ctx, func() error {
		segments, err := s.claim()
		if err != nil {
			return err
		}
		batch.Segments = segments

		events, skipped, err := readSegments(segments, s.opts.RepoID)
		if err != nil {
			return err
		}
		batch.Skipped = skipped

		now := s.opts.Now().Unix()
		var future []TouchEvent
		for _, ev := range events {
			if ev.Timestamp > now {
				future = append(future, ev)
				continue
			}
			batch.Events = append(batch.Events, ev)
		}
		if len(future) > 0 {
			data, err := encodeEvents(future...)
			if err != nil {
				return err
			}
			if err := s.appendPending(data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEvents(batch.Events)
	return batch, nil
}

// Ack marks a drained batch as consumed by commit. If archiving fails the
// segments are removed instead. Segments that cannot be removed either are
// recorded in the acked ledger, which claim honours, so an acknowledged event
// is never drained again.
func (s *Store) Ack(batch *Batch, commit string) error {
	if batch == nil || len(batch.Segments) == 0 {
		return nil
	}
	if s.opts.Archive && s.archive(batch.Segments, commit) == nil {
		return nil
	}
	err := removeSegments(batch.Segments)
	if err == nil {
		return nil
	}
	lerr := s.withLock(context.Background(), func() error {
		return s.markAcked(batch.Segments)
	})
	if errors.Is(lerr, ErrLockTimeout) {
		lerr = s.markAcked(batch.Segments)
	}
	if lerr != nil {
		return errors.Join(err, lerr)
	}
	return nil
}

func (s *Store) archive(segments []string, commit string) error {
	if commit == "" {
		commit = "discarded"
	}
	dir := filepath.Join(s.dir, archiveDirName, commit)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &IOFailure{Op: "archive", Path: dir, Err: err}
	}
	for _, seg := range segments {
		dst := filepath.Join(dir, filepath.Base(seg))
		if err := os.Rename(seg, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &IOFailure{Op: "archive", Path: seg, Err: err}
		}
	}
	return nil
}

// markAcked appends the names of segments still on disk to the acked ledger.
func (s *Store) markAcked(segments []string) error {
	var sb strings.Builder
	for _, seg := range segments {
		if _, err := os.Stat(seg); errors.Is(err, os.ErrNotExist) {
			continue
		}
		sb.WriteString(filepath.Base(seg))
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return nil
	}
	return appendFile(s.path(ackedFileName), []byte(sb.String()))
}

// sweepAcked retries removing the segments in the acked ledger and returns
// the names still on disk. Must run under the lock.
func (s *Store) sweepAcked() (map[string]bool, error) {
	path := s.path(ackedFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOFailure{Op: "read", Path: path, Err: err}
	}

	left := make(map[string]bool)
	var keep []string
	for _, name := range strings.Fields(string(data)) {
		if left[name] {
			continue
		}
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			left[name] = true
			keep = append(keep, name)
		}
	}

	// A ledger that cannot be rewritten only names extra segments, so errors
	// here are ignored.
	if len(keep) == 0 {
		_ = os.Remove(path)
		return nil, nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(keep, "\n")+"\n"), 0o600); err == nil {
		_ = os.Rename(tmp, path)
	}
	return left, nil
}

// Restore returns a drained batch to the pending log. It is the recovery path
// when the batch could not be attached to a commit.
func (s *Store) Restore(ctx context.Context, batch *Batch) error {
	if batch == nil {
		return nil
	}
	return s.withLock(ctx, func() error {
		if len(batch.Events) > 0 {
			data, err := encodeEvents(batch.Events...)
			if err != nil {
				return err
			}
			if err := s.appendPending(data); err != nil {
				return err
			}
		}
		return removeSegments(batch.Segments)
	})
}

// Pending returns a snapshot of every event not yet acknowledged, including
// events held by in-flight segments. Nothing is claimed.
func (s *Store) Pending(ctx context.Context) ([]TouchEvent, error) {
	var events []TouchEvent
	err := s.withLock(ctx, func() error {
		acked, err := s.sweepAcked()
		if err != nil {
			return err
		}
		segments, err := s.segments(func(name string, _ os.FileInfo) bool { return !acked[name] })
		if err != nil {
			return err
		}
		events, _, err = readSegments(segments, s.opts.RepoID)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

// Clean discards pending events stamped before the given time and returns how
// many were removed.
func (s *Store) Clean(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	err := s.withLock(ctx, func() error {
		segments, err := s.claim()
		if err != nil {
			return err
		}
		events, _, err := readSegments(segments, s.opts.RepoID)
		if err != nil {
			return err
		}
		cutoff := before.Unix()
		var keep []TouchEvent
		for _, ev := range events {
			if ev.Timestamp < cutoff {
				removed++
				continue
			}
			keep = append(keep, ev)
		}
		if len(keep) > 0 {
			sortEvents(keep)
			data, err := encodeEvents(keep...)
			if err != nil {
				return err
			}
			if err := s.appendPending(data); err != nil {
				return err
			}
		}
		return removeSegments(segments)
	})
	return removed, err
}

// claim renames the pending log, finished scratch segments and stale
// in-flight segments to fresh in-flight names. Segments in the acked ledger
// are never claimed. Must run under the lock.
func (s *Store) claim() ([]string, error) {
	now := s.opts.Now()
	acked, err := s.sweepAcked()
	if err != nil {
		return nil, err
	}
	candidates, err := s.segments(func(name string, info os.FileInfo) bool {
		switch {
		case acked[name]:
			return false
		case name == pendingFileName:
			return info.Size() > 0
		case strings.HasPrefix(name, scratchPrefix):
			return true
		default:
			return now.Sub(info.ModTime()) >= s.opts.StaleAfter
		}
	})
	if err != nil {
		return nil, err
	}

	claimed := make([]string, 0, len(candidates))
	for _, src := range candidates {
		dst := s.path(inflightPrefix + uuid.NewString() + segmentExt)
		if err := os.Rename(src, dst); err != nil {
			return claimed, &IOFailure{Op: "claim", Path: src, Err: err}
		}
		// Rename keeps the old mtime; refresh it so the segment is not seen as stale.
		_ = os.Chtimes(dst, now, now)
		claimed = append(claimed, dst)
	}
	return claimed, nil
}

// segments lists the log segments in the store directory accepted by keep.
func (s *Store) segments(keep func(name string, info os.FileInfo) bool) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &IOFailure{Op: "list", Path: s.dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isSegment(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if keep(name, info) {
			out = append(out, s.path(name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func isSegment(name string) bool {
	if name == pendingFileName {
		return true
	}
	if !strings.HasSuffix(name, segmentExt) {
		return false
	}
	return strings.HasPrefix(name, scratchPrefix) || strings.HasPrefix(name, inflightPrefix)
}

// appendPending appends data to the pending log. A torn final line left by a
// crashed writer is first moved to a scratch segment of its own, where Drain
// counts it as skipped, so new lines never run into it. Must run under the lock.
func (s *Store) appendPending(data []byte) error {
	path := s.path(pendingFileName)
	if err := s.splitTornTail(path); err != nil {
		return err
	}
	return appendFile(path, data)
}

func (s *Store) splitTornTail(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &IOFailure{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &IOFailure{Op: "stat", Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return &IOFailure{Op: "read", Path: path, Err: err}
	}
	if last[0] == '\n' {
		return nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return &IOFailure{Op: "read", Path: path, Err: err}
	}
	whole, torn := splitTorn(data)
	if err := s.appendScratch(torn); err != nil {
		return err
	}
	if err := os.Truncate(path, int64(len(whole))); err != nil {
		return &IOFailure{Op: "truncate", Path: path, Err: err}
	}
	return nil
}

// splitTorn separates complete lines from an unterminated final line.
func splitTorn(data []byte) (whole, torn []byte) {
	i := bytes.LastIndexByte(data, '\n')
	return data[:i+1], data[i+1:]
}

// appendFile appends data to path and syncs it before returning.
func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return &IOFailure{Op: "open", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &IOFailure{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &IOFailure{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOFailure{Op: "close", Path: path, Err: err}
	}
	return nil
}

func readSegments(paths []string, repoID string) ([]TouchEvent, int, error) {
	var (
		events  []TouchEvent
		skipped int
	)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, 0, &IOFailure{Op: "read", Path: p, Err: err}
		}
		whole, torn := splitTorn(data)
		if len(torn) > 0 {
			skipped++
		}
		evs, n, err := decodeEvents(bytes.NewReader(whole), repoID)
		if err != nil {
			return nil, 0, &IOFailure{Op: "parse", Path: p, Err: err}
		}
		events = append(events, evs...)
		skipped += n
	}
	return events, skipped, nil
}

func removeSegments(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, &IOFailure{Op: "remove", Path: p, Err: err})
		}
	}
	return errors.Join(errs...)
}

// sortEvents orders events by timestamp, keeping log order for ties.
func sortEvents(events []TouchEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

// String implements fmt.Stringer for debugging output.
func (b *Batch) String() string {
	if b == nil {
		return "batch(nil)"
	}
	return fmt.Sprintf("batch(events=%d segments=%d skipped=%d)", len(b.Events), len(b.Segments), b.Skipped)
}
