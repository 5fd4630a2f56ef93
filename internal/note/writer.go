package note

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fakeyudi/gtm/internal/aggregate"
	"github.com/fakeyudi/gtm/internal/eventlog"
	"github.com/fakeyudi/gtm/internal/scm"
	"github.com/fakeyudi/gtm/internal/state"
)

var (
	// ErrNoPendingData is returned by Flush when there was nothing to attach.
	ErrNoPendingData = errors.New("no pending time data")
	// ErrNothingToAttach is returned by Flush when events were drained but
	// aggregated to zero time. They are discarded. It matches ErrNoPendingData.
	ErrNothingToAttach = fmt.Errorf("%w: all drained time was discarded", ErrNoPendingData)
)

// DefaultFailureWarnThreshold is the number of consecutive attach failures
// after which the writer logs at error level.
const DefaultFailureWarnThreshold = 3

// AttachFailure is returned when a record could not be attached to a commit.
// The drained events have been restored to the pending log.
type AttachFailure struct {
	Commit string
	Events int
	Err    error
}

func (e *AttachFailure) Error() string {
	return fmt.Sprintf("attaching time to commit %s (%d events restored): %v", e.Commit, e.Events, e.Err)
}

func (e *AttachFailure) Unwrap() error {
	return e.Err
}

// EventSource is the part of the event log the writer consumes.
type EventSource interface {
	Drain(ctx context.Context) (*eventlog.Batch, error)
	Ack(batch *eventlog.Batch, commit string) error
	Restore(ctx context.Context, batch *eventlog.Batch) error
	Pending(ctx context.Context) ([]eventlog.TouchEvent, error)
}

// Notes stores note bodies on commits. *scm.Git implements it.
type Notes interface {
	AddNote(ctx context.Context, ref, commit, msg string) error
	ShowNote(ctx context.Context, ref, commit string) (string, bool, error)
}

var _ Notes = (*scm.Git)(nil)

// Writer flushes pending events into commit notes.
type Writer struct {
	Events EventSource
	Notes  Notes
	Policy aggregate.Policy
	// State persists the consecutive failure counter. May be nil.
	State state.Store
	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
	// FailureWarnThreshold defaults to DefaultFailureWarnThreshold.
	FailureWarnThreshold int
	// Ref is the notes ref. Defaults to scm.NotesRef.
	Ref string
	Now func() time.Time
}

func (w *Writer) ref() string {
	if w.Ref == "" {
		return scm.NotesRef
	}
	return w.Ref
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// Flush drains the pending events, aggregates them and attaches the result to
// commit. If commit already carries a record the two are merged.
//
// On attach failure the batch is restored and *AttachFailure is returned, so a
// later flush attributes the same events to a later commit.
func (w *Writer) Flush(ctx context.Context, commit string) (*CommitTimeRecord, error) {
	log := w.logger().With("commit", commit)

	batch, err := w.Events.Drain(ctx)
	if err != nil {
		return nil, fmt.Errorf("draining events: %w", err)
	}
	if batch.Skipped > 0 {
		log.Warn("skipped malformed event lines", "count", batch.Skipped)
	}
	if batch.Empty() {
		// Segments holding only malformed lines are consumed too.
		if err := w.Events.Ack(batch, ""); err != nil {
			log.Warn("acknowledging empty batch", "err", err)
		}
		return nil, ErrNoPendingData
	}

	res := aggregate.Aggregate(batch.Events, w.Policy)
	if res.Total == 0 {
		if err := w.Events.Ack(batch, ""); err != nil {
			return nil, fmt.Errorf("discarding events: %w", err)
		}
		log.Info("discarded drained events", "events", res.Events, "paths", paths(res.Discarded))
		return nil, ErrNothingToAttach
	}
	if len(res.Discarded) > 0 {
		log.Info("files below noise floor", "paths", paths(res.Discarded))
	}

	rec := NewRecord(commit, res)
	if err := w.attach(ctx, rec); err != nil {
		return nil, w.fail(ctx, log, batch, commit, err)
	}

	if err := w.Events.Ack(batch, commit); err != nil {
		// The note is written but the segments could be neither removed nor
		// recorded as acknowledged; a later drain may count them again.
		log.Error("acknowledging flushed events", "err", err)
		return rec, fmt.Errorf("acknowledging events: %w", err)
	}
	w.recordSuccess(log, commit)
	log.Info("attached time", "total", rec.Total, "files", len(rec.Files), "events", res.Events)
	return rec, nil
}

// attach writes rec, merged with any record already on the commit.
func (w *Writer) attach(ctx context.Context, rec *CommitTimeRecord) error {
	existing, found, err := w.Notes.ShowNote(ctx, w.ref(), rec.Commit)
	if err != nil {
		return err
	}
	out := rec
	if found {
		prev, err := Unmarshal([]byte(existing))
		if err != nil {
			w.logger().Warn("replacing unreadable note", "commit", rec.Commit, "err", err)
		} else {
			merged := *prev
			merged.Commit = rec.Commit
			merged.Merge(rec)
			out = &merged
		}
	}
	body, err := Marshal(out)
	if err != nil {
		return err
	}
	if err := w.Notes.AddNote(ctx, w.ref(), rec.Commit, string(body)); err != nil {
		return err
	}
	*rec = *out
	return nil
}

func (w *Writer) fail(ctx context.Context, log *slog.Logger, batch *eventlog.Batch, commit string, cause error) error {
	failure := &AttachFailure{Commit: commit, Events: len(batch.Events), Err: cause}
	if err := w.Events.Restore(ctx, batch); err != nil {
		log.Error("restoring events after attach failure", "err", err, "events", len(batch.Events))
		return errors.Join(failure, fmt.Errorf("restoring events: %w", err))
	}

	failures := 1
	if w.State != nil {
		st, err := state.LoadOrEmpty(w.State)
		if err != nil {
			log.Warn("loading flush state", "err", err)
			st = &state.FlushState{}
		}
		st.RecordFailure(commit, w.now(), cause)
		failures = st.ConsecutiveFailures
		if err := w.State.Save(st); err != nil {
			log.Warn("saving flush state", "err", err)
		}
	}

	threshold := w.FailureWarnThreshold
	if threshold <= 0 {
		threshold = DefaultFailureWarnThreshold
	}
	if failures >= threshold {
		log.Error("time has not been attached to recent commits", "consecutive_failures", failures, "err", cause)
	} else {
		log.Warn("attach failed, events restored", "consecutive_failures", failures, "err", cause)
	}
	return failure
}

func (w *Writer) recordSuccess(log *slog.Logger, commit string) {
	if w.State == nil {
		return
	}
	st, err := state.LoadOrEmpty(w.State)
	if err != nil {
		st = &state.FlushState{}
	}
	st.RecordSuccess(commit, w.now())
	if err := w.State.Save(st); err != nil {
		log.Warn("saving flush state", "err", err)
	}
}

// Preview aggregates the pending events without draining them.
func (w *Writer) Preview(ctx context.Context) (aggregate.Result, error) {
	events, err := w.Events.Pending(ctx)
	if err != nil {
		return aggregate.Result{}, err
	}
	return aggregate.Aggregate(events, w.Policy), nil
}

// RewritePair maps a rewritten commit to its replacement.
type RewritePair struct {
	Old string
	New string
}

// Rewrite carries records from rewritten commits to their replacements. When
// several old commits are squashed into one new commit their records are
// merged. Commits without a record are skipped. It returns the number of
// records written.
func (w *Writer) Rewrite(ctx context.Context, pairs []RewritePair) (int, error) {
	merged := make(map[string]*CommitTimeRecord)
	var order []string
	for _, p := range pairs {
		if p.Old == p.New {
			continue
		}
		body, found, err := w.Notes.ShowNote(ctx, w.ref(), p.Old)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		rec, err := Unmarshal([]byte(body))
		if err != nil {
			w.logger().Warn("skipping unreadable note", "commit", p.Old, "err", err)
			continue
		}
		rec.Commit = p.New
		if dst, ok := merged[p.New]; ok {
			dst.Merge(rec)
			continue
		}
		merged[p.New] = rec
		order = append(order, p.New)
	}

	for _, commit := range order {
		if err := w.attach(ctx, merged[commit]); err != nil {
			return 0, fmt.Errorf("copying note to %s: %w", commit, err)
		}
	}
	return len(order), nil
}

func paths(buckets []aggregate.TimeBucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Path
	}
	return out
}
