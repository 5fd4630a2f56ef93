package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
)

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.RepoID == "" {
		opts.RepoID = "/repo"
	}
	s, err := Open(filepath.Join(t.TempDir(), "gtm"), opts)
	require.NoError(t, err)
	return s
}

func TestAppendThenDrain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "b.txt", Timestamp: 20}))
	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 10}))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, []TouchEvent{
		{RepoID: "/repo", Path: "a.txt", Timestamp: 10},
		{RepoID: "/repo", Path: "b.txt", Timestamp: 20},
	}, batch.Events)
	require.Len(t, batch.Segments, 1)
	require.NoError(t, s.Ack(batch, "abc"))

	again, err := s.Drain(ctx)
	require.NoError(t, err)
	require.True(t, again.Empty())
}

func TestDrainEmptyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	for i := 0; i < 2; i++ {
		batch, err := s.Drain(ctx)
		require.NoError(t, err)
		require.True(t, batch.Empty())
		require.Empty(t, batch.Segments)
	}
}

func TestConcurrentAppendsAreAllDrained(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(10_000)})

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Append(ctx, TouchEvent{Path: fmt.Sprintf("f%03d.go", i), Timestamp: int64(i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Events, n)

	seen := make(map[string]bool, n)
	for _, ev := range batch.Events {
		require.False(t, seen[ev.Path], "duplicate event %s", ev.Path)
		seen[ev.Path] = true
	}
}

func TestDrainLeavesFutureEventsPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(100)})

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 50}))
	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 150}))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	require.EqualValues(t, 50, batch.Events[0].Timestamp)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	var stamps []int64
	for _, ev := range pending {
		stamps = append(stamps, ev.Timestamp)
	}
	// The claimed segment is still in flight until acked.
	require.Contains(t, stamps, int64(150))
}

func TestRestoreReturnsEventsToPendingLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	for _, ts := range []int64{1, 2, 3} {
		require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: ts}))
	}
	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Events, 3)

	require.NoError(t, s.Restore(ctx, batch))
	for _, seg := range batch.Segments {
		require.NoFileExists(t, seg)
	}

	again, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, batch.Events, again.Events)
}

func TestAppendFallsBackToScratchWhenLocked(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{
		Now:         fixedClock(1000),
		LockTimeout: 30 * time.Millisecond,
		LockRetry:   5 * time.Millisecond,
	})

	holder := flock.New(filepath.Join(s.Dir(), lockFileName))
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 7}))
	matches, err := filepath.Glob(filepath.Join(s.Dir(), scratchPrefix+"*"+segmentExt))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = s.Drain(ctx)
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, holder.Unlock())

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, []TouchEvent{{RepoID: "/repo", Path: "a.txt", Timestamp: 7}}, batch.Events)
}

func TestDrainReclaimsStaleInflightSegments(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_000_000, 0)
	s := openTestStore(t, Options{Now: func() time.Time { return now }, StaleAfter: time.Minute})

	stale := filepath.Join(s.Dir(), inflightPrefix+"crashed"+segmentExt)
	require.NoError(t, os.WriteFile(stale, []byte("10\told.txt\n"), 0o600))
	old := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(s.Dir(), inflightPrefix+"busy"+segmentExt)
	require.NoError(t, os.WriteFile(fresh, []byte("11\tbusy.txt\n"), 0o600))
	require.NoError(t, os.Chtimes(fresh, now, now))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	require.Equal(t, "old.txt", batch.Events[0].Path)
	require.FileExists(t, fresh)
}

func TestDrainSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	raw := "5\ta.txt\nnot-a-line\nx\tb.txt\n6\t\n7\tc.txt\n12"
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), pendingFileName), []byte(raw), 0o600))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Events, 2)
	require.Equal(t, 4, batch.Skipped)
}

func TestAppendRejectsMultilinePath(t *testing.T) {
	s := openTestStore(t, Options{})
	err := s.Append(context.Background(), TouchEvent{Path: "a\nb", Timestamp: 1})
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestCleanDiscardsOlderEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	for _, ts := range []int64{100, 200, 300} {
		require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: ts}))
	}

	removed, err := s.Clean(ctx, time.Unix(250, 0))
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.EqualValues(t, 300, pending[0].Timestamp)
}

func TestAckArchivesSegments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000), Archive: true})

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 1}))
	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ack(batch, "deadbeef"))

	archived, err := filepath.Glob(filepath.Join(s.Dir(), archiveDirName, "deadbeef", "*"+segmentExt))
	require.NoError(t, err)
	require.Len(t, archived, 1)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestAppendAfterTornLineKeepsEventsApart(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	pending := filepath.Join(s.Dir(), pendingFileName)
	require.NoError(t, os.WriteFile(pending, []byte("90\tdone.txt\n100\tsrc/ma"), 0o600))

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "b.txt", Timestamp: 200}))
	require.NoError(t, s.Append(ctx, TouchEvent{Path: "b.txt", Timestamp: 230}))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, []TouchEvent{
		{RepoID: "/repo", Path: "done.txt", Timestamp: 90},
		{RepoID: "/repo", Path: "b.txt", Timestamp: 200},
		{RepoID: "/repo", Path: "b.txt", Timestamp: 230},
	}, batch.Events)
	require.Equal(t, 1, batch.Skipped)
}

func TestDrainCountsUnterminatedLastLine(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{Now: fixedClock(1000)})

	raw := "5\ta.txt\n6\tsrc/pa"
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), pendingFileName), []byte(raw), 0o600))

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, []TouchEvent{{RepoID: "/repo", Path: "a.txt", Timestamp: 5}}, batch.Events)
	require.Equal(t, 1, batch.Skipped)
}

func TestAckRemovesSegmentsWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	s := openTestStore(t, Options{Now: func() time.Time { return now }, Archive: true})

	// A plain file where the archive directory belongs.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), archiveDirName), nil, 0o600))

	require.NoError(t, s.Append(ctx, TouchEvent{Path: "a.txt", Timestamp: 1}))
	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ack(batch, "c1"))
	for _, seg := range batch.Segments {
		require.NoFileExists(t, seg)
	}

	now = now.Add(10 * time.Minute)
	again, err := s.Drain(ctx)
	require.NoError(t, err)
	require.True(t, again.Empty())
}

func TestAckedLedgerIsNeverClaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_000_000, 0)
	s := openTestStore(t, Options{Now: func() time.Time { return now }, StaleAfter: time.Minute})

	name := inflightPrefix + "acked" + segmentExt
	seg := filepath.Join(s.Dir(), name)
	require.NoError(t, os.WriteFile(seg, []byte("10\tcounted.txt\n"), 0o600))
	old := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(seg, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ackedFileName), []byte(name+"\n"), 0o600))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	batch, err := s.Drain(ctx)
	require.NoError(t, err)
	require.True(t, batch.Empty())
	require.NoFileExists(t, seg)
	require.NoFileExists(t, filepath.Join(s.Dir(), ackedFileName))
}
