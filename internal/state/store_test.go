package state_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/gtm/internal/state"
)

// generateTime produces an arbitrary time.Time value truncated to second
// precision to match JSON round-trip fidelity.
func generateTime(t *rapid.T, label string) *time.Time {
	if !rapid.Bool().Draw(t, label+"_set") {
		return nil
	}
	sec := rapid.Int64Range(0, 1_700_000_000).Draw(t, label)
	ts := time.Unix(sec, 0).UTC()
	return &ts
}

func generateState(t *rapid.T) *state.FlushState {
	return &state.FlushState{
		LastCommit:          rapid.StringMatching(`[0-9a-f]{0,40}`).Draw(t, "last_commit"),
		LastFlush:           generateTime(t, "last_flush"),
		ConsecutiveFailures: rapid.IntRange(0, 100).Draw(t, "failures"),
		LastFailure:         generateTime(t, "last_failure"),
		LastFailedCommit:    rapid.StringMatching(`[0-9a-f]{0,40}`).Draw(t, "failed_commit"),
		LastError:           rapid.StringN(0, 100, -1).Draw(t, "last_error"),
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func TestFlushStatePersistenceRoundTrip(t *testing.T) {
	store, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rapid.Check(t, func(t *rapid.T) {
		original := generateState(t)

		if err := store.Save(original); err != nil {
			t.Fatalf("Save: %v", err)
		}

		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		if loaded.LastCommit != original.LastCommit {
			t.Errorf("LastCommit mismatch: got %q, want %q", loaded.LastCommit, original.LastCommit)
		}
		if loaded.ConsecutiveFailures != original.ConsecutiveFailures {
			t.Errorf("ConsecutiveFailures mismatch: got %d, want %d", loaded.ConsecutiveFailures, original.ConsecutiveFailures)
		}
		if loaded.LastFailedCommit != original.LastFailedCommit {
			t.Errorf("LastFailedCommit mismatch: got %q, want %q", loaded.LastFailedCommit, original.LastFailedCommit)
		}
		if loaded.LastError != original.LastError {
			t.Errorf("LastError mismatch: got %q, want %q", loaded.LastError, original.LastError)
		}
		if !sameTime(loaded.LastFlush, original.LastFlush) {
			t.Errorf("LastFlush mismatch: got %v, want %v", loaded.LastFlush, original.LastFlush)
		}
		if !sameTime(loaded.LastFailure, original.LastFailure) {
			t.Errorf("LastFailure mismatch: got %v, want %v", loaded.LastFailure, original.LastFailure)
		}
	})
}

// TestLoadReturnsErrNoState verifies that Load returns ErrNoState when no
// state file exists on disk.
func TestLoadReturnsErrNoState(t *testing.T) {
	store, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, err = store.Load()
	if !errors.Is(err, state.ErrNoState) {
		t.Errorf("expected ErrNoState, got: %v", err)
	}

	st, err := state.LoadOrEmpty(store)
	if err != nil {
		t.Fatalf("LoadOrEmpty: %v", err)
	}
	if st.ConsecutiveFailures != 0 {
		t.Errorf("expected empty state, got %+v", st)
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	st := &state.FlushState{}
	now := time.Now()
	st.RecordFailure("a", now, errors.New("boom"))
	st.RecordFailure("b", now, errors.New("boom again"))
	if st.ConsecutiveFailures != 2 || st.LastFailedCommit != "b" || st.LastError != "boom again" {
		t.Fatalf("unexpected state after failures: %+v", st)
	}

	st.RecordSuccess("c", now)
	if st.ConsecutiveFailures != 0 || st.LastError != "" || st.LastCommit != "c" {
		t.Errorf("unexpected state after success: %+v", st)
	}
}

// TestNewStoreFailurePropagatesError verifies that NewStore returns an error
// when the directory cannot be created.
func TestNewStoreFailurePropagatesError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root; permission checks are ineffective")
	}

	tmp := t.TempDir()
	if err := os.Chmod(tmp, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	// Restore permissions so TempDir cleanup can remove it.
	t.Cleanup(func() { os.Chmod(tmp, 0o755) })

	_, err := state.NewStore(filepath.Join(tmp, "gtm"))
	if err == nil {
		t.Fatal("expected error creating store in unwritable directory, got nil")
	}
}
