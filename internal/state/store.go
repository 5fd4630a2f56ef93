// Package state persists flush bookkeeping for a repository: the outcome of
// the last flush and how many attach failures happened in a row.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoState is returned by Load when no state file exists on disk.
var ErrNoState = errors.New("no flush state")

// FlushState records the history of flushes for one repository.
type FlushState struct {
	LastCommit          string     `json:"last_commit,omitempty"`
	LastFlush           *time.Time `json:"last_flush,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
	LastFailedCommit    string     `json:"last_failed_commit,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// Store persists a FlushState to disk.
type Store interface {
	Save(s *FlushState) error
	Load() (*FlushState, error) // returns ErrNoState if none exists
}

// diskStore is the concrete Store that writes state.json in a metadata directory.
type diskStore struct {
	path string // full path to state.json
}

// NewStore returns a Store backed by dir/state.json.
func NewStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "state.json")}, nil
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *FlushState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to persist flush state: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist flush state: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist flush state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist flush state: %w", err)
	}

	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist flush state: %w", err)
	}
	return nil
}

// Load reads and unmarshals the state file.
// Returns ErrNoState if the file does not exist.
func (d *diskStore) Load() (*FlushState, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to read flush state: %w", err)
	}

	var s FlushState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse flush state: %w", err)
	}
	return &s, nil
}

// LoadOrEmpty returns the stored state, or a zero state when none exists.
func LoadOrEmpty(s Store) (*FlushState, error) {
	st, err := s.Load()
	if errors.Is(err, ErrNoState) {
		return &FlushState{}, nil
	}
	return st, err
}

// RecordSuccess resets the failure counter after commit was flushed.
func (st *FlushState) RecordSuccess(commit string, at time.Time) {
	st.LastCommit = commit
	st.LastFlush = &at
	st.ConsecutiveFailures = 0
	st.LastError = ""
}

// RecordFailure counts one more attach failure in a row.
func (st *FlushState) RecordFailure(commit string, at time.Time, err error) {
	st.ConsecutiveFailures++
	st.LastFailure = &at
	st.LastFailedCommit = commit
	if err != nil {
		st.LastError = err.Error()
	}
}
