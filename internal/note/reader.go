package note

import (
	"context"

	"github.com/fakeyudi/gtm/internal/scm"
)

// History lists recent commits. *scm.Git implements it.
type History interface {
	Log(ctx context.Context, n int) ([]scm.Commit, error)
}

// Entry is a commit together with its time record, if any.
type Entry struct {
	scm.Commit
	Record *CommitTimeRecord
}

// Reader reads time records back from commit notes.
type Reader struct {
	Notes   Notes
	History History
	Ref     string
}

func (r *Reader) ref() string {
	if r.Ref == "" {
		return scm.NotesRef
	}
	return r.Ref
}

// Read returns the record attached to commit, or nil if there is none.
func (r *Reader) Read(ctx context.Context, commit string) (*CommitTimeRecord, error) {
	body, found, err := r.Notes.ShowNote(ctx, r.ref(), commit)
	if err != nil || !found {
		return nil, err
	}
	rec, err := Unmarshal([]byte(body))
	if err != nil {
		return nil, err
	}
	if rec.Commit == "" {
		rec.Commit = commit
	}
	return rec, nil
}

// Log returns the last n commits with their records. Commits without a
// record have a nil Record.
func (r *Reader) Log(ctx context.Context, n int) ([]Entry, error) {
	commits, err := r.History.Log(ctx, n)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(commits))
	for _, c := range commits {
		rec, err := r.Read(ctx, c.Hash)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Commit: c, Record: rec})
	}
	return entries, nil
}
