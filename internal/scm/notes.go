package scm

import (
	"context"
	"strings"
)

// NotesRef is the notes namespace gtm writes to (refs/notes/gtm-data).
const NotesRef = "gtm-data"

// AddNote attaches msg to commit under ref, replacing any existing note.
func (g *Git) AddNote(ctx context.Context, ref, commit, msg string) error {
	_, err := g.runInput(ctx, strings.NewReader(msg), "notes", "--ref="+ref, "add", "-f", "-F", "-", commit)
	return err
}

// ShowNote returns the note attached to commit under ref. found is false when
// the commit has no note.
func (g *Git) ShowNote(ctx context.Context, ref, commit string) (note string, found bool, err error) {
	out, err := g.run(ctx, "notes", "--ref="+ref, "show", commit)
	if err != nil {
		if isExitCode(err, 1) {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}
