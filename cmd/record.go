package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/eventlog"
	"github.com/fakeyudi/gtm/internal/project"
	"github.com/fakeyudi/gtm/internal/watch"
)

var recordCmd = &cobra.Command{
	Use:   "record <path>",
	Short: "Record a save of path (called by editor plugins)",
	Long: `Record appends a save event for path to its repository's pending log.

Recording failures are written to the diagnostic log and never fail the
command, so an editor is not interrupted. The command fails only when path is
not inside a git repository or the repository has not been set up with
gtm init.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := openWorkspace(ctx, cmd, args[0])
		if err != nil {
			if quiet(err) {
				return err
			}
			// Configuration problems must not break the editor either.
			cmd.PrintErrln("gtm:", err)
			return nil
		}
		defer ws.Close()

		ignore, err := watch.LoadIgnore(ws.repo.Root, ws.cfg.IgnorePatterns)
		if err != nil {
			ws.log.Warn("loading ignore patterns", "err", err)
		}
		if err := ws.record(ctx, ignore, args[0], time.Now()); err != nil {
			ws.log.Error("recording save", "path", args[0], "err", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

// record appends a touch event for path stamped at. Ignored paths and the
// work tree root itself are skipped without error.
func (w *workspace) record(ctx context.Context, ignore *watch.Matcher, path string, at time.Time) error {
	rel, err := w.repo.RelPath(path)
	if err != nil {
		if errors.Is(err, project.ErrOutsideRepo) {
			w.log.Debug("skipping path outside work tree", "path", path)
			return nil
		}
		return err
	}
	if ignore != nil && ignore.Ignored(rel) {
		w.log.Debug("skipping ignored path", "path", rel)
		return nil
	}

	ev := eventlog.TouchEvent{RepoID: w.repo.ID(), Path: rel, Timestamp: at.Unix()}
	if err := w.events.Append(ctx, ev); err != nil {
		return err
	}
	w.log.Debug("recorded", "path", rel)
	return nil
}
