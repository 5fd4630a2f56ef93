package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/note"
	"github.com/fakeyudi/gtm/internal/report"
)

var commitRev string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Attach pending time to a commit (run by the post-commit hook)",
	Long: `Commit drains the pending log, folds it into time per file and attaches the
result to the commit as a git note. When the note cannot be written the events
are put back and the next commit picks them up.

The command always exits 0 so it never disturbs git.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := openCwd(cmd)
		if err != nil {
			if !quiet(err) {
				cmd.PrintErrln("gtm:", err)
			}
			return nil
		}
		defer ws.Close()

		commit, err := ws.repo.Git.ResolveCommit(ctx, commitRev)
		if err != nil {
			ws.log.Error("resolving commit", "rev", commitRev, "err", err)
			return nil
		}

		rec, err := ws.writer().Flush(ctx, commit)
		var failure *note.AttachFailure
		switch {
		case errors.Is(err, note.ErrNoPendingData):
			return nil
		case errors.As(err, &failure):
			cmd.PrintErrln("gtm: time not attached, it will be added to the next commit:", failure.Err)
			return nil
		case err != nil:
			ws.log.Error("flushing", "commit", commit, "err", err)
			cmd.PrintErrln("gtm:", err)
			return nil
		}

		if verbose {
			cmd.Printf("gtm: %s recorded on %.7s\n", report.FormatDuration(rec.Total), commit)
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitRev, "commit", "HEAD", "commit to attach time to")
	rootCmd.AddCommand(commitCmd)
}
