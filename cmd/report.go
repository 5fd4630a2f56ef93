package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/note"
	"github.com/fakeyudi/gtm/internal/report"
	"github.com/fakeyudi/gtm/internal/tui"
)

var (
	reportLimit  int
	reportFormat string
	reportTUI    bool
)

var reportCmd = &cobra.Command{
	Use:   "report [commit...]",
	Short: "Show time recorded on commits",
	Long: `Report reads the time notes of the given commits, or of the last -n commits
reachable from HEAD, and prints them as text, JSON or Markdown. With --tui the
commits are shown in an interactive browser.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, err := openCwd(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		reader := ws.reader()
		var entries []note.Entry
		if len(args) == 0 {
			entries, err = reader.Log(ctx, reportLimit)
			if err != nil {
				return err
			}
		} else {
			for _, rev := range args {
				c, err := ws.repo.Git.CommitInfo(ctx, rev)
				if err != nil {
					return err
				}
				rec, err := reader.Read(ctx, c.Hash)
				if err != nil {
					return err
				}
				entries = append(entries, note.Entry{Commit: c, Record: rec})
			}
		}

		rep := report.FromEntries(ws.repo.Root, entries)
		if reportTUI {
			return tui.Run(rep)
		}

		r, err := report.ForFormat(reportFormat, stdoutIsTerminal(cmd))
		if err != nil {
			return err
		}
		out, err := r.Render(rep)
		if err != nil {
			return err
		}
		cmd.Print(string(out))
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVarP(&reportLimit, "number", "n", 5, "number of recent commits to report")
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "output format: text, json or markdown")
	reportCmd.Flags().BoolVar(&reportTUI, "tui", false, "browse the report interactively")
	rootCmd.AddCommand(reportCmd)
}
