package cmd

import (
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/report"
	"github.com/fakeyudi/gtm/internal/state"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show time recorded since the last commit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openCwd(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		res, err := ws.writer().Preview(cmd.Context())
		if err != nil {
			return err
		}

		r, err := report.ForFormat(statusFormat, stdoutIsTerminal(cmd))
		if err != nil {
			return err
		}
		out, err := r.Render(report.Pending(ws.repo.Root, res))
		if err != nil {
			return err
		}
		cmd.Print(string(out))

		st, err := state.LoadOrEmpty(ws.state)
		if err != nil {
			return err
		}
		if st.ConsecutiveFailures > 0 && statusFormat != "json" {
			when := "unknown"
			if st.LastFailure != nil {
				when = st.LastFailure.Format(time.RFC3339)
			}
			cmd.PrintErrf("warning: the last %d flushes failed (last at %s): %s\n",
				st.ConsecutiveFailures, when, st.LastError)
		}
		return nil
	},
}

// stdoutIsTerminal reports whether the command writes to an interactive terminal.
func stdoutIsTerminal(cmd *cobra.Command) bool {
	return cmd.OutOrStdout() == os.Stdout && term.IsTerminal(os.Stdout.Fd())
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "output format: text, json or markdown")
	rootCmd.AddCommand(statusCmd)
}
