package cmd

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/note"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [amend|rebase]",
	Short: "Carry time notes across amend and rebase (run by the post-rewrite hook)",
	Long: `Rewrite reads "<old-sha> <new-sha>" lines from standard input, as git passes
them to the post-rewrite hook, and copies each old commit's time note to the
new commit. Notes of commits squashed together are summed.

The command always exits 0 so it never disturbs git.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openCwd(cmd)
		if err != nil {
			if !quiet(err) {
				cmd.PrintErrln("gtm:", err)
			}
			return nil
		}
		defer ws.Close()

		pairs, err := parseRewritePairs(cmd)
		if err != nil {
			ws.log.Error("reading rewritten commits", "err", err)
			return nil
		}
		n, err := ws.writer().Rewrite(cmd.Context(), pairs)
		if err != nil {
			ws.log.Error("copying notes", "err", err)
			cmd.PrintErrln("gtm:", err)
			return nil
		}
		ws.log.Info("copied notes", "rewritten", len(pairs), "written", n)
		return nil
	},
}

// parseRewritePairs reads post-rewrite input. A third field, present for
// some rewrites, is ignored.
func parseRewritePairs(cmd *cobra.Command) ([]note.RewritePair, error) {
	var pairs []note.RewritePair
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pairs = append(pairs, note.RewritePair{Old: fields[0], New: fields[1]})
	}
	return pairs, scanner.Err()
}

func init() {
	rootCmd.AddCommand(rewriteCmd)
}
