package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	cleanDays int
	cleanYes  bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Discard pending time that has not been committed",
	Long: `Clean removes pending save events from the log. With --days N only events
older than N days are removed; by default all pending events are.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openCwd(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		before := time.Now().Add(time.Hour) // everything, including skewed clocks
		what := "all pending events"
		if cleanDays > 0 {
			before = time.Now().AddDate(0, 0, -cleanDays)
			what = fmt.Sprintf("pending events older than %d days", cleanDays)
		}

		if !cleanYes {
			ok, err := confirm(cmd, "Discard "+what+"?")
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("Nothing removed.")
				return nil
			}
		}

		n, err := ws.events.Clean(cmd.Context(), before)
		if err != nil {
			return err
		}
		ws.log.Info("cleaned pending events", "removed", n, "before", before.Unix())
		cmd.Printf("Removed %d events.\n", n)
		return nil
	},
}

// confirm asks a yes/no question on the command's input, defaulting to no.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	cmd.Printf("%s (y/n) [n]: ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("no answer, use --yes to skip the prompt: %w", err)
	}
	ans := strings.ToLower(strings.TrimSpace(line))
	return ans == "y" || ans == "yes", nil
}

func init() {
	cleanCmd.Flags().IntVar(&cleanDays, "days", 0, "only remove events older than this many days")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(cleanCmd)
}
