package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Record saves in the current repository until interrupted",
	Long: `Watch records every file written under the work tree, for editors without a
gtm plugin. Paths matched by .gitignore, .gtmignore or the ignore_patterns
setting are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openCwd(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		ignore, err := watch.LoadIgnore(ws.repo.Root, ws.cfg.IgnorePatterns)
		if err != nil {
			ws.log.Warn("loading ignore patterns", "err", err)
		}

		record := func(ctx context.Context, path string) error {
			return ws.record(ctx, ignore, path, time.Now())
		}
		w, err := watch.New(ws.repo.Root, ignore, record, ws.log.Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Watching %s (Ctrl+C to stop)\n", ws.repo.Root)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
