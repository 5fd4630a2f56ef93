package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/project"
	"github.com/fakeyudi/gtm/internal/scm"
)

var initRemove bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up time tracking for the current repository",
	Long: `Init creates gtm's metadata directory inside the git directory, installs the
post-commit and post-rewrite hooks and adds the pushgtm and fetchgtm aliases
for sharing notes. Existing hook scripts are kept. Running it again is safe.

With --remove the hooks, aliases and pending data are removed. Notes already
attached to commits are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		repo, err := project.Find(ctx, cwd, nil)
		if err != nil {
			return err
		}

		if initRemove {
			if err := repo.Uninitialize(ctx); err != nil {
				return err
			}
			cmd.Printf("Removed gtm from %s\n", repo.Root)
			return nil
		}

		if err := repo.Initialize(ctx); err != nil {
			return err
		}
		cmd.Printf("Initialized gtm in %s\n", repo.Root)
		for _, h := range scm.Hooks {
			cmd.Printf("  hook:  %-13s -> %s\n", h.Name, h.Command)
		}
		cmd.Printf("  notes: refs/notes/%s (share with 'git pushgtm' / 'git fetchgtm')\n", scm.NotesRef)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initRemove, "remove", false, "remove gtm from the repository")
	rootCmd.AddCommand(initCmd)
}
