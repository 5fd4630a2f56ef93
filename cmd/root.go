package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/gtm/internal/aggregate"
	"github.com/fakeyudi/gtm/internal/config"
	"github.com/fakeyudi/gtm/internal/diag"
	"github.com/fakeyudi/gtm/internal/eventlog"
	"github.com/fakeyudi/gtm/internal/note"
	"github.com/fakeyudi/gtm/internal/project"
	"github.com/fakeyudi/gtm/internal/state"
)

// globalCfg holds the user-level configuration, populated in PersistentPreRunE.
// Repository commands merge the project file on top of it.
var globalCfg *config.Config

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gtm",
	Short: "Record time spent per file and attach it to git commits",
	Long: `gtm records file saves (gtm record, usually from an editor plugin or gtm watch)
and, when you commit, attaches the time spent on each file to the commit as a
git note under refs/notes/gtm-data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		globalCfg = global
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also write diagnostics to stderr")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// workspace is everything a repository command needs.
type workspace struct {
	repo   *project.Repo
	cfg    config.Config
	log    *diag.Logger
	events *eventlog.Store
	state  state.Store
}

// openWorkspace locates the repository containing path and loads its
// configuration. The repository must have been initialised with gtm init.
func openWorkspace(ctx context.Context, cmd *cobra.Command, path string) (*workspace, error) {
	repo, err := project.Find(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if !repo.Initialized() {
		return nil, project.ErrNotInitialized
	}

	projectCfg, err := config.LoadProject(repo.Root)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	cfg := config.Merge(globalCfg, projectCfg)
	if err := config.ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	logOpts := diag.Options{Dir: repo.MetaDir, Debug: cfg.Debug}
	if verbose {
		logOpts.Stderr = cmd.ErrOrStderr()
	}
	logger := diag.New(logOpts)

	events, err := eventlog.Open(repo.MetaDir, eventlog.Options{
		RepoID:      repo.ID(),
		LockTimeout: cfg.LockTimeout.Duration,
		LockRetry:   cfg.LockRetry.Duration,
		StaleAfter:  cfg.StaleAfter.Duration,
		Archive:     cfg.Archive(),
	})
	if err != nil {
		logger.Close()
		return nil, err
	}
	st, err := state.NewStore(repo.MetaDir)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &workspace{repo: repo, cfg: cfg, log: logger, events: events, state: st}, nil
}

// openCwd opens the workspace for the current directory.
func openCwd(cmd *cobra.Command) (*workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return openWorkspace(cmd.Context(), cmd, cwd)
}

func (w *workspace) Close() error {
	return w.log.Close()
}

func (w *workspace) policy() aggregate.Policy {
	return aggregate.Policy{
		IdleThreshold: w.cfg.IdleThreshold.Duration,
		MinDuration:   w.cfg.NoiseFloor(),
	}
}

func (w *workspace) writer() *note.Writer {
	return &note.Writer{
		Events:               w.events,
		Notes:                w.repo.Git,
		Policy:               w.policy(),
		State:                w.state,
		Logger:               w.log.Logger,
		FailureWarnThreshold: w.cfg.FailureWarnThreshold,
	}
}

func (w *workspace) reader() *note.Reader {
	return &note.Reader{Notes: w.repo.Git, History: w.repo.Git}
}

// quiet reports whether err only means there is no repository to work with.
func quiet(err error) bool {
	return errors.Is(err, project.ErrRepoNotFound) || errors.Is(err, project.ErrNotInitialized)
}
