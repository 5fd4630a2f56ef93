// Package project locates the git repository a path belongs to and manages
// gtm's per-repository metadata directory and hooks.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fakeyudi/gtm/internal/scm"
)

var (
	// ErrRepoNotFound is returned when a path is not inside a git work tree.
	ErrRepoNotFound = errors.New("git repository not found")
	// ErrNotInitialized is returned when the repository is not set up for time tracking.
	ErrNotInitialized = errors.New("gtm is not initialized for this repository, run 'gtm init'")
	// ErrOutsideRepo is returned when a path lies outside the repository work tree.
	ErrOutsideRepo = errors.New("path is outside the repository")
)

const (
	// MetaDirName is the directory under the git dir holding gtm state.
	MetaDirName = "gtm"
	// ProjectConfigName is the per-repository config file at the work tree root.
	ProjectConfigName = ".gtmconfig"
)

// GitConfig holds the repository config values set by Initialize.
var GitConfig = map[string]string{
	"alias.pushgtm":  "push origin refs/notes/" + scm.NotesRef,
	"alias.fetchgtm": "fetch origin refs/notes/" + scm.NotesRef + ":refs/notes/" + scm.NotesRef,
}

// Repo is a git repository gtm records time for.
type Repo struct {
	Root    string // absolute work tree root
	GitDir  string
	MetaDir string // <GitDir>/gtm, outside the object store
	Git     *scm.Git
}

// Find resolves the repository containing path, which may be a file or a
// directory and need not exist yet. runner may be nil.
func Find(ctx context.Context, path string, runner scm.GitRunner) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := existingDir(abs)

	g := &scm.Git{Dir: dir, Runner: runner}
	root, err := g.RepoRoot(ctx)
	if err != nil {
		if errors.Is(err, scm.ErrNotRepository) {
			return nil, fmt.Errorf("%w in %s", ErrRepoNotFound, dir)
		}
		return nil, err
	}
	gitDir, err := g.GitDir(ctx)
	if err != nil {
		return nil, err
	}

	return &Repo{
		Root:    root,
		GitDir:  gitDir,
		MetaDir: filepath.Join(gitDir, MetaDirName),
		Git:     &scm.Git{Dir: root, Runner: runner},
	}, nil
}

// existingDir returns the nearest existing directory at or above path.
func existingDir(path string) string {
	p := path
	for {
		info, err := os.Stat(p)
		if err == nil {
			if info.IsDir() {
				return p
			}
			return filepath.Dir(p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// ID identifies the repository in touch events.
func (r *Repo) ID() string {
	return r.Root
}

// Initialized reports whether gtm's metadata directory exists.
func (r *Repo) Initialized() bool {
	info, err := os.Stat(r.MetaDir)
	return err == nil && info.IsDir()
}

// RelPath returns path relative to the work tree root with slash separators.
func (r *Repo) RelPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root := resolve(r.Root)
	abs = resolve(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepo, path)
	}
	return filepath.ToSlash(rel), nil
}

// resolve evaluates symlinks in the existing prefix of path, keeping any
// trailing components that do not exist.
func resolve(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	return filepath.Join(resolve(parent), filepath.Base(path))
}

// Initialize creates the metadata directory, installs the hooks and sets the
// repository config used for sharing notes.
func (r *Repo) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(r.MetaDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", r.MetaDir, err)
	}
	hooksDir, err := r.Git.HooksDir(ctx)
	if err != nil {
		return err
	}
	for _, h := range scm.Hooks {
		if err := scm.InstallHook(hooksDir, h); err != nil {
			return err
		}
	}
	for _, key := range configKeys() {
		if err := r.Git.ConfigSet(ctx, key, GitConfig[key]); err != nil {
			return err
		}
	}
	return nil
}

// Uninitialize removes hooks, config and all pending gtm state. Notes already
// attached to commits are left alone.
func (r *Repo) Uninitialize(ctx context.Context) error {
	hooksDir, err := r.Git.HooksDir(ctx)
	if err != nil {
		return err
	}
	for _, h := range scm.Hooks {
		if err := scm.RemoveHook(hooksDir, h); err != nil {
			return err
		}
	}
	for _, key := range configKeys() {
		if err := r.Git.ConfigUnset(ctx, key); err != nil {
			return err
		}
	}
	return os.RemoveAll(r.MetaDir)
}

func configKeys() []string {
	keys := make([]string, 0, len(GitConfig))
	for k := range GitConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
