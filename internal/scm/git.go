// Package scm wraps the git command line: repository discovery, notes, config
// and hook installation.
package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned when a directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// GitRunner executes a git command in dir and returns its standard output.
// stdin may be nil. This abstraction allows mocking in tests.
type GitRunner func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error)

// Git runs git commands against one directory.
type Git struct {
	Dir    string
	Runner GitRunner // if nil, uses the real git subprocess
}

// New returns a Git bound to dir using the real git binary.
func New(dir string) *Git {
	return &Git{Dir: dir}
}

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return string(out), nil
}

// CommandError describes a git invocation that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := "git " + strings.Join(e.Args, " ") + ": " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	return g.runInput(ctx, nil, args...)
}

func (g *Git) runInput(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	runner := g.Runner
	if runner == nil {
		runner = defaultGitRunner
	}
	return runner(ctx, g.Dir, stdin, args...)
}

// RepoRoot returns the absolute path of the work tree root containing Dir.
func (g *Git) RepoRoot(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		if isExitCode(err, 128) {
			return "", ErrNotRepository
		}
		return "", err
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return "", ErrNotRepository
	}
	return filepath.Clean(root), nil
}

// GitDir returns the absolute path of the repository's git directory.
func (g *Git) GitDir(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		if isExitCode(err, 128) {
			return "", ErrNotRepository
		}
		return "", err
	}
	return filepath.Clean(strings.TrimSpace(out)), nil
}

// HooksDir returns the absolute path of the directory git reads hooks from.
func (g *Git) HooksDir(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.Dir, dir)
	}
	return filepath.Clean(dir), nil
}

// ResolveCommit returns the full hash of rev, which must name a commit.
func (g *Git) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rev, err)
	}
	return strings.TrimSpace(out), nil
}

// Commit is one entry of the commit log.
type Commit struct {
	Hash    string
	Subject string
}

// Log returns up to n commits reachable from HEAD, newest first.
func (g *Git) Log(ctx context.Context, n int) ([]Commit, error) {
	out, err := g.run(ctx, "log", fmt.Sprintf("-n%d", n), "--format=%H%x09%s")
	if err != nil {
		return nil, err
	}
	return parseLogLines(out), nil
}

// CommitInfo returns the hash and subject of the commit rev names.
func (g *Git) CommitInfo(ctx context.Context, rev string) (Commit, error) {
	out, err := g.run(ctx, "log", "-n1", "--format=%H%x09%s", rev+"^{commit}", "--")
	if err != nil {
		return Commit{}, fmt.Errorf("resolve %s: %w", rev, err)
	}
	commits := parseLogLines(out)
	if len(commits) == 0 {
		return Commit{}, fmt.Errorf("resolve %s: no such commit", rev)
	}
	return commits[0], nil
}

// ConfigSet sets a local repository config value.
func (g *Git) ConfigSet(ctx context.Context, key, value string) error {
	_, err := g.run(ctx, "config", "--local", key, value)
	return err
}

// ConfigUnset removes a local repository config value. Missing keys are not
// an error.
func (g *Git) ConfigUnset(ctx context.Context, key string) error {
	_, err := g.run(ctx, "config", "--local", "--unset", key)
	if err != nil && isExitCode(err, 5) {
		return nil
	}
	return err
}

// isExitCode reports whether err carries an *exec.ExitError with the given code.
func isExitCode(err error, code int) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == code
	}
	return false
}

// parseLogLines splits "<hash>\t<subject>" lines, discarding empty lines.
func parseLogLines(output string) []Commit {
	lines := strings.Split(output, "\n")
	result := make([]Commit, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		hash, subject, _ := strings.Cut(l, "\t")
		result = append(result, Commit{Hash: hash, Subject: subject})
	}
	return result
}
