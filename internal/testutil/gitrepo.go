// Package testutil provides a throwaway git repository for integration tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo is an isolated git work tree with its own HOME.
type Repo struct {
	Root string
	Home string
	t    *testing.T
}

// NewRepo initialises an empty repository in a temp directory. The test is
// skipped when git is not installed. HOME and XDG_CONFIG_HOME point at a temp
// directory so no user configuration leaks in.
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	// Resolve symlinks so paths compare equal to git's output (macOS /var).
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolving temp dir: %v", err)
	}
	r := &Repo{Root: root, Home: home, t: t}
	r.Git("init", "-q")
	r.Git("config", "user.name", "Test")
	r.Git("config", "user.email", "test@example.com")
	r.Git("config", "commit.gpgsign", "false")
	return r
}

// Git runs git in the work tree and returns its trimmed output.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Root
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Path returns the absolute path of rel inside the work tree.
func (r *Repo) Path(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// WriteFile creates a file relative to the work tree.
func (r *Repo) WriteFile(rel, content string) string {
	r.t.Helper()
	full := r.Path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatalf("Failed to write file %s: %v", rel, err)
	}
	return full
}

// Commit stages everything and commits it with hooks disabled, returning the
// new commit hash.
func (r *Repo) Commit(msg string) string {
	r.t.Helper()
	r.Git("add", "-A")
	r.Git("-c", "core.hooksPath=/dev/null", "commit", "-q", "--allow-empty", "-m", msg)
	return r.Git("rev-parse", "HEAD")
}
