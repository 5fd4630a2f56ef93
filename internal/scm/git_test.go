package scm

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// exitCodeError returns a real *exec.ExitError with the given exit code
// by running a shell command that exits with that code.
func exitCodeError(code string) error {
	return exec.Command("sh", "-c", "exit "+code).Run()
}

func TestRepoRootNotRepository(t *testing.T) {
	exitErr := exitCodeError("128")
	if exitErr == nil {
		t.Fatal("expected exit code 128 error, got nil")
	}

	g := &Git{
		Dir: "/some/dir",
		Runner: func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
			return "", &CommandError{Args: args, Err: exitErr}
		},
	}

	_, err := g.RepoRoot(context.Background())
	if err != ErrNotRepository {
		t.Fatalf("expected ErrNotRepository, got %v", err)
	}
}

func TestAddNotePassesMessageOnStdin(t *testing.T) {
	var gotArgs []string
	var gotInput string
	g := &Git{
		Dir: "/repo",
		Runner: func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
			gotArgs = args
			if stdin != nil {
				b, _ := io.ReadAll(stdin)
				gotInput = string(b)
			}
			return "", nil
		},
	}

	if err := g.AddNote(context.Background(), NotesRef, "abc123", "total: 30\n"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	want := "notes --ref=gtm-data add -f -F - abc123"
	if strings.Join(gotArgs, " ") != want {
		t.Errorf("args = %q, want %q", strings.Join(gotArgs, " "), want)
	}
	if gotInput != "total: 30\n" {
		t.Errorf("stdin = %q", gotInput)
	}
}

func TestShowNoteMissing(t *testing.T) {
	exitErr := exitCodeError("1")
	g := &Git{
		Dir: "/repo",
		Runner: func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
			return "", exitErr
		},
	}

	_, found, err := g.ShowNote(context.Background(), NotesRef, "abc123")
	if err != nil {
		t.Fatalf("ShowNote: %v", err)
	}
	if found {
		t.Error("expected found=false for a commit without a note")
	}
}

func TestLogParsesHashAndSubject(t *testing.T) {
	g := &Git{
		Dir: "/repo",
		Runner: func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
			return "aaa\tfirst commit\nbbb\tsecond\twith tab\n\n", nil
		},
	}

	commits, err := g.Log(context.Background(), 5)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d: %+v", len(commits), commits)
	}
	if commits[1].Hash != "bbb" || commits[1].Subject != "second\twith tab" {
		t.Errorf("unexpected second commit: %+v", commits[1])
	}
}

func TestInstallHookPreservesExistingScript(t *testing.T) {
	dir := t.TempDir()
	existing := "#!/bin/sh\necho existing\n"
	if err := os.WriteFile(filepath.Join(dir, "post-commit"), []byte(existing), 0o755); err != nil {
		t.Fatal(err)
	}

	h := Hooks[0]
	for i := 0; i < 2; i++ {
		if err := InstallHook(dir, h); err != nil {
			t.Fatalf("InstallHook: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "post-commit"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "#!/bin/sh\n"+beginMarker(h.Name)) || !strings.HasSuffix(content, "echo existing\n") {
		t.Errorf("gtm block should follow the shebang and keep the script:\n%s", content)
	}
	if n := strings.Count(content, beginMarker(h.Name)); n != 1 {
		t.Errorf("expected one gtm block after reinstall, got %d:\n%s", n, content)
	}
	if !HookInstalled(dir, h) {
		t.Error("HookInstalled = false after install")
	}

	if err := RemoveHook(dir, h); err != nil {
		t.Fatalf("RemoveHook: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "post-commit"))
	if string(data) != existing {
		t.Errorf("RemoveHook left %q, want %q", data, existing)
	}
}

func TestInstallHookRunsBeforeExistingExit(t *testing.T) {
	dir := t.TempDir()
	existing := "#!/bin/bash\nrun-linters\nexit 0"
	if err := os.WriteFile(filepath.Join(dir, "post-commit"), []byte(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	h := Hooks[0]
	if err := InstallHook(dir, h); err != nil {
		t.Fatalf("InstallHook: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "post-commit"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	block := strings.Index(content, h.Command)
	exit := strings.Index(content, "exit 0")
	if block < 0 || exit < 0 || block > exit {
		t.Errorf("gtm block must run before the script exits:\n%s", content)
	}

	if err := RemoveHook(dir, h); err != nil {
		t.Fatalf("RemoveHook: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "post-commit"))
	if string(data) != existing {
		t.Errorf("RemoveHook left %q, want %q", data, existing)
	}
}

func TestRemoveHookDeletesGtmOnlyScript(t *testing.T) {
	dir := t.TempDir()
	h := Hooks[1]
	if err := InstallHook(dir, h); err != nil {
		t.Fatalf("InstallHook: %v", err)
	}
	if err := RemoveHook(dir, h); err != nil {
		t.Fatalf("RemoveHook: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, h.Name)); !os.IsNotExist(err) {
		t.Errorf("expected hook file to be removed, stat err = %v", err)
	}
}

func TestCommitInfoResolvesRevision(t *testing.T) {
	var gotArgs []string
	g := &Git{
		Dir: "/repo",
		Runner: func(ctx context.Context, dir string, stdin io.Reader, args ...string) (string, error) {
			gotArgs = args
			return "abc123\tFix the parser\n", nil
		},
	}

	c, err := g.CommitInfo(context.Background(), "HEAD~1")
	if err != nil {
		t.Fatalf("CommitInfo: %v", err)
	}
	if c.Hash != "abc123" || c.Subject != "Fix the parser" {
		t.Errorf("got %+v", c)
	}
	if want := "log -n1 --format=%H%x09%s HEAD~1^{commit} --"; strings.Join(gotArgs, " ") != want {
		t.Errorf("args = %q, want %q", strings.Join(gotArgs, " "), want)
	}
}
