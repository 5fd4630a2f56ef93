package scm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Hook is a git hook gtm installs.
type Hook struct {
	Name    string // git hook name, e.g. "post-commit"
	Command string // shell command run by the hook
}

// Hooks are the hooks gtm needs to attach time to commits.
var Hooks = []Hook{
	{Name: "post-commit", Command: "gtm commit"},
	{Name: "post-rewrite", Command: `gtm rewrite "$@"`},
}

const shebang = "#!/bin/sh\n"

func beginMarker(name string) string { return "# >>> gtm " + name + " >>>" }
func endMarker(name string) string   { return "# <<< gtm " + name + " <<<" }

// hookBlock renders the marker-delimited block gtm owns inside a hook script.
// Hook failures are swallowed so tracking never blocks a git operation.
func hookBlock(h Hook) string {
	return beginMarker(h.Name) + "\n" +
		"command -v gtm >/dev/null 2>&1 && " + h.Command + " || true\n" +
		endMarker(h.Name) + "\n"
}

// InstallHook writes h into hooksDir. An existing hook script is preserved and
// gtm's block goes right after its shebang line, so an exit further down the
// script cannot skip it. A block already present is replaced.
func InstallHook(hooksDir string, h Hook) error {
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	path := filepath.Join(hooksDir, h.Name)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading hook %s: %w", h.Name, err)
	}

	content := stripBlock(string(data), h.Name)
	switch {
	case content == "":
		content = shebang + hookBlock(h)
	case strings.HasPrefix(content, "#!"):
		first, rest, _ := strings.Cut(content, "\n")
		content = first + "\n" + hookBlock(h) + rest
	default:
		content = hookBlock(h) + content
	}

	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing hook %s: %w", h.Name, err)
	}
	return os.Chmod(path, 0o755)
}

// RemoveHook strips gtm's block from the hook script. The script is deleted
// when nothing but the shebang remains.
func RemoveHook(hooksDir string, h Hook) error {
	path := filepath.Join(hooksDir, h.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading hook %s: %w", h.Name, err)
	}

	content := stripBlock(string(data), h.Name)
	if strings.TrimSpace(strings.TrimPrefix(content, shebang)) == "" {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing hook %s: %w", h.Name, err)
		}
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o755)
}

// HookInstalled reports whether gtm's block is present in the hook script.
func HookInstalled(hooksDir string, h Hook) bool {
	data, err := os.ReadFile(filepath.Join(hooksDir, h.Name))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), beginMarker(h.Name))
}

// stripBlock removes every gtm block for name from content.
func stripBlock(content, name string) string {
	begin, end := beginMarker(name), endMarker(name)
	for {
		i := strings.Index(content, begin)
		if i < 0 {
			return content
		}
		j := strings.Index(content[i:], end)
		if j < 0 {
			return content[:i]
		}
		tail := content[i+j+len(end):]
		tail = strings.TrimPrefix(tail, "\n")
		content = content[:i] + tail
	}
}
