// Package watch records file saves in a work tree as they happen.
package watch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileNames are the pattern files read from the work tree root.
var IgnoreFileNames = []string{".gitignore", ".gtmignore"}

// Matcher decides which paths are never recorded.
type Matcher struct {
	Root     string
	Patterns []string
}

// LoadIgnore merges the configured patterns with those from .gitignore and
// .gtmignore in root. Missing files are skipped.
func LoadIgnore(root string, configured []string) (*Matcher, error) {
	patterns := make([]string, len(configured))
	copy(patterns, configured)

	for _, name := range IgnoreFileNames {
		extra, err := readPatternFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return &Matcher{Root: root, Patterns: patterns}, err
		}
		patterns = append(patterns, extra...)
	}
	return &Matcher{Root: root, Patterns: patterns}, nil
}

// Ignored reports whether path matches any pattern. Paths inside .git are
// always ignored. A pattern matches the base name, the path relative to Root,
// or any leading directory of it.
func (m *Matcher) Ignored(path string) bool {
	rel := path
	if m.Root != "" && filepath.IsAbs(path) {
		if r, err := filepath.Rel(m.Root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if p == ".git" {
			return true
		}
	}

	base := parts[len(parts)-1]
	for _, pattern := range m.Patterns {
		if strings.HasPrefix(pattern, "!") {
			continue // negation is not supported
		}
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.Trim(pattern, "/")
		if pattern == "" {
			continue
		}

		if !dirOnly {
			if matched, _ := filepath.Match(pattern, base); matched {
				return true
			}
			if matched, _ := filepath.Match(pattern, rel); matched {
				return true
			}
		}
		// Leading directories, by name or by prefix path.
		for i := 0; i < len(parts)-1; i++ {
			if matched, _ := filepath.Match(pattern, parts[i]); matched {
				return true
			}
			if matched, _ := filepath.Match(pattern, strings.Join(parts[:i+1], "/")); matched {
				return true
			}
		}
	}
	return false
}

// readPatternFile reads a gitignore-style file and returns non-empty, non-comment lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
