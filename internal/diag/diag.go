// Package diag sets up the diagnostic log. gtm runs mostly from editor
// plugins and git hooks where nobody reads stderr, so diagnostics go to a file
// in the repository's metadata directory.
package diag

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFileName is the diagnostic log inside the metadata directory.
const LogFileName = "gtm.log"

// Options configures New.
type Options struct {
	// Dir holds the log file. Empty disables file logging.
	Dir string
	// Debug lowers the level to debug.
	Debug bool
	// Stderr also writes records to this writer, typically os.Stderr for --verbose.
	Stderr io.Writer
}

// Logger is a slog.Logger that owns the underlying log file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New returns a logger writing to <Dir>/gtm.log and, if set, to Stderr. When
// the log file cannot be opened the logger degrades to Stderr only.
func New(opts Options) *Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var (
		writers []io.Writer
		file    *os.File
	)
	if opts.Dir != "" {
		f, err := os.OpenFile(filepath.Join(opts.Dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err == nil {
			file = f
			writers = append(writers, f)
		}
	}
	if opts.Stderr != nil {
		writers = append(writers, opts.Stderr)
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(h).With("pid", os.Getpid()),
		file:   file,
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
