package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RecordFunc records one save of path.
type RecordFunc func(ctx context.Context, path string) error

// Watcher feeds Write and Create events under a work tree to a RecordFunc.
type Watcher struct {
	root   string
	ignore *Matcher
	record RecordFunc
	log    *slog.Logger
	now    func() time.Time

	fs *fsnotify.Watcher
	// last holds the second each path was last recorded, so the burst of
	// events an editor emits for one save is recorded once.
	last map[string]int64
}

// New starts watching every non-ignored directory under root. logger may be nil.
func New(root string, ignore *Matcher, record RecordFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if ignore == nil {
		ignore = &Matcher{Root: root}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Watcher{
		root:   root,
		ignore: ignore,
		record: record,
		log:    logger,
		now:    time.Now,
		fs:     fsw,
		last:   make(map[string]int64),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds a watch for dir and every directory below it that is not ignored.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignore.Ignored(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Run records events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if w.ignore.Ignored(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("watching new directory", "path", event.Name, "err", err)
			}
		}
		return
	}

	sec := w.now().Unix()
	if w.last[event.Name] == sec {
		return
	}
	w.last[event.Name] = sec

	if err := w.record(ctx, event.Name); err != nil {
		w.log.Warn("recording save", "path", event.Name, "err", err)
	}
}
