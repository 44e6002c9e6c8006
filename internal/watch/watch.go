package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/docreview/internal/extract"
)

// DefaultDebounce is how long the watcher waits after the last change
// before firing.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the full, sorted list of watched documents after a
// burst of changes settles.
type ChangeFunc func(ctx context.Context, files []string) error

// Watcher monitors documents and directories and calls a ChangeFunc when
// any supported document under them is written, created or renamed.
type Watcher struct {
	paths    []string
	debounce time.Duration
	logger   *slog.Logger
	onChange ChangeFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher over paths. Each path may be a file or a directory.
func New(paths []string, onChange ChangeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		paths:    paths,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
		onChange: onChange,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Files expands paths into the supported documents they name. Directories
// contribute their direct children; explicit files are kept as given.
func Files(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			full := filepath.Join(p, e.Name())
			if extract.Supported(full) {
				add(full)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Run blocks until ctx is done. Errors from the ChangeFunc are logged and
// do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	files := make(map[string]bool)
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		dir := abs
		if !info.IsDir() {
			files[abs] = true
			dir = filepath.Dir(abs)
		} else {
			dirs[abs] = true
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	relevant := func(name string) bool {
		abs, err := filepath.Abs(name)
		if err != nil {
			return false
		}
		if files[abs] {
			return true
		}
		return dirs[filepath.Dir(abs)] && extract.Supported(abs)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !relevant(evt.Name) {
				continue
			}
			w.logger.Debug("document changed", "path", evt.Name, "op", evt.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			current, err := Files(w.paths)
			if err != nil {
				w.logger.Warn("listing watched documents", "error", err)
				continue
			}
			if err := w.onChange(ctx, current); err != nil {
				w.logger.Error("change handler failed", "error", err)
			}
		}
	}
}
