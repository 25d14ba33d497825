// Package watch re-runs a callback when chain files change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
)

// DefaultDelay is how long the watcher waits for more changes before it
// fires the callback.
const DefaultDelay = 200 * time.Millisecond

// ChangeFunc handles one debounced batch of changed files. Files are sorted.
type ChangeFunc func(ctx context.Context, files []string) error

// Options configures a Watcher.
type Options struct {
	// Patterns are matched against the base name of a changed file. An empty
	// list matches every file.
	Patterns []string
	// Delay overrides DefaultDelay.
	Delay time.Duration
}

// Watcher monitors directory trees and reports changed files in batches.
type Watcher struct {
	fsw      *fsnotify.Watcher
	patterns []string
	delay    time.Duration
	onChange ChangeFunc
}

// New creates a watcher over paths. Directories are watched recursively, a
// file path watches its parent directory.
func New(paths []string, opts Options, onChange ChangeFunc) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange must not be nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		patterns: opts.Patterns,
		delay:    opts.Delay,
		onChange: onChange,
	}
	if w.delay <= 0 {
		w.delay = DefaultDelay
	}

	for _, p := range paths {
		if err := w.add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Dirs returns the watched directories, sorted.
func (w *Watcher) Dirs() []string {
	dirs := w.fsw.WatchList()
	sort.Strings(dirs)
	return dirs
}

func (w *Watcher) add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return w.watchDir(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && isHidden(p) {
			return filepath.SkipDir
		}
		return w.watchDir(p)
	})
}

func (w *Watcher) watchDir(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	return nil
}

// Run processes file events until ctx is done, then closes the watcher.
// Errors returned by the callback are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if isHidden(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			logger.Debug("File changed.", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = struct{}{}
			timer.Reset(w.delay)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)

		case <-timer.C:
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			clear(pending)
			sort.Strings(files)
			if len(files) == 0 {
				continue
			}
			if err := w.onChange(ctx, files); err != nil {
				logger.Error("Error handling file changes.", "files", files, "error", err)
			}
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range w.patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
