package server

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blogsmith/blogsmith/internal/errors"
)

const (
	defaultQuietWindow = 250 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// Watcher watches source directories and coalesces change bursts into
// single rebuild callbacks. A rebuild fires once events stay quiet for
// the quiet window, or at the max delay when changes keep streaming in.
type Watcher struct {
	fsw      *fsnotify.Watcher
	quiet    time.Duration
	maxDelay time.Duration
	onChange func()
}

// NewWatcher watches each listed directory recursively. Directories that
// do not exist are skipped; editors often create them later, and the
// create events of their parents pick them up.
func NewWatcher(dirs []string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryServer, errors.SeverityFatal, "creating file watcher")
	}
	w := &Watcher{
		fsw:      fsw,
		quiet:    defaultQuietWindow,
		maxDelay: defaultMaxDelay,
		onChange: onChange,
	}
	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		quietTimer *time.Timer
		quietC     <-chan time.Time
		deadlineC  <-chan time.Time
	)
	stopTimers := func() {
		if quietTimer != nil {
			quietTimer.Stop()
		}
		quietTimer = nil
		quietC = nil
		deadlineC = nil
	}
	fire := func() {
		stopTimers()
		w.onChange()
	}

	for {
		select {
		case <-ctx.Done():
			stopTimers()
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						slog.Warn("Failed to watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			slog.Debug("Source change detected", "path", ev.Name, "op", ev.Op.String())
			if quietTimer == nil {
				quietTimer = time.NewTimer(w.quiet)
				quietC = quietTimer.C
				deadlineC = time.After(w.maxDelay)
			} else {
				quietTimer.Reset(w.quiet)
			}
		case <-quietC:
			fire()
		case <-deadlineC:
			fire()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryServer, errors.SeverityFatal, "inspecting watch root").
			WithContext("dir", root)
	}
	if !info.IsDir() {
		if err := w.fsw.Add(root); err != nil {
			return errors.Wrap(err, errors.CategoryServer, errors.SeverityFatal, "watching file").
				WithContext("path", root)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func relevantEvent(ev fsnotify.Event) bool {
	if ev.Op.Has(fsnotify.Chmod) && ev.Op&^fsnotify.Chmod == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}
