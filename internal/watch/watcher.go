// internal/watch/watcher.go
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"shadow/internal/change"
	"shadow/internal/workspace"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Detector is the part of an engine the watcher drives.
type Detector interface {
	DetectChanges(path string) ([]change.Change, error)
	GetTrackedFiles() []string
}

// Result is one detection pass triggered by filesystem activity.
type Result struct {
	Path    string
	Changes []change.Change
	Err     error
}

// Watcher re-runs change detection for tracked files when they are written,
// created, removed or renamed. Bursts of events on one path are collapsed
// into a single pass after the debounce interval.
type Watcher struct {
	root     string
	detector Detector
	debounce time.Duration
	onResult func(Result)
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New watches every non-ignored directory under root.
func New(root string, detector Detector, debounce time.Duration, onResult func(Result), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		detector: detector,
		debounce: debounce,
		onResult: onResult,
		watcher:  fsw,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	return w, nil
}

// addTree registers dir and its non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := workspace.Rel(w.root, p); err == nil && workspace.ShouldIgnore(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is cancelled, then closes the
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := workspace.Rel(w.root, event.Name)
	if err != nil || workspace.ShouldIgnore(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("Failed to watch new directory",
					zap.String("path", rel),
					zap.Error(err))
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.schedule(rel)
}

func (w *Watcher) schedule(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if timer, exists := w.timers[rel]; exists {
		timer.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, rel)
		closed := w.closed
		w.mu.Unlock()

		if !closed {
			w.detect(rel)
		}
	})
}

func (w *Watcher) detect(rel string) {
	if !slices.Contains(w.detector.GetTrackedFiles(), rel) {
		return
	}

	changes, err := w.detector.DetectChanges(rel)
	if err != nil {
		w.logger.Warn("Detection failed",
			zap.String("path", rel),
			zap.Error(err))
	}
	if w.onResult != nil {
		w.onResult(Result{Path: rel, Changes: changes, Err: err})
	}
}

// Close stops pending passes and releases the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	return w.watcher.Close()
}
