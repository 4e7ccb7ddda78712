package scan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers Engine.Run on filesystem change, debounced so a burst of
// writes (an album copy, a tagger batch-editing a folder) collapses into one
// scan. Grounded on internal/scanner/scanner.go's fsnotify + debounce shape;
// unlike that version it doesn't target individual changed files — the new
// Engine re-diffs the whole root cheaply enough that per-file job payloads
// aren't worth the bookkeeping.
type Watcher struct {
	engine      *Engine
	root        string
	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	mu          sync.Mutex
	debounce    time.Duration
	timer       *time.Timer
	log         *slog.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewWatcher(engine *Engine, root string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		engine:      engine,
		root:        root,
		watcher:     w,
		watchedDirs: make(map[string]bool),
		debounce:    debounce,
		log:         log,
		stopCh:      make(chan struct{}),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	resolved, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		return err
	}
	if err := w.addWatchRecursive(resolved); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop(ctx)
	w.log.Info("watching media root", "root", w.root)
	return nil
}

func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	basename := filepath.Base(event.Name)
	if strings.HasPrefix(basename, ".") || strings.HasSuffix(basename, "~") {
		return
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addWatchRecursive(event.Name)
		}
	}
	w.scheduleScan(ctx)
}

func (w *Watcher) scheduleScan(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.engine.IsScanning() {
			return
		}
		if _, err := w.engine.Run(ctx, false); err != nil {
			w.log.Error("debounced scan failed", "error", err)
		}
	})
}

func (w *Watcher) addWatchRecursive(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if !w.watchedDirs[path] {
			if err := w.watcher.Add(path); err != nil {
				w.log.Warn("failed to watch directory", "path", path, "error", err)
				return nil
			}
			w.watchedDirs[path] = true
		}
		return nil
	})
}
