// Package watch re-runs tasks when files change. Each watch block is
// scheduled independently: events are debounced per watch, and events that
// arrive while that watch's run is in flight are coalesced into exactly one
// follow-up run.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
)

// RunFunc starts a new run of goals. Watchers only log its error.
type RunFunc func(ctx context.Context, goals []string) error

// Watcher owns the fsnotify watcher and the per-watch schedulers.
type Watcher struct {
	root    string
	watches []*scheduler
	run     RunFunc

	ctx context.Context
	wg  sync.WaitGroup

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	dirs map[string]bool
}

// scheduler is the debounce and coalescing state of one watch block.
type scheduler struct {
	w        *Watcher
	cfg      *config.Watch
	patterns []string

	mu      sync.Mutex
	timer   *time.Timer
	busy    bool
	pending bool
	stopped bool
}

// New creates a Watcher. Relative patterns are resolved against root.
func New(root string, watches []*config.Watch, run RunFunc) *Watcher {
	w := &Watcher{root: root, run: run, dirs: make(map[string]bool)}
	for _, cfg := range watches {
		s := &scheduler{w: w, cfg: cfg}
		for _, p := range cfg.Paths {
			if !filepath.IsAbs(p) && !strings.HasPrefix(p, "!") {
				p = filepath.Join(root, p)
			}
			s.patterns = append(s.patterns, p)
		}
		w.watches = append(w.watches, s)
	}
	return w
}

// Start registers the watched directories and begins dispatching events
// until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.ctx = ctx
	w.fsw = fsw
	w.mu.Unlock()

	for _, s := range w.watches {
		for _, p := range s.patterns {
			if strings.HasPrefix(p, "!") {
				continue
			}
			if err := w.addTree(watchBase(p)); err != nil {
				_ = fsw.Close()
				return err
			}
		}
	}
	logger.Info("👀 Watching for changes", "watches", len(w.watches), "directories", len(w.dirs))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

// Wait blocks until the event loop and every in-flight run have finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// watchBase is the directory to register for pattern.
func watchBase(pattern string) string {
	base := fsutil.StaticPrefix(pattern)
	if !fsutil.HasMeta(pattern) {
		if info, err := os.Stat(base); err == nil && !info.IsDir() {
			return filepath.Dir(base)
		}
	}
	return base
}

// addTree registers dir and its subdirectories. A missing dir is skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && fsutil.Ignored(d.Name()) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.dirs[p] {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return err
		}
		w.dirs[p] = true
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		w.mu.Lock()
		_ = w.fsw.Close()
		w.mu.Unlock()
		for _, s := range w.watches {
			s.stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Name == "" || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				ctxlog.FromContext(ctx).Warn("Failed to watch new directory", "dir", event.Name, "error", err)
			}
		}
	}
	w.Trigger(event.Name)
}

// Trigger schedules every watch whose patterns match path. It reports how
// many watches matched.
func (w *Watcher) Trigger(path string) int {
	matched := 0
	for _, s := range w.watches {
		if s.matches(path) {
			s.schedule()
			matched++
		}
	}
	return matched
}

func (s *scheduler) matches(path string) bool {
	hit := false
	for _, p := range s.patterns {
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			if !filepath.IsAbs(neg) {
				neg = filepath.Join(s.w.root, neg)
			}
			if fsutil.Match(neg, path) {
				return false
			}
			continue
		}
		if fsutil.Match(p, path) || (!fsutil.HasMeta(p) && filepath.Clean(p) == filepath.Clean(path)) {
			hit = true
		}
	}
	return hit
}

// schedule arms the debounce timer. Every armed timer holds one count on
// the Watcher's WaitGroup until it fires or is stopped, so Wait also covers
// runs that are triggered but not yet started.
func (s *scheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer == nil || !s.timer.Stop() {
		s.w.wg.Add(1)
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, s.fire)
}

// fire starts a run, or marks one pending if a run is in flight.
func (s *scheduler) fire() {
	defer s.w.wg.Done()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.busy {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	ctx := s.w.context()
	logger := ctxlog.FromContext(ctx).With("watch", s.cfg.Owner, "run", s.cfg.Run)

	for {
		logger.Info("🔁 Change detected, re-running")
		if err := s.w.run(ctx, s.cfg.Run); err != nil {
			logger.Warn("Watch run failed", "error", err)
		}

		s.mu.Lock()
		if s.pending && !s.stopped {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.busy = false
		s.mu.Unlock()
		return
	}
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil && s.timer.Stop() {
		s.w.wg.Done()
	}
	s.timer = nil
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return ctxlog.Discard(context.Background())
	}
	return w.ctx
}
