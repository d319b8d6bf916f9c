package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RebuildFunc is called once the source tree has settled after a change
type RebuildFunc func(ctx context.Context) error

// Watcher monitors the source tree and triggers rebuilds
type Watcher struct {
	root     string
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup

	mu       sync.Mutex
	timers   map[string]*time.Timer
	stopped  bool
	inflight sync.WaitGroup

	// One timer for the whole tree. Changes arriving during a rebuild set
	// pending and are folded into a single follow-up rebuild.
	rebuildTimer *time.Timer
	rebuilding   bool
	pending      bool
}

// Event represents a file system event
type Event struct {
	Type     EventType
	FilePath string
}

// EventType represents the type of file event
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// NewWatcher creates a watcher for every directory below root
func NewWatcher(root string, debounce time.Duration, rebuild RebuildFunc, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     root,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
		watcher:  fsWatcher,
		events:   make(chan Event, 100),
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start begins monitoring the source tree
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	w.loop.Add(1)
	go w.processEvents()
	return nil
}

// addTree watches dir and every directory below it, skipping hidden ones
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", path, err)
		}
		w.logger.Debug("watching folder", zap.String("path", path))
		return nil
	})
}

// processEvents debounces fsnotify events per path for the event stream and
// once for the whole tree for rebuilds
func (w *Watcher) processEvents() {
	defer w.loop.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Skip temp and hidden files
			if hidden(event.Name) {
				continue
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new folder", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}

			if _, ok := eventType(event.Op); !ok {
				continue
			}

			w.mu.Lock()
			if timer, exists := w.timers[event.Name]; exists {
				timer.Stop()
			}
			w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
				w.mu.Lock()
				delete(w.timers, event.Name)
				w.mu.Unlock()
				w.handleEvent(event)
			})
			if w.rebuild != nil {
				if w.rebuildTimer != nil {
					w.rebuildTimer.Stop()
				}
				w.rebuildTimer = time.AfterFunc(w.debounce, w.runRebuild)
			}
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func eventType(op fsnotify.Op) (EventType, bool) {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return EventCreated, true
	case op&fsnotify.Write == fsnotify.Write:
		return EventModified, true
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return EventDeleted, true
	default:
		return 0, false
	}
}

// handleEvent publishes a settled event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	typ, ok := eventType(event.Op)
	if !ok {
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	w.logger.Info("source changed", zap.String("path", event.Name), zap.Stringer("type", typ))

	select {
	case w.events <- Event{Type: typ, FilePath: event.Name}:
	default:
		w.logger.Debug("event dropped, no reader", zap.String("path", event.Name))
	}
}

// runRebuild runs the rebuild callback once the tree has settled. When a
// rebuild is already running it only marks one more as pending.
func (w *Watcher) runRebuild() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.rebuilding {
		w.pending = true
		w.mu.Unlock()
		w.logger.Debug("rebuild queued behind the running one")
		return
	}
	w.rebuilding = true
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	for {
		w.logger.Info("rebuilding")
		if err := w.rebuild(w.ctx); err != nil {
			w.logger.Error("rebuild failed", zap.Error(err))
		}

		w.mu.Lock()
		if !w.pending || w.stopped {
			w.rebuilding = false
			w.pending = false
			w.mu.Unlock()
			return
		}
		w.pending = false
		w.mu.Unlock()
	}
}

// Events returns the event channel
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for a running rebuild to finish
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	if w.rebuildTimer != nil {
		w.rebuildTimer.Stop()
	}
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.loop.Wait()
	w.inflight.Wait()
	close(w.events)
	return err
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
