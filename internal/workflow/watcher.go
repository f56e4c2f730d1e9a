package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
)

// DefaultDebounceInterval is the quiet period before a changed file is reloaded
const DefaultDebounceInterval = 100 * time.Millisecond

// Watcher reloads a Selector whenever its template file changes. The parent
// directory is watched so editors that replace the file by rename are seen.
type Watcher struct {
	path     string
	selector *Selector
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	reloads int
}

// NewWatcher creates a watcher for path; a zero interval uses the default
func NewWatcher(path string, interval time.Duration, selector *Selector) (*Watcher, error) {
	if path == "" {
		return nil, errors.NewValidationError("template file path is required")
	}
	if selector == nil {
		return nil, errors.NewValidationError("selector is required")
	}
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInternalError("failed to create file watcher").WithCause(err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Watcher{
		path:     abs,
		selector: selector,
		watcher:  fsw,
		debounce: NewDebouncer(interval),
		logger:   logging.GetLogger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called. A file that fails to
// parse is logged and the previous templates stay active.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.NewValidationError("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return errors.NewInternalError("failed to watch template directory").WithCause(err)
	}

	w.logger.Info("Workflow template watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Workflow template watcher stopped", "reason", "context cancelled")
			return nil

		case <-w.stopCh:
			w.logger.Info("Workflow template watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.NewInternalError("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}

			w.logger.Debug("Template file event", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.NewInternalError("watcher errors channel closed")
			}
			w.logger.Error("Template watcher error", "error", err.Error())
		}
	}
}

// Stop ends Watch and releases the underlying watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	w.debounce.Stop()
	if err := w.watcher.Close(); err != nil {
		return errors.NewInternalError("failed to close file watcher").WithCause(err)
	}
	return nil
}

// Reloads returns how many reloads were applied successfully
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) reload() {
	if err := w.selector.Reload(w.path); err != nil {
		w.logger.Error("Workflow template reload failed, keeping previous templates",
			"path", w.path,
			"error", err.Error(),
		)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info("Workflow templates reloaded", "path", w.path)
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		name = event.Name
	}
	return name == w.path
}

// Debouncer collects rapid events and runs the latest callback after a quiet period
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any callback still pending
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback; later triggers are ignored
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
