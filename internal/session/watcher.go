package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/claude-watch/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// debounceWindow coalesces rapid JSONL write bursts into one trigger.
const debounceWindow = 100 * time.Millisecond

// LogWatcher watches the Claude projects root for session log writes and
// requests a registry refresh when they settle. fsnotify is not recursive,
// so each project subdirectory is watched individually and new project
// directories are added as they appear.
type LogWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	trigger func()

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewLogWatcher creates a watcher over projectsRoot. trigger is invoked
// after each debounced batch of log writes.
func NewLogWatcher(projectsRoot string, trigger func()) (*LogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &LogWatcher{
		root:    projectsRoot,
		watcher: watcher,
		trigger: trigger,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.addProjectDirs()
	return w, nil
}

// addProjectDirs watches the root and every existing project directory.
// A missing root is tolerated: it may be created later.
func (w *LogWatcher) addProjectDirs() {
	if err := w.watcher.Add(w.root); err != nil {
		watchLog.Warn("watch_root_failed",
			slog.String("dir", w.root),
			slog.String("error", err.Error()),
		)
		return
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = w.watcher.Add(filepath.Join(w.root, entry.Name()))
		}
	}
}

// Start begins watching. Must be called in a goroutine; blocks until Stop.
func (w *LogWatcher) Start() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watchLog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *LogWatcher) handleEvent(event fsnotify.Event) {
	// New project directory: bring it under watch
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceWindow, func() {
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		watchLog.Debug("log_activity", slog.String("file", filepath.Base(event.Name)))
		w.trigger()
	})
}

// Stop shuts the watcher down and releases its file handles.
func (w *LogWatcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
}
