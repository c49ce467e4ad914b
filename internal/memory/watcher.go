package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher follows a workspace tree and requests a forced sync whenever a note
// file changes. Debouncing is left to Manager.ScheduleSync.
type Watcher struct {
	manager     *Manager
	workspaceID string
	root        string

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc

	dirMu sync.Mutex
	dirs  map[string]struct{} // watched directories
	wg     sync.WaitGroup
	once   sync.Once
}

// Watch starts a watcher for workspaceID rooted at root, replacing any
// existing watcher for that workspace.
func (m *Manager) Watch(ctx context.Context, workspaceID, root string) error {
	if m.isClosed() {
		return ErrClosed
	}
	w, err := newWatcher(m, workspaceID, root)
	if err != nil {
		return err
	}
	if err := w.start(ctx); err != nil {
		w.fsw.Close()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		w.Stop()
		return ErrClosed
	}
	prev := m.watchers[workspaceID]
	m.watchers[workspaceID] = w
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return nil
}

// Unwatch stops the watcher of workspaceID, if any.
func (m *Manager) Unwatch(workspaceID string) {
	m.mu.Lock()
	w := m.watchers[workspaceID]
	delete(m.watchers, workspaceID)
	m.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func newWatcher(m *Manager, workspaceID, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		manager:     m,
		workspaceID: workspaceID,
		root:        root,
		fsw:         fsw,
		dirs:        make(map[string]struct{}),
	}, nil
}

func (w *Watcher) start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", w.root)
	}

	watched := w.addTree(w.root)

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	slog.Info("memory watcher started", "workspace", w.workspaceID, "root", w.root, "dirs", watched)
	return nil
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) int {
	watched := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && IsIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("memory watcher: cannot watch dir", "path", path, "error", err)
			return nil
		}
		w.dirMu.Lock()
		w.dirs[filepath.Clean(path)] = struct{}{}
		w.dirMu.Unlock()
		watched++
		return nil
	})
	return watched
}

// Stop shuts down the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.fsw.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("memory watcher error", "workspace", w.workspaceID, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if IsIgnoredDir(filepath.Base(path)) {
				return
			}
			w.addTree(path)
			slog.Debug("memory watcher: watching new dir", "path", path)
			// Files may have landed before the watch was added.
			w.manager.ScheduleSync(w.workspaceID, w.root, true)
			return
		}
	}

	if !IsNoteFile(path) {
		// Removing or renaming a watched directory drops its notes too.
		if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
			return
		}
		if !w.forgetDir(path) {
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.manager.ScheduleSync(w.workspaceID, w.root, true)
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir itself was watched.
func (w *Watcher) forgetDir(dir string) bool {
	dir = filepath.Clean(dir)
	prefix := dir + string(filepath.Separator)

	w.dirMu.Lock()
	defer w.dirMu.Unlock()
	_, ok := w.dirs[dir]
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return ok
}
