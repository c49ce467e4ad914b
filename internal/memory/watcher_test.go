package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatcher_NoteChangeSchedulesSync(t *testing.T) {
	m, root := testManager(t, nil)
	writeNote(t, root, "notes/existing.md", "# Existing\n")

	if err := m.Watch(context.Background(), "ws", root); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeNote(t, root, "notes/scratch.json", "{}")
	time.Sleep(50 * time.Millisecond)
	if m.PendingSync("ws") {
		t.Error("non-note file should not schedule a sync")
	}

	writeNote(t, root, "notes/new.md", "# New\n")
	if !waitFor(t, 2*time.Second, func() bool { return m.PendingSync("ws") }) {
		t.Fatal("note change did not schedule a sync")
	}

	m.Unwatch("ws")
	m.Unwatch("ws")
}

func TestWatcher_InvalidRoot(t *testing.T) {
	m, root := testManager(t, nil)
	if err := m.Watch(context.Background(), "ws", filepath.Join(root, "missing")); err == nil {
		t.Error("expected error for missing root")
	}

	file := writeNote(t, root, "a.md", "# A\n")
	if err := m.Watch(context.Background(), "ws", file); err == nil {
		t.Error("expected error for file root")
	}
}

func TestWatcher_ClosedManager(t *testing.T) {
	m, root := testManager(t, nil)
	m.Shutdown()
	if err := m.Watch(context.Background(), "ws", root); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch after shutdown err = %v, want ErrClosed", err)
	}
}

func TestWatcher_RemoveEventsNeedNoteOrWatchedDir(t *testing.T) {
	m, root := testManager(t, nil)
	writeNote(t, root, "notes/archive/old.md", "# Old\n")

	w, err := newWatcher(m, "ws", root)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer w.Stop()
	w.addTree(root)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "notes", "foo.png"), Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "notes", "gone"), Op: fsnotify.Rename})
	if m.PendingSync("ws") {
		t.Fatal("removing a non-note file scheduled a sync")
	}

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "notes"), Op: fsnotify.Remove})
	if !m.PendingSync("ws") {
		t.Fatal("removing a watched directory did not schedule a sync")
	}
	if w.forgetDir(filepath.Join(root, "notes", "archive")) {
		t.Error("subdirectories of a removed directory should be forgotten")
	}
	m.CancelSync("ws")

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "notes", "archive", "old.md"), Op: fsnotify.Remove})
	if !m.PendingSync("ws") {
		t.Error("removing a note did not schedule a sync")
	}
}
