package memory

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testManager returns a Manager over a fresh SQLite store whose scheduled
// passes never fire on their own.
func testManager(t *testing.T, fsys FileSystem, opts ...SQLiteOption) (*Manager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "workspace")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	store := newTestSQLiteStore(t, opts...)
	cfg := DefaultConfig()
	cfg.Schedule = ScheduleConfig{Cooldown: time.Hour, QuickDelay: time.Hour, ForcedDelay: time.Hour}
	if fsys != nil {
		cfg.FS = fsys
	}
	m := NewManager(cfg, store)
	t.Cleanup(func() { m.Shutdown() })
	return m, root
}

func writeNote(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// hookFS wraps the OS file system and runs onRead before every ReadFile.
type hookFS struct {
	OSFileSystem
	onRead func(name string) error
}

func (h hookFS) ReadFile(name string) ([]byte, error) {
	if h.onRead != nil {
		if err := h.onRead(name); err != nil {
			return nil, err
		}
	}
	return os.ReadFile(name)
}

var _ FileSystem = hookFS{}

func errPermission(name string) error {
	return &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}
