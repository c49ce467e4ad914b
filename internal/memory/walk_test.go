package memory

import (
	"context"
	"testing"
)

func TestListNoteFiles(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "MEMORY.md", "x")
	writeNote(t, root, "notes/a.markdown", "x")
	writeNote(t, root, "notes/deep/b.TXT", "x")
	writeNote(t, root, "notes/c.mdx", "x")
	writeNote(t, root, "notes/image.png", "x")
	writeNote(t, root, "build/out.md", "x")
	writeNote(t, root, ".venv/lib.md", "x")
	writeNote(t, root, "__pycache__/x.md", "x")

	files, err := listNoteFiles(context.Background(), OSFileSystem{}, root)
	if err != nil {
		t.Fatalf("listNoteFiles: %v", err)
	}
	want := []string{"MEMORY.md", "notes/a.markdown", "notes/c.mdx", "notes/deep/b.TXT"}
	if len(files) != len(want) {
		t.Fatalf("got %d files: %+v", len(files), files)
	}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, f.Path, want[i])
		}
		if f.Size != 1 || f.MTime <= 0 {
			t.Errorf("bad metadata %+v", f)
		}
	}
}

func TestListNoteFiles_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := listNoteFiles(ctx, OSFileSystem{}, root); err == nil {
		t.Error("expected context error")
	}
}

func TestIsIgnoredDir(t *testing.T) {
	for _, name := range []string{".git", "node_modules", "target", ".idea"} {
		if !IsIgnoredDir(name) {
			t.Errorf("%q should be ignored", name)
		}
	}
	for _, name := range []string{"notes", ".github", "docs"} {
		if IsIgnoredDir(name) {
			t.Errorf("%q should not be ignored", name)
		}
	}
}
