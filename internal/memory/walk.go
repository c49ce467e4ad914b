package memory

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxNoteFileBytes is the size ceiling above which note files are not indexed.
const MaxNoteFileBytes = 2 << 20

// FileSystem is the read-only view of a workspace tree used by the synchronizer.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem reads from the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)       { return os.ReadFile(name) }

// NoteFile is a discovered note file.
type NoteFile struct {
	Path    string // slash-separated, relative to the workspace root
	AbsPath string
	Size    int64
	MTime   int64 // unix ms
}

// IsIgnoredDir reports whether a directory name is skipped during walks.
func IsIgnoredDir(name string) bool {
	switch name {
	case ".git", ".hg", ".svn", "node_modules", "dist", "build", "target",
		".cache", ".next", ".venv", "__pycache__", ".idea", ".vscode":
		return true
	default:
		return false
	}
}

// IsNoteFile reports whether name has a recognized note extension.
func IsNoteFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx", ".txt":
		return true
	default:
		return false
	}
}

// listNoteFiles walks root and returns its note files sorted by path.
// Unreadable directories and files are skipped. A missing root yields no files.
func listNoteFiles(ctx context.Context, fsys FileSystem, root string) ([]NoteFile, error) {
	var files []NoteFile
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			if rel != "" {
				logWalkSkip(dir, err)
			}
			return nil
		}
		for _, e := range entries {
			name := e.Name()
			abs := filepath.Join(dir, name)
			relPath := name
			if rel != "" {
				relPath = rel + "/" + name
			}

			if e.IsDir() {
				if IsIgnoredDir(name) {
					continue
				}
				if err := walk(abs, relPath); err != nil {
					return err
				}
				continue
			}
			if !IsNoteFile(name) {
				continue
			}
			info, err := fsys.Stat(abs)
			if err != nil {
				logWalkSkip(abs, err)
				continue
			}
			if !info.Mode().IsRegular() || info.Size() > MaxNoteFileBytes {
				continue
			}
			files = append(files, NoteFile{
				Path:    relPath,
				AbsPath: abs,
				Size:    info.Size(),
				MTime:   info.ModTime().UnixMilli(),
			})
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// resolveInRoot joins a stored relative path to root and reports false when the
// result escapes root.
func resolveInRoot(root, rel string) (string, bool) {
	if rel == "" || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	abs := filepath.Join(absRoot, filepath.FromSlash(rel))
	r, err := filepath.Rel(absRoot, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", false
	}
	return abs, true
}
