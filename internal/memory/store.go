// Package memory indexes a workspace's note files (MEMORY.md, notes/*.md, ...)
// and serves hybrid lexical + vector retrieval over them for agent recall.
//
// Chunks are embedded with a deterministic hashed embedder, so indexing never
// needs network access or a model. Files are synchronized incrementally into a
// relational Store; searches read whatever is stored and schedule a refresh in
// the background (stale-while-revalidate).
package memory

import (
	"context"
	"errors"
	"strings"
)

// IDPrefix marks externally visible chunk identifiers.
const IDPrefix = "md:"

var (
	// ErrNotFound is returned when a chunk or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLexicalUnavailable is returned by Store.SearchLexical when the backend
	// has no ranked full-text index. Callers fall back to SearchContains.
	ErrLexicalUnavailable = errors.New("lexical index unavailable")

	// ErrClosed is returned by operations on a Manager after Shutdown.
	ErrClosed = errors.New("memory manager closed")
)

// IndexedFile is the stored metadata of one note file in a workspace.
type IndexedFile struct {
	Path      string `json:"path" db:"path"`
	Hash      string `json:"hash" db:"content_hash"`
	MTime     int64  `json:"mtime" db:"mtime"` // unix ms, truncated
	Size      int64  `json:"size" db:"size"`
	UpdatedAt int64  `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous line range of an indexed file.
type Chunk struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Path        string    `json:"path"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding,omitempty"`
	MTime       int64     `json:"mtime"`
	UpdatedAt   int64     `json:"updated_at"`
}

// FileChunks is a file whose chunks are replaced wholesale during a sync.
type FileChunks struct {
	File   IndexedFile
	Chunks []Chunk
}

// SyncBatch is every store mutation of one synchronization pass.
// Store.ApplySync commits it atomically.
type SyncBatch struct {
	Touched []IndexedFile // metadata-only updates (content hash unchanged)
	Indexed []FileChunks  // new or changed files, prior chunks replaced
	Removed []string      // paths no longer present in the tree
}

// Empty reports whether the batch carries no mutations.
func (b SyncBatch) Empty() bool {
	return len(b.Touched) == 0 && len(b.Indexed) == 0 && len(b.Removed) == 0
}

// Result is a single retrieval hit.
type Result struct {
	ID        string  `json:"id"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
}

// Detail is the full content record of a chunk.
type Detail struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Tokens    int    `json:"tokens"`
}

// Store persists file metadata and chunks keyed by workspace and path.
// Multi-row mutations (ApplySync, DeleteFiles, ClearWorkspace) are atomic.
type Store interface {
	ListFiles(ctx context.Context, workspaceID string) (map[string]IndexedFile, error)
	ApplySync(ctx context.Context, workspaceID string, batch SyncBatch) error

	// ChunkSignature returns a cheap fingerprint of the workspace's chunk rows
	// (row count and newest update stamp) computed by one aggregate query.
	ChunkSignature(ctx context.Context, workspaceID string) (string, error)
	LoadChunks(ctx context.Context, workspaceID string) ([]Chunk, error)

	// SearchLexical runs a ranked full-text query AND-ing tokens, best first.
	SearchLexical(ctx context.Context, workspaceID string, tokens []string, limit int) ([]Chunk, error)
	// SearchContains matches any token as a substring, most recent first.
	SearchContains(ctx context.Context, workspaceID string, tokens []string, limit int) ([]Chunk, error)

	RecentFirstChunks(ctx context.Context, workspaceID string, limit int) ([]Chunk, error)
	GetChunk(ctx context.Context, id string) (Chunk, error)
	ChunksForPath(ctx context.Context, workspaceID, path string) ([]Chunk, error)

	DeleteFiles(ctx context.Context, workspaceID string, paths []string) error
	ClearWorkspace(ctx context.Context, workspaceID string) error
	Close() error
}

// TokenEstimator sizes detail records. Owned by an external module.
type TokenEstimator interface {
	Count(text string) int
}

// ExternalID returns the externally visible form of a chunk id.
func ExternalID(id string) string {
	return IDPrefix + id
}

// NormalizeID strips the "md:" prefix. Identifiers without it are rejected.
func NormalizeID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, IDPrefix) {
		return "", false
	}
	raw := strings.TrimPrefix(id, IDPrefix)
	if raw == "" {
		return "", false
	}
	return raw, true
}
