package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SyncStats summarizes one synchronization pass.
type SyncStats struct {
	Scanned   int  `json:"scanned"`
	Unchanged int  `json:"unchanged"`
	Touched   int  `json:"touched"`   // metadata-only updates
	Reindexed int  `json:"reindexed"` // new or changed files
	Removed   int  `json:"removed"`
	Skipped   int  `json:"skipped"` // unreadable files
	Chunks    int  `json:"chunks"`  // chunks written
	Aborted   bool `json:"aborted"`
}

// Changed reports whether the pass wrote anything.
func (s SyncStats) Changed() bool {
	return s.Touched+s.Reindexed+s.Removed > 0
}

// SyncOption configures SyncWorkspace.
type SyncOption func(*syncOptions)

type syncOptions struct {
	generation    uint64
	hasGeneration bool
	force         bool
}

// WithGeneration pins the pass to a generation captured earlier; the pass
// aborts once the workspace generation moves past it.
func WithGeneration(gen uint64) SyncOption {
	return func(o *syncOptions) {
		o.generation = gen
		o.hasGeneration = true
	}
}

// WithForce re-reads and re-hashes files even when mtime and size are unchanged.
func WithForce() SyncOption {
	return func(o *syncOptions) { o.force = true }
}

// SyncWorkspace walks root, diffs it against the stored metadata and commits
// every change of the pass in one transaction. Passes for one workspace run
// one at a time. A stale generation aborts the pass without writing.
func (m *Manager) SyncWorkspace(ctx context.Context, workspaceID, root string, opts ...SyncOption) (SyncStats, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}
	if m.isClosed() {
		return SyncStats{}, ErrClosed
	}
	if !o.hasGeneration {
		o.generation = m.Generation(workspaceID)
	}

	lock := m.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	runID := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "memory.sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("memory.workspace", workspaceID),
		attribute.String("memory.run_id", runID),
		attribute.Bool("memory.force", o.force),
	)

	stale := func() bool { return m.Generation(workspaceID) != o.generation }
	aborted := func(stats SyncStats, stage string) (SyncStats, error) {
		slog.Debug("memory sync: generation changed, aborting", "workspace", workspaceID, "run", runID, "stage", stage)
		span.SetAttributes(attribute.Bool("memory.aborted", true))
		return SyncStats{Aborted: true, Scanned: stats.Scanned}, nil
	}

	var stats SyncStats
	if stale() {
		return aborted(stats, "start")
	}
	m.markRun(workspaceID)

	files, err := listNoteFiles(ctx, m.cfg.FS, root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("walk %s: %w", root, err)
	}
	if stale() {
		return aborted(stats, "walk")
	}

	existing, err := m.store.ListFiles(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("load file metadata: %w", err)
	}

	var batch SyncBatch
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if stale() {
			return aborted(stats, "file")
		}
		stats.Scanned++
		seen[f.Path] = struct{}{}

		prev, indexed := existing[f.Path]
		if indexed && !o.force && prev.MTime == f.MTime && prev.Size == f.Size {
			stats.Unchanged++
			continue
		}

		data, err := m.cfg.FS.ReadFile(f.AbsPath)
		if err != nil {
			slog.Warn("memory sync: skipping unreadable file", "path", f.AbsPath, "error", err)
			stats.Skipped++
			continue
		}
		hash := contentHash(data)

		if indexed && prev.Hash == hash {
			if prev.MTime == f.MTime && prev.Size == f.Size {
				stats.Unchanged++
				continue
			}
			batch.Touched = append(batch.Touched, IndexedFile{
				Path:      f.Path,
				Hash:      hash,
				MTime:     f.MTime,
				Size:      f.Size,
				UpdatedAt: m.nextStamp(),
			})
			stats.Touched++
			continue
		}

		meta := IndexedFile{
			Path:      f.Path,
			Hash:      hash,
			MTime:     f.MTime,
			Size:      f.Size,
			UpdatedAt: m.nextStamp(),
		}
		chunks := m.buildChunks(workspaceID, meta, string(data))
		batch.Indexed = append(batch.Indexed, FileChunks{File: meta, Chunks: chunks})
		stats.Reindexed++
		stats.Chunks += len(chunks)
	}

	for path := range existing {
		if _, ok := seen[path]; !ok {
			batch.Removed = append(batch.Removed, path)
		}
	}
	sort.Strings(batch.Removed)
	stats.Removed = len(batch.Removed)

	if batch.Empty() {
		if stale() {
			return aborted(stats, "commit")
		}
		return stats, nil
	}

	// The last check and the commit are one step with respect to CancelSync,
	// ClearWorkspace and Shutdown.
	m.commitMu.RLock()
	if stale() || m.isClosed() {
		m.commitMu.RUnlock()
		return aborted(stats, "commit")
	}
	err = m.store.ApplySync(ctx, workspaceID, batch)
	m.commitMu.RUnlock()
	if err != nil {
		slog.Error("memory sync: transaction failed, rolled back", "workspace", workspaceID, "run", runID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SyncStats{Scanned: stats.Scanned, Skipped: stats.Skipped}, fmt.Errorf("apply sync: %w", err)
	}
	m.cache.Invalidate(workspaceID)

	span.SetAttributes(
		attribute.Int("memory.reindexed", stats.Reindexed),
		attribute.Int("memory.removed", stats.Removed),
		attribute.Int("memory.chunks", stats.Chunks),
	)
	slog.Info("memory sync: committed",
		"workspace", workspaceID, "run", runID,
		"scanned", stats.Scanned, "touched", stats.Touched,
		"reindexed", stats.Reindexed, "removed", stats.Removed, "chunks", stats.Chunks)
	return stats, nil
}

func (m *Manager) markRun(workspaceID string) {
	m.mu.Lock()
	m.lastRun[workspaceID] = m.now()
	m.mu.Unlock()
}

// buildChunks splits, redacts and embeds a file's text.
func (m *Manager) buildChunks(workspaceID string, file IndexedFile, text string) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")

	pieces := ChunkText(text, m.cfg.Chunker)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		redacted := Redact(p.Text)
		chunks = append(chunks, Chunk{
			ID:          ChunkID(workspaceID, file.Path, p.StartLine, p.EndLine, file.Hash),
			WorkspaceID: workspaceID,
			Path:        file.Path,
			StartLine:   p.StartLine,
			EndLine:     p.EndLine,
			Text:        redacted,
			Embedding:   m.cfg.Embedder.Embed(redacted),
			MTime:       file.MTime,
			UpdatedAt:   file.UpdatedAt,
		})
	}
	return chunks
}

// ChunkID derives the stable identifier of a chunk from its workspace, path,
// line range and the owning file's content hash.
func ChunkID(workspaceID, path string, startLine, endLine int, fileHash string) string {
	h := sha256.New()
	h.Write([]byte(workspaceID))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(endLine)))
	h.Write([]byte{0})
	h.Write([]byte(fileHash))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func logWalkSkip(path string, err error) {
	slog.Warn("memory sync: skipping unreadable path", "path", path, "error", err)
}
