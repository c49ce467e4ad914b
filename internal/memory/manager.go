package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nextlevelbuilder/noteindex/internal/memory"

// Config configures a Manager. Zero fields take defaults.
type Config struct {
	Chunker   ChunkerConfig
	Schedule  ScheduleConfig
	Embedder  Embedder
	Tokens    TokenEstimator
	FS        FileSystem
	CacheSize int
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Chunker:   DefaultChunkerConfig(),
		Schedule:  DefaultScheduleConfig(),
		Embedder:  NewHashEmbedder(DefaultEmbeddingDims),
		Tokens:    approxTokens{},
		FS:        OSFileSystem{},
		CacheSize: DefaultCacheSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Chunker.TargetChars <= 0 {
		c.Chunker = d.Chunker
	}
	c.Schedule = c.Schedule.withDefaults()
	if c.Embedder == nil {
		c.Embedder = d.Embedder
	}
	if c.Tokens == nil {
		c.Tokens = d.Tokens
	}
	if c.FS == nil {
		c.FS = d.FS
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	return c
}

// Manager is the public surface of the note index: search, recent snippets,
// timeline context, detail lookup, cleanup and lifecycle. Reads serve whatever
// is stored and schedule a background refresh of the workspace.
type Manager struct {
	cfg    Config
	store  Store
	cache  *ChunkCache
	tracer trace.Tracer
	now    func() time.Time

	// commitMu orders commits against generation bumps: passes hold it for
	// reading across their final check and ApplySync, bumps hold it for writing.
	commitMu sync.RWMutex

	mu          sync.Mutex
	closed      bool
	generations map[string]uint64
	pending     map[string]*scheduledSync
	lastRun     map[string]time.Time
	syncLocks   map[string]*sync.Mutex
	watchers    map[string]*Watcher
	running     sync.WaitGroup

	stampMu   sync.Mutex
	lastStamp int64
}

// NewManager creates a Manager over store.
func NewManager(cfg Config, store Store) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:         cfg,
		store:       store,
		cache:       NewChunkCache(store, cfg.CacheSize),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		generations: make(map[string]uint64),
		pending:     make(map[string]*scheduledSync),
		lastRun:     make(map[string]time.Time),
		syncLocks:   make(map[string]*sync.Mutex),
		watchers:    make(map[string]*Watcher),
	}
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Generation returns the current sync generation of workspaceID.
func (m *Manager) Generation(workspaceID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[workspaceID]
}

func (m *Manager) bumpGenerationLocked(workspaceID string) {
	m.generations[workspaceID]++
}

func (m *Manager) workspaceLock(workspaceID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.syncLocks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		m.syncLocks[workspaceID] = l
	}
	return l
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// nextStamp returns a unix-ms timestamp strictly greater than the previous one.
func (m *Manager) nextStamp() int64 {
	m.stampMu.Lock()
	defer m.stampMu.Unlock()
	ts := m.now().UnixMilli()
	if ts <= m.lastStamp {
		ts = m.lastStamp + 1
	}
	m.lastStamp = ts
	return ts
}

// GetRecentSnippets returns the first chunk of each of the limit most recently
// modified files.
func (m *Manager) GetRecentSnippets(ctx context.Context, workspaceID, root string, limit int) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}
	m.ScheduleSync(workspaceID, root, false)

	chunks, err := m.store.RecentFirstChunks(ctx, workspaceID, limit)
	if err != nil {
		slog.Warn("memory recent: store query failed", "workspace", workspaceID, "error", err)
		return []Result{}, nil
	}
	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, toResult(c, 0))
	}
	return results, nil
}

// GetTimelineContext returns up to 2*window+1 chunks of the target's file
// nearest to the target, in line order. Unknown ids yield an empty list.
func (m *Manager) GetTimelineContext(ctx context.Context, id string, window int) ([]Result, error) {
	raw, ok := NormalizeID(id)
	if !ok {
		return []Result{}, nil
	}
	if window < 0 {
		window = 0
	}

	target, err := m.store.GetChunk(ctx, raw)
	if err != nil {
		if !isNotFound(err) {
			slog.Warn("memory timeline: chunk lookup failed", "id", id, "error", err)
		}
		return []Result{}, nil
	}
	chunks, err := m.store.ChunksForPath(ctx, target.WorkspaceID, target.Path)
	if err != nil {
		slog.Warn("memory timeline: path lookup failed", "path", target.Path, "error", err)
		return []Result{toResult(target, 0)}, nil
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		di, dj := absInt(chunks[i].StartLine-target.StartLine), absInt(chunks[j].StartLine-target.StartLine)
		if di != dj {
			return di < dj
		}
		return chunks[i].StartLine < chunks[j].StartLine
	})
	// A window this large keeps every chunk; 2*window+1 would overflow.
	if window < (math.MaxInt-1)/2 {
		if n := 2*window + 1; len(chunks) > n {
			chunks = chunks[:n]
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, toResult(c, 0))
	}
	return results, nil
}

// GetDetails resolves prefixed ids to full records in input order, skipping
// malformed and unknown ids.
func (m *Manager) GetDetails(ctx context.Context, ids []string) ([]Detail, error) {
	details := make([]Detail, 0, len(ids))
	for _, id := range ids {
		raw, ok := NormalizeID(id)
		if !ok {
			continue
		}
		c, err := m.store.GetChunk(ctx, raw)
		if err != nil {
			if !isNotFound(err) {
				slog.Warn("memory details: chunk lookup failed", "id", id, "error", err)
			}
			continue
		}
		details = append(details, Detail{
			ID:        ExternalID(c.ID),
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Text:      c.Text,
			Timestamp: chunkTimestamp(c),
			Tokens:    m.cfg.Tokens.Count(c.Text),
		})
	}
	return details, nil
}

// CleanupMissingFiles removes index entries whose file no longer exists under
// root. Entries whose path escapes root are removed without touching the disk.
func (m *Manager) CleanupMissingFiles(ctx context.Context, workspaceID, root string) (int, error) {
	files, err := m.store.ListFiles(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	var missing []string
	for path := range files {
		abs, ok := resolveInRoot(root, path)
		if !ok {
			slog.Warn("memory cleanup: path escapes workspace root", "workspace", workspaceID, "path", path)
			missing = append(missing, path)
			continue
		}
		if _, err := m.cfg.FS.Stat(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, path)
				continue
			}
			slog.Warn("memory cleanup: stat failed", "path", abs, "error", err)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	sort.Strings(missing)

	if err := m.store.DeleteFiles(ctx, workspaceID, missing); err != nil {
		return 0, fmt.Errorf("delete missing files: %w", err)
	}
	m.cache.Invalidate(workspaceID)
	slog.Info("memory cleanup: removed missing files", "workspace", workspaceID, "count", len(missing))
	return len(missing), nil
}

// ClearWorkspace aborts pending and in-flight passes for workspaceID and
// deletes all of its rows.
func (m *Manager) ClearWorkspace(ctx context.Context, workspaceID string) error {
	m.commitMu.Lock()
	m.mu.Lock()
	m.bumpGenerationLocked(workspaceID)
	m.cancelPendingLocked(workspaceID)
	delete(m.lastRun, workspaceID)
	m.mu.Unlock()
	m.commitMu.Unlock()

	// Wait out an in-flight pass; it aborts at its next generation check.
	lock := m.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.ClearWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("clear workspace %s: %w", workspaceID, err)
	}
	m.cache.Invalidate(workspaceID)
	slog.Info("memory: workspace cleared", "workspace", workspaceID)
	return nil
}

// Shutdown aborts all pending and in-flight work, stops watchers and drops
// in-memory state. A pass already inside its commit finishes first; no pass
// commits afterwards. The store is left untouched and stays open.
func (m *Manager) Shutdown() {
	m.commitMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.commitMu.Unlock()
		return
	}
	m.closed = true
	for ws := range m.generations {
		m.bumpGenerationLocked(ws)
	}
	for ws := range m.pending {
		m.bumpGenerationLocked(ws)
		m.cancelPendingLocked(ws)
	}
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.lastRun = make(map[string]time.Time)
	m.syncLocks = make(map[string]*sync.Mutex)
	m.mu.Unlock()
	m.commitMu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	m.cache.Purge()
}

// Close shuts the manager down, waits for in-flight passes and closes the store.
func (m *Manager) Close() error {
	m.Shutdown()
	m.running.Wait()
	return m.store.Close()
}

func toResult(c Chunk, score float64) Result {
	return Result{
		ID:        ExternalID(c.ID),
		Snippet:   makeSnippet(c.Text),
		Score:     score,
		Timestamp: chunkTimestamp(c),
		Path:      c.Path,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
	}
}

func chunkTimestamp(c Chunk) int64 {
	if c.MTime > 0 {
		return c.MTime
	}
	return c.UpdatedAt
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// approxTokens estimates one token per four bytes when no estimator is configured.
type approxTokens struct{}

func (approxTokens) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
