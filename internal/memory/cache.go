package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of workspaces whose parsed chunks are kept.
const DefaultCacheSize = 64

type cacheEntry struct {
	signature string
	chunks    []Chunk
}

// ChunkCache keeps the decoded chunk set of each workspace and reuses it while
// the store's chunk signature is unchanged.
type ChunkCache struct {
	store   Store
	entries *lru.Cache[string, *cacheEntry]
	group   singleflight.Group
}

// NewChunkCache creates a cache over store holding up to size workspaces.
func NewChunkCache(store Store, size int) *ChunkCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[string, *cacheEntry](size) // only fails for size <= 0
	return &ChunkCache{store: store, entries: entries}
}

// Get returns the parsed chunks of workspaceID, reloading them when the
// signature differs from the cached one. Callers must not mutate the result.
func (c *ChunkCache) Get(ctx context.Context, workspaceID string) ([]Chunk, error) {
	sig, err := c.store.ChunkSignature(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if e, ok := c.entries.Get(workspaceID); ok && e.signature == sig {
		return e.chunks, nil
	}

	v, err, _ := c.group.Do(workspaceID+"\x00"+sig, func() (any, error) {
		if e, ok := c.entries.Get(workspaceID); ok && e.signature == sig {
			return e.chunks, nil
		}
		chunks, err := c.store.LoadChunks(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}
		c.entries.Add(workspaceID, &cacheEntry{signature: sig, chunks: chunks})
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Chunk), nil
}

// Invalidate drops the entry for workspaceID. Call only after the mutating
// transaction has committed.
func (c *ChunkCache) Invalidate(workspaceID string) {
	c.entries.Remove(workspaceID)
}

// Purge drops every entry.
func (c *ChunkCache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached workspaces.
func (c *ChunkCache) Len() int {
	return c.entries.Len()
}
