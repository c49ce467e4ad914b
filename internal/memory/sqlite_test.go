package memory

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLiteStore(t *testing.T, opts ...SQLiteOption) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testChunk(ws, path string, start, end int, text string, updated int64) Chunk {
	e := NewHashEmbedder(0)
	return Chunk{
		ID:          ChunkID(ws, path, start, end, "h-"+path),
		WorkspaceID: ws,
		Path:        path,
		StartLine:   start,
		EndLine:     end,
		Text:        text,
		Embedding:   e.Embed(text),
		MTime:       updated,
		UpdatedAt:   updated,
	}
}

func indexBatch(file IndexedFile, chunks ...Chunk) SyncBatch {
	return SyncBatch{Indexed: []FileChunks{{File: file, Chunks: chunks}}}
}

func TestSQLiteStore_ApplySyncAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	sig0, err := store.ChunkSignature(ctx, "ws")
	if err != nil {
		t.Fatalf("ChunkSignature: %v", err)
	}
	if sig0 != "0:0" {
		t.Errorf("empty signature = %q, want 0:0", sig0)
	}

	file := IndexedFile{Path: "MEMORY.md", Hash: "h1", MTime: 100, Size: 20, UpdatedAt: 10}
	c1 := testChunk("ws", "MEMORY.md", 1, 3, "The project uses Go for backend development", 10)
	c2 := testChunk("ws", "MEMORY.md", 4, 6, "Authentication is handled via JWT tokens", 10)
	if err := store.ApplySync(ctx, "ws", indexBatch(file, c1, c2)); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	files, err := store.ListFiles(ctx, "ws")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if !reflect.DeepEqual(files["MEMORY.md"], file) {
		t.Errorf("file = %+v, want %+v", files["MEMORY.md"], file)
	}

	chunks, err := store.LoadChunks(ctx, "ws")
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("LoadChunks returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].ID != c1.ID || len(chunks[0].Embedding) != DefaultEmbeddingDims {
		t.Errorf("unexpected first chunk %+v", chunks[0])
	}

	sig1, _ := store.ChunkSignature(ctx, "ws")
	if sig1 != "2:10" {
		t.Errorf("signature = %q, want 2:10", sig1)
	}

	// Re-indexing a path replaces its chunks.
	file.Hash, file.UpdatedAt = "h2", 20
	c3 := testChunk("ws", "MEMORY.md", 1, 2, "Rewritten content", 20)
	if err := store.ApplySync(ctx, "ws", indexBatch(file, c3)); err != nil {
		t.Fatalf("ApplySync reindex: %v", err)
	}
	chunks, _ = store.ChunksForPath(ctx, "ws", "MEMORY.md")
	if len(chunks) != 1 || chunks[0].ID != c3.ID {
		t.Fatalf("after reindex got %+v", chunks)
	}

	// Other workspaces are not visible.
	other, _ := store.LoadChunks(ctx, "other")
	if len(other) != 0 {
		t.Errorf("other workspace has %d chunks", len(other))
	}
}

func TestSQLiteStore_TouchAndRemove(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	a := IndexedFile{Path: "a.md", Hash: "ha", MTime: 1, Size: 5, UpdatedAt: 1}
	b := IndexedFile{Path: "b.md", Hash: "hb", MTime: 1, Size: 5, UpdatedAt: 1}
	batch := SyncBatch{Indexed: []FileChunks{
		{File: a, Chunks: []Chunk{testChunk("ws", "a.md", 1, 1, "alpha note", 1)}},
		{File: b, Chunks: []Chunk{testChunk("ws", "b.md", 1, 1, "beta note", 1)}},
	}}
	if err := store.ApplySync(ctx, "ws", batch); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	a.MTime, a.UpdatedAt = 2, 2
	if err := store.ApplySync(ctx, "ws", SyncBatch{Touched: []IndexedFile{a}, Removed: []string{"b.md"}}); err != nil {
		t.Fatalf("ApplySync touch/remove: %v", err)
	}

	files, _ := store.ListFiles(ctx, "ws")
	if len(files) != 1 || files["a.md"].MTime != 2 {
		t.Errorf("files = %+v", files)
	}
	chunks, _ := store.LoadChunks(ctx, "ws")
	if len(chunks) != 1 || chunks[0].Path != "a.md" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestSQLiteStore_SearchLexical(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	if !store.FTSAvailable() {
		t.Skip("FTS5 not available in this build")
	}

	batch := SyncBatch{Indexed: []FileChunks{
		{File: IndexedFile{Path: "MEMORY.md", Hash: "h1"}, Chunks: []Chunk{
			testChunk("ws", "MEMORY.md", 1, 3, "The project uses Go for backend development with SQLite as the database", 1),
			testChunk("ws", "MEMORY.md", 4, 6, "Authentication is handled via JWT tokens and API keys", 1),
		}},
		{File: IndexedFile{Path: "notes.md", Hash: "h2"}, Chunks: []Chunk{
			testChunk("ws", "notes.md", 1, 2, "Go is a compiled programming language designed at Google", 1),
		}},
	}}
	if err := store.ApplySync(ctx, "ws", batch); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}
	// Same text in another workspace must not leak.
	if err := store.ApplySync(ctx, "ws2", indexBatch(IndexedFile{Path: "x.md", Hash: "h3"},
		testChunk("ws2", "x.md", 1, 1, "Authentication with JWT", 1))); err != nil {
		t.Fatalf("ApplySync ws2: %v", err)
	}

	results, err := store.SearchLexical(ctx, "ws", []string{"authentication", "jwt"}, 10)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(results) != 1 || results[0].Path != "MEMORY.md" || results[0].StartLine != 4 {
		t.Fatalf("SearchLexical = %+v", results)
	}

	results, err = store.SearchLexical(ctx, "ws", []string{"go"}, 10)
	if err != nil {
		t.Fatalf("SearchLexical go: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results for 'go', got %d", len(results))
	}

	results, _ = store.SearchLexical(ctx, "ws", []string{`quote"d`}, 10)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSQLiteStore_WithoutFTS(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, WithoutFTS())
	if store.FTSAvailable() {
		t.Fatal("FTS should be disabled")
	}

	if err := store.ApplySync(ctx, "ws", indexBatch(IndexedFile{Path: "a.md", Hash: "h"},
		testChunk("ws", "a.md", 1, 1, "Deploy window is 100% on Friday", 1))); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	if _, err := store.SearchLexical(ctx, "ws", []string{"deploy"}, 5); !errors.Is(err, ErrLexicalUnavailable) {
		t.Errorf("SearchLexical err = %v, want ErrLexicalUnavailable", err)
	}

	results, err := store.SearchContains(ctx, "ws", []string{"DEPLOY", "nothing"}, 5)
	if err != nil {
		t.Fatalf("SearchContains: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("SearchContains = %d results, want 1", len(results))
	}

	// LIKE wildcards in tokens are literal.
	results, _ = store.SearchContains(ctx, "ws", []string{"_%"}, 5)
	if len(results) != 0 {
		t.Errorf("wildcard token matched %d rows", len(results))
	}
}

func TestSQLiteStore_SearchContainsRecencyOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	batch := SyncBatch{Indexed: []FileChunks{
		{File: IndexedFile{Path: "old.md", Hash: "h1", MTime: 100}, Chunks: []Chunk{testChunk("ws", "old.md", 1, 1, "budget review", 100)}},
		{File: IndexedFile{Path: "new.md", Hash: "h2", MTime: 200}, Chunks: []Chunk{testChunk("ws", "new.md", 1, 1, "budget draft", 200)}},
	}}
	if err := store.ApplySync(ctx, "ws", batch); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	results, err := store.SearchContains(ctx, "ws", []string{"budget"}, 5)
	if err != nil {
		t.Fatalf("SearchContains: %v", err)
	}
	if len(results) != 2 || results[0].Path != "new.md" {
		t.Errorf("SearchContains order = %+v", results)
	}
}

func TestSQLiteStore_RecentFirstChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	batch := SyncBatch{Indexed: []FileChunks{
		{File: IndexedFile{Path: "a.md", Hash: "h1", MTime: 300}, Chunks: []Chunk{
			testChunk("ws", "a.md", 5, 9, "a second", 300),
			testChunk("ws", "a.md", 1, 4, "a first", 300),
		}},
		{File: IndexedFile{Path: "b.md", Hash: "h2", MTime: 100}, Chunks: []Chunk{testChunk("ws", "b.md", 1, 2, "b first", 100)}},
		{File: IndexedFile{Path: "c.md", Hash: "h3", MTime: 200}, Chunks: []Chunk{testChunk("ws", "c.md", 1, 2, "c first", 200)}},
	}}
	if err := store.ApplySync(ctx, "ws", batch); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	got, err := store.RecentFirstChunks(ctx, "ws", 2)
	if err != nil {
		t.Fatalf("RecentFirstChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].Text != "a first" || got[1].Text != "c first" {
		t.Errorf("RecentFirstChunks = %q, %q", got[0].Text, got[1].Text)
	}
}

func TestSQLiteStore_GetChunkAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	c := testChunk("ws", "a.md", 1, 1, "hello", 1)
	if err := store.ApplySync(ctx, "ws", indexBatch(IndexedFile{Path: "a.md", Hash: "h"}, c)); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	got, err := store.GetChunk(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if got.Text != "hello" || got.WorkspaceID != "ws" {
		t.Errorf("GetChunk = %+v", got)
	}
	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChunk(missing) err = %v, want ErrNotFound", err)
	}

	if err := store.DeleteFiles(ctx, "ws", []string{"a.md"}); err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}
	files, _ := store.ListFiles(ctx, "ws")
	chunks, _ := store.LoadChunks(ctx, "ws")
	if len(files) != 0 || len(chunks) != 0 {
		t.Errorf("after delete: %d files, %d chunks", len(files), len(chunks))
	}
	if store.FTSAvailable() {
		if res, _ := store.SearchLexical(ctx, "ws", []string{"hello"}, 5); len(res) != 0 {
			t.Errorf("fts rows survived delete: %d", len(res))
		}
	}
}

func TestSQLiteStore_ClearWorkspace(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, ws := range []string{"ws1", "ws2"} {
		if err := store.ApplySync(ctx, ws, indexBatch(IndexedFile{Path: "a.md", Hash: "h"},
			testChunk(ws, "a.md", 1, 1, "shared text", 1))); err != nil {
			t.Fatalf("ApplySync %s: %v", ws, err)
		}
	}

	if err := store.ClearWorkspace(ctx, "ws1"); err != nil {
		t.Fatalf("ClearWorkspace: %v", err)
	}
	if chunks, _ := store.LoadChunks(ctx, "ws1"); len(chunks) != 0 {
		t.Errorf("ws1 still has %d chunks", len(chunks))
	}
	if chunks, _ := store.LoadChunks(ctx, "ws2"); len(chunks) != 1 {
		t.Errorf("ws2 has %d chunks, want 1", len(chunks))
	}
}

func TestSQLiteStore_CorruptEmbedding(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	c := testChunk("ws", "a.md", 1, 1, "hello", 1)
	if err := store.ApplySync(ctx, "ws", indexBatch(IndexedFile{Path: "a.md", Hash: "h"}, c)); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}
	if _, err := store.db.Exec(`UPDATE chunks SET embedding = '{not json' WHERE id = ?`, c.ID); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	chunks, err := store.LoadChunks(ctx, "ws")
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Embedding != nil {
		t.Errorf("corrupt embedding should decode to nil, got %+v", chunks)
	}
}

func TestSQLiteStore_FTSReconciledOnReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	plain, err := NewSQLiteStore(dbPath, WithoutFTS())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := plain.ApplySync(ctx, "ws", indexBatch(IndexedFile{Path: "a.md", Hash: "h"},
		testChunk("ws", "a.md", 1, 1, "orchid inventory", 1))); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}
	plain.Close()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if !store.FTSAvailable() {
		t.Skip("FTS5 not available in this build")
	}
	res, err := store.SearchLexical(ctx, "ws", []string{"orchid"}, 5)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(res) != 1 {
		t.Errorf("reconciled index returned %d rows, want 1", len(res))
	}
}

func TestDecodeEmbedding(t *testing.T) {
	if v := DecodeEmbedding("[0.5,-0.25]"); !reflect.DeepEqual(v, []float32{0.5, -0.25}) {
		t.Errorf("DecodeEmbedding = %v", v)
	}
	for _, s := range []string{"", "[]", "garbage", `{"a":1}`} {
		if v := DecodeEmbedding(s); v != nil {
			t.Errorf("DecodeEmbedding(%q) = %v, want nil", s, v)
		}
	}
}

func TestSQLiteStore_ApplySyncRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	a := IndexedFile{Path: "a.md", Hash: "ha", MTime: 100, Size: 10, UpdatedAt: 1}
	b := IndexedFile{Path: "b.md", Hash: "hb", MTime: 100, Size: 10, UpdatedAt: 1}
	if err := store.ApplySync(ctx, "ws", SyncBatch{Indexed: []FileChunks{
		{File: a, Chunks: []Chunk{testChunk("ws", "a.md", 1, 2, "alpha notes", 1)}},
		{File: b, Chunks: []Chunk{testChunk("ws", "b.md", 1, 2, "beta notes", 1)}},
	}}); err != nil {
		t.Fatalf("seed ApplySync: %v", err)
	}
	filesBefore, _ := store.ListFiles(ctx, "ws")
	chunksBefore, _ := store.LoadChunks(ctx, "ws")

	// The second insert of the same chunk id fails after earlier statements ran.
	dup := testChunk("ws", "b.md", 1, 3, "beta rewritten", 2)
	b2 := IndexedFile{Path: "b.md", Hash: "hb2", MTime: 200, Size: 12, UpdatedAt: 2}
	err := store.ApplySync(ctx, "ws", SyncBatch{
		Touched: []IndexedFile{{Path: "a.md", Hash: "ha", MTime: 150, Size: 10, UpdatedAt: 2}},
		Indexed: []FileChunks{{File: b2, Chunks: []Chunk{dup, dup}}},
		Removed: []string{"a.md"},
	})
	if err == nil {
		t.Fatal("expected duplicate chunk id to fail the transaction")
	}

	filesAfter, _ := store.ListFiles(ctx, "ws")
	chunksAfter, _ := store.LoadChunks(ctx, "ws")
	if !reflect.DeepEqual(filesBefore, filesAfter) {
		t.Errorf("files changed after rollback:\nbefore %v\nafter  %v", filesBefore, filesAfter)
	}
	if !reflect.DeepEqual(chunksBefore, chunksAfter) {
		t.Error("chunks changed after rollback")
	}
}
