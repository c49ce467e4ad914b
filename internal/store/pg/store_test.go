package pg

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"snake_case", `snake\_case`},
		{`a\b`, `a\\b`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlainQuery(t *testing.T) {
	if got := plainQuery([]string{"deploy", " ", " checklist "}); got != "deploy checklist" {
		t.Errorf("plainQuery = %q", got)
	}
	if got := plainQuery(nil); got != "" {
		t.Errorf("plainQuery(nil) = %q", got)
	}
}

func TestChunkRowRoundTrip(t *testing.T) {
	c := memory.Chunk{ID: "x", WorkspaceID: "ws", Path: "a.md", StartLine: 1, EndLine: 3,
		Text: "hello", Embedding: []float32{0.5, -0.5}, MTime: 10, UpdatedAt: 11}
	rows := fromChunks([]memory.Chunk{c})
	got := rows[0].toChunk()
	if got.ID != c.ID || got.Path != c.Path || got.EndLine != c.EndLine || len(got.Embedding) != 2 {
		t.Errorf("round trip = %+v", got)
	}
}

// newTestStore connects to NOTEINDEX_TEST_PG_DSN. Each test uses a fresh
// workspace id so runs do not interfere.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := os.Getenv("NOTEINDEX_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("NOTEINDEX_TEST_PG_DSN not set")
	}
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ws := "test-" + uuid.NewString()
	t.Cleanup(func() {
		s.ClearWorkspace(context.Background(), ws)
		s.Close()
	})
	return s, ws
}

func pgChunk(ws, path string, start int, text string, mtime int64) memory.Chunk {
	return memory.Chunk{
		ID:          uuid.NewString(),
		WorkspaceID: ws,
		Path:        path,
		StartLine:   start,
		EndLine:     start + 1,
		Text:        text,
		Embedding:   memory.NewHashEmbedder(memory.DefaultEmbeddingDims).Embed(text),
		MTime:       mtime,
		UpdatedAt:   mtime,
	}
}

func TestStoreApplyAndSearch(t *testing.T) {
	s, ws := newTestStore(t)
	ctx := context.Background()

	batch := memory.SyncBatch{Indexed: []memory.FileChunks{
		{
			File:   memory.IndexedFile{Path: "a.md", Hash: "h1", MTime: 100, Size: 10, UpdatedAt: 1},
			Chunks: []memory.Chunk{pgChunk(ws, "a.md", 1, "deploy checklist for staging", 100)},
		},
		{
			File:   memory.IndexedFile{Path: "b.md", Hash: "h2", MTime: 200, Size: 10, UpdatedAt: 2},
			Chunks: []memory.Chunk{pgChunk(ws, "b.md", 1, "grocery list 100% organic", 200)},
		},
	}}
	if err := s.ApplySync(ctx, ws, batch); err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	files, err := s.ListFiles(ctx, ws)
	if err != nil || len(files) != 2 || files["a.md"].Hash != "h1" {
		t.Fatalf("ListFiles = %v, %v", files, err)
	}

	hits, err := s.SearchLexical(ctx, ws, []string{"deploy", "staging"}, 10)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "a.md" {
		t.Errorf("SearchLexical = %+v", hits)
	}

	hits, err = s.SearchContains(ctx, ws, []string{"100%"}, 10)
	if err != nil {
		t.Fatalf("SearchContains: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "b.md" {
		t.Errorf("SearchContains = %+v", hits)
	}

	recent, err := s.RecentFirstChunks(ctx, ws, 10)
	if err != nil {
		t.Fatalf("RecentFirstChunks: %v", err)
	}
	if len(recent) != 2 || recent[0].Path != "b.md" {
		t.Errorf("RecentFirstChunks = %+v", recent)
	}

	sig, err := s.ChunkSignature(ctx, ws)
	if err != nil || sig != "2:200" {
		t.Errorf("ChunkSignature = %q, %v", sig, err)
	}
}

func TestStoreRemoveAndGet(t *testing.T) {
	s, ws := newTestStore(t)
	ctx := context.Background()

	c := pgChunk(ws, "a.md", 1, "alpha", 100)
	err := s.ApplySync(ctx, ws, memory.SyncBatch{Indexed: []memory.FileChunks{
		{File: memory.IndexedFile{Path: "a.md", Hash: "h", MTime: 100}, Chunks: []memory.Chunk{c}},
	}})
	if err != nil {
		t.Fatalf("ApplySync: %v", err)
	}

	got, err := s.GetChunk(ctx, c.ID)
	if err != nil || got.Text != "alpha" {
		t.Fatalf("GetChunk = %+v, %v", got, err)
	}

	if err := s.ApplySync(ctx, ws, memory.SyncBatch{Removed: []string{"a.md"}}); err != nil {
		t.Fatalf("ApplySync remove: %v", err)
	}
	if _, err := s.GetChunk(ctx, c.ID); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("GetChunk after remove: %v, want ErrNotFound", err)
	}
	chunks, err := s.ChunksForPath(ctx, ws, "a.md")
	if err != nil || len(chunks) != 0 {
		t.Errorf("ChunksForPath = %v, %v", chunks, err)
	}
}
