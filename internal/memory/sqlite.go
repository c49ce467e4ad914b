package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SQLiteStore implements Store on SQLite with an optional FTS5 index.
// When FTS5 cannot be created (or is disabled), SearchLexical reports
// ErrLexicalUnavailable and callers fall back to LIKE scans.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex

	ftsAvailable bool
}

// SQLiteOption configures NewSQLiteStore.
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	disableFTS bool
}

// WithoutFTS opens the store without the full-text index.
func WithoutFTS() SQLiteOption {
	return func(o *sqliteOptions) { o.disableFTS = true }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	var o sqliteOptions
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open(SQLiteDriverName, sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; every multi-statement mutation runs in one tx.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(o.disableFTS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("memory store opened", "path", dbPath, "driver", SQLiteBuildMode, "fts", s.ftsAvailable)
	return s, nil
}

func (s *SQLiteStore) migrate(disableFTS bool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			workspace_id TEXT NOT NULL,
			path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			mtime INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (workspace_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_ws_mtime ON files(workspace_id, mtime)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL DEFAULT '[]',
			mtime INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_ws_path ON chunks(workspace_id, path, start_line)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_ws_updated ON chunks(workspace_id, updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}

	if disableFTS {
		return nil
	}

	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		chunk_id UNINDEXED,
		workspace_id UNINDEXED,
		path UNINDEXED,
		start_line UNINDEXED,
		end_line UNINDEXED,
		tokenize='porter unicode61'
	)`)
	if err != nil {
		slog.Warn("memory store: FTS5 not available, using LIKE search", "error", err)
		return nil
	}
	s.ftsAvailable = true

	// Rows written while FTS was disabled are missing from the index.
	if _, err := s.db.Exec(`DELETE FROM chunks_fts WHERE chunk_id NOT IN (SELECT id FROM chunks)`); err != nil {
		return fmt.Errorf("reconcile fts: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO chunks_fts (text, chunk_id, workspace_id, path, start_line, end_line)
		SELECT text, id, workspace_id, path, start_line, end_line FROM chunks
		WHERE id NOT IN (SELECT chunk_id FROM chunks_fts)`); err != nil {
		return fmt.Errorf("reconcile fts: %w", err)
	}
	return nil
}

// FTSAvailable reports whether the ranked full-text index is in use.
func (s *SQLiteStore) FTSAvailable() bool {
	return s.ftsAvailable
}

func (s *SQLiteStore) ListFiles(ctx context.Context, workspaceID string) (map[string]IndexedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_hash, mtime, size, updated_at FROM files WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]IndexedFile)
	for rows.Next() {
		var f IndexedFile
		if err := rows.Scan(&f.Path, &f.Hash, &f.MTime, &f.Size, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files[f.Path] = f
	}
	return files, rows.Err()
}

// ApplySync commits a synchronization pass in a single transaction.
func (s *SQLiteStore) ApplySync(ctx context.Context, workspaceID string, batch SyncBatch) error {
	if batch.Empty() {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, f := range batch.Touched {
			if err := s.upsertFile(ctx, tx, workspaceID, f); err != nil {
				return err
			}
		}
		for _, fc := range batch.Indexed {
			if err := s.deletePathRows(ctx, tx, workspaceID, fc.File.Path, false); err != nil {
				return err
			}
			if err := s.upsertFile(ctx, tx, workspaceID, fc.File); err != nil {
				return err
			}
			if err := s.insertChunks(ctx, tx, fc.Chunks); err != nil {
				return err
			}
		}
		for _, path := range batch.Removed {
			if err := s.deletePathRows(ctx, tx, workspaceID, path, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) upsertFile(ctx context.Context, tx *sql.Tx, workspaceID string, f IndexedFile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO files (workspace_id, path, content_hash, mtime, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			mtime = excluded.mtime,
			size = excluded.size,
			updated_at = excluded.updated_at`,
		workspaceID, f.Path, f.Hash, f.MTime, f.Size, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

func (s *SQLiteStore) insertChunks(ctx context.Context, tx *sql.Tx, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(id, workspace_id, path, start_line, end_line, text, embedding, mtime, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	var ftsStmt *sql.Stmt
	if s.ftsAvailable {
		ftsStmt, err = tx.PrepareContext(ctx, `INSERT INTO chunks_fts
			(text, chunk_id, workspace_id, path, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare fts insert: %w", err)
		}
		defer ftsStmt.Close()
	}

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.WorkspaceID, c.Path, c.StartLine, c.EndLine,
			c.Text, EncodeEmbedding(c.Embedding), c.MTime, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert chunk %s:%d-%d: %w", c.Path, c.StartLine, c.EndLine, err)
		}
		if ftsStmt != nil {
			if _, err := ftsStmt.ExecContext(ctx, c.Text, c.ID, c.WorkspaceID, c.Path, c.StartLine, c.EndLine); err != nil {
				return fmt.Errorf("insert fts %s: %w", c.Path, err)
			}
		}
	}
	return nil
}

// deletePathRows removes the chunks (and FTS rows) of one path, and the file
// row itself when withFile is set.
func (s *SQLiteStore) deletePathRows(ctx context.Context, tx *sql.Tx, workspaceID, path string, withFile bool) error {
	if s.ftsAvailable {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks_fts WHERE workspace_id = ? AND path = ?`, workspaceID, path); err != nil {
			return fmt.Errorf("delete fts %s: %w", path, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE workspace_id = ? AND path = ?`, workspaceID, path); err != nil {
		return fmt.Errorf("delete chunks %s: %w", path, err)
	}
	if withFile {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE workspace_id = ? AND path = ?`, workspaceID, path); err != nil {
			return fmt.Errorf("delete file %s: %w", path, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ChunkSignature(ctx context.Context, workspaceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count, newest int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(updated_at), 0) FROM chunks WHERE workspace_id = ?`,
		workspaceID).Scan(&count, &newest)
	if err != nil {
		return "", fmt.Errorf("chunk signature: %w", err)
	}
	return formatSignature(count, newest), nil
}

const chunkColumns = `id, workspace_id, path, start_line, end_line, text, embedding, mtime, updated_at`

func (s *SQLiteStore) LoadChunks(ctx context.Context, workspaceID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = ? ORDER BY path, start_line`, workspaceID)
}

func (s *SQLiteStore) SearchLexical(ctx context.Context, workspaceID string, tokens []string, limit int) ([]Chunk, error) {
	if !s.ftsAvailable {
		return nil, ErrLexicalUnavailable
	}
	match := ftsMatchExpr(tokens)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryChunks(ctx, `SELECT c.id, c.workspace_id, c.path, c.start_line, c.end_line, c.text,
			c.embedding, c.mtime, c.updated_at
		FROM (
			SELECT chunk_id, rank AS r FROM chunks_fts
			WHERE chunks_fts MATCH ? AND workspace_id = ?
			ORDER BY rank LIMIT ?
		) m
		JOIN chunks c ON c.id = m.chunk_id
		ORDER BY m.r`, match, workspaceID, limit)
}

func (s *SQLiteStore) SearchContains(ctx context.Context, workspaceID string, tokens []string, limit int) ([]Chunk, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(tokens))
	args := []any{workspaceID}
	for _, t := range tokens {
		conds = append(conds, `text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = ? AND (`+strings.Join(conds, " OR ")+`)
		ORDER BY mtime DESC, updated_at DESC, path, start_line
		LIMIT ?`, args...)
}

func (s *SQLiteStore) RecentFirstChunks(ctx context.Context, workspaceID string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryChunks(ctx, `SELECT c.id, c.workspace_id, c.path, c.start_line, c.end_line, c.text,
			c.embedding, c.mtime, c.updated_at
		FROM files f
		JOIN chunks c ON c.workspace_id = f.workspace_id AND c.path = f.path
		WHERE f.workspace_id = ?
		AND c.start_line = (
			SELECT MIN(c2.start_line) FROM chunks c2
			WHERE c2.workspace_id = f.workspace_id AND c2.path = f.path
		)
		ORDER BY f.mtime DESC, f.path
		LIMIT ?`, workspaceID, limit)
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	if err != nil {
		return Chunk{}, err
	}
	if len(chunks) == 0 {
		return Chunk{}, ErrNotFound
	}
	return chunks[0], nil
}

func (s *SQLiteStore) ChunksForPath(ctx context.Context, workspaceID, path string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = ? AND path = ? ORDER BY start_line`, workspaceID, path)
}

func (s *SQLiteStore) DeleteFiles(ctx context.Context, workspaceID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range paths {
			if err := s.deletePathRows(ctx, tx, workspaceID, p, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if s.ftsAvailable {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE workspace_id = ?`, workspaceID); err != nil {
				return fmt.Errorf("clear fts: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("clear files: %w", err)
		}
		return nil
	})
}

// Close closes the SQLite database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var emb string
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Path, &c.StartLine, &c.EndLine,
			&c.Text, &emb, &c.MTime, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = DecodeEmbedding(emb)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ftsMatchExpr quotes each token as an FTS5 string and ANDs them.
func ftsMatchExpr(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " AND ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func formatSignature(count, newest int64) string {
	return fmt.Sprintf("%d:%d", count, newest)
}

// EncodeEmbedding serializes an embedding for storage as a JSON array.
func EncodeEmbedding(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeEmbedding parses a persisted embedding. Corrupt input yields nil.
func DecodeEmbedding(s string) []float32 {
	if s == "" || s == "[]" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		slog.Debug("memory store: unparsable embedding", "error", err)
		return nil
	}
	return v
}

var _ Store = (*SQLiteStore)(nil)

// isNotFound reports whether err is ErrNotFound or sql.ErrNoRows.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
