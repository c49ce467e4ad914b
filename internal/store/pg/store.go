// Package pg implements memory.Store on Postgres. Ranked lexical search uses a
// generated tsvector column with a GIN index.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/noteindex/internal/memory"
)

// Store implements memory.Store backed by Postgres.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pgx database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, DriverName)}
}

// Open connects to dsn, applies migrations and returns a Store.
func Open(dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

const chunkColumns = `id, workspace_id, path, start_line, end_line, text, embedding, mtime, updated_at`

func (s *Store) ListFiles(ctx context.Context, workspaceID string) (map[string]memory.IndexedFile, error) {
	var rows []memory.IndexedFile
	err := s.db.SelectContext(ctx, &rows,
		`SELECT path, content_hash, mtime, size, updated_at FROM files WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	files := make(map[string]memory.IndexedFile, len(rows))
	for _, f := range rows {
		files[f.Path] = f
	}
	return files, nil
}

func (s *Store) ApplySync(ctx context.Context, workspaceID string, batch memory.SyncBatch) error {
	if batch.Empty() {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range batch.Touched {
			if err := upsertFile(ctx, tx, workspaceID, f); err != nil {
				return err
			}
		}
		for _, fc := range batch.Indexed {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM chunks WHERE workspace_id = $1 AND path = $2`, workspaceID, fc.File.Path); err != nil {
				return fmt.Errorf("delete chunks %s: %w", fc.File.Path, err)
			}
			if err := upsertFile(ctx, tx, workspaceID, fc.File); err != nil {
				return err
			}
			if len(fc.Chunks) == 0 {
				continue
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO chunks (`+chunkColumns+`)
				VALUES (:id, :workspace_id, :path, :start_line, :end_line, :text, :embedding, :mtime, :updated_at)`,
				fromChunks(fc.Chunks)); err != nil {
				return fmt.Errorf("insert chunks %s: %w", fc.File.Path, err)
			}
		}
		if len(batch.Removed) > 0 {
			return deletePaths(ctx, tx, workspaceID, batch.Removed)
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
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

func upsertFile(ctx context.Context, tx *sqlx.Tx, workspaceID string, f memory.IndexedFile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO files (workspace_id, path, content_hash, mtime, size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id, path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at`,
		workspaceID, f.Path, f.Hash, f.MTime, f.Size, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

func deletePaths(ctx context.Context, tx *sqlx.Tx, workspaceID string, paths []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE workspace_id = $1 AND path = ANY($2)`, workspaceID, pq.Array(paths)); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE workspace_id = $1 AND path = ANY($2)`, workspaceID, pq.Array(paths)); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	return nil
}

func (s *Store) ChunkSignature(ctx context.Context, workspaceID string) (string, error) {
	var count, newest int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(updated_at), 0) FROM chunks WHERE workspace_id = $1`,
		workspaceID).Scan(&count, &newest)
	if err != nil {
		return "", fmt.Errorf("chunk signature: %w", err)
	}
	return fmt.Sprintf("%d:%d", count, newest), nil
}

func (s *Store) selectChunks(ctx context.Context, query string, args ...any) ([]memory.Chunk, error) {
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return toChunks(rows), nil
}

func (s *Store) LoadChunks(ctx context.Context, workspaceID string) ([]memory.Chunk, error) {
	return s.selectChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = $1 ORDER BY path, start_line`, workspaceID)
}

func (s *Store) SearchLexical(ctx context.Context, workspaceID string, tokens []string, limit int) ([]memory.Chunk, error) {
	q := plainQuery(tokens)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	return s.selectChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = $1 AND tsv @@ plainto_tsquery('simple', $2)
		ORDER BY ts_rank(tsv, plainto_tsquery('simple', $2)) DESC, path, start_line
		LIMIT $3`, workspaceID, q, limit)
}

func (s *Store) SearchContains(ctx context.Context, workspaceID string, tokens []string, limit int) ([]memory.Chunk, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	args := []any{workspaceID}
	conds := make([]string, 0, len(tokens))
	for _, t := range tokens {
		args = append(args, "%"+escapeLike(t)+"%")
		conds = append(conds, fmt.Sprintf("text ILIKE $%d", len(args)))
	}
	args = append(args, limit)

	return s.selectChunks(ctx, fmt.Sprintf(`SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = $1 AND (%s)
		ORDER BY mtime DESC, updated_at DESC, path, start_line
		LIMIT $%d`, strings.Join(conds, " OR "), len(args)), args...)
}

func (s *Store) RecentFirstChunks(ctx context.Context, workspaceID string, limit int) ([]memory.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.selectChunks(ctx, `SELECT `+chunkColumns+` FROM (
			SELECT DISTINCT ON (c.path) c.id, c.workspace_id, c.path, c.start_line, c.end_line,
				c.text, c.embedding, c.mtime, c.updated_at, f.mtime AS file_mtime
			FROM files f
			JOIN chunks c ON c.workspace_id = f.workspace_id AND c.path = f.path
			WHERE f.workspace_id = $1
			ORDER BY c.path, c.start_line
		) first_chunks
		ORDER BY file_mtime DESC, path
		LIMIT $2`, workspaceID, limit)
}

func (s *Store) GetChunk(ctx context.Context, id string) (memory.Chunk, error) {
	var row chunkRow
	err := s.db.GetContext(ctx, &row, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Chunk{}, memory.ErrNotFound
	}
	if err != nil {
		return memory.Chunk{}, fmt.Errorf("get chunk: %w", err)
	}
	return row.toChunk(), nil
}

func (s *Store) ChunksForPath(ctx context.Context, workspaceID, path string) ([]memory.Chunk, error) {
	return s.selectChunks(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE workspace_id = $1 AND path = $2 ORDER BY start_line`, workspaceID, path)
}

func (s *Store) DeleteFiles(ctx context.Context, workspaceID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return deletePaths(ctx, tx, workspaceID, paths)
	})
}

func (s *Store) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE workspace_id = $1`, workspaceID); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE workspace_id = $1`, workspaceID); err != nil {
			return fmt.Errorf("clear files: %w", err)
		}
		return nil
	})
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ memory.Store = (*Store)(nil)
